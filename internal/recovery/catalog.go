package recovery

import "time"

// Error categories.
const (
	CategoryCommunication   = "communication_failure"
	CategoryTaskExecution   = "task_execution_failure"
	CategoryStoreConnection = "store_connection_failure"
	CategoryEmergencySLA    = "emergency_response_failure"
	CategoryModelAccuracy   = "model_accuracy_degradation"
	CategoryResources       = "resource_exhaustion"
)

// Severities.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
)

// Protocol describes how to recover from one error category.
type Protocol struct {
	Category          string
	Severity          string
	MaxAttempts       int
	BaseDelay         time.Duration
	BackoffMultiplier float64
	Steps             []string
}

// DefaultCatalog returns the static recovery catalog. emergency_response
// failures carry no retry budget: one attempt, zero delay, straight to
// escalation.
func DefaultCatalog() map[string]Protocol {
	return map[string]Protocol{
		CategoryCommunication: {
			Category:          CategoryCommunication,
			Severity:          SeverityHigh,
			MaxAttempts:       3,
			BaseDelay:         2 * time.Second,
			BackoffMultiplier: 2,
			Steps:             []string{"ping_store", "reping_agent", "resend_last_message"},
		},
		CategoryTaskExecution: {
			Category:          CategoryTaskExecution,
			Severity:          SeverityMedium,
			MaxAttempts:       3,
			BaseDelay:         5 * time.Second,
			BackoffMultiplier: 2,
			Steps:             []string{"notify_assignee", "requeue_task"},
		},
		CategoryStoreConnection: {
			Category:          CategoryStoreConnection,
			Severity:          SeverityCritical,
			MaxAttempts:       5,
			BaseDelay:         time.Second,
			BackoffMultiplier: 2,
			Steps:             []string{"ping_store", "reconnect_store"},
		},
		CategoryEmergencySLA: {
			Category:          CategoryEmergencySLA,
			Severity:          SeverityCritical,
			MaxAttempts:       1,
			BaseDelay:         0,
			BackoffMultiplier: 1,
			Steps:             nil, // no recovery steps: escalate immediately
		},
		CategoryModelAccuracy: {
			Category:          CategoryModelAccuracy,
			Severity:          SeverityMedium,
			MaxAttempts:       2,
			BaseDelay:         10 * time.Second,
			BackoffMultiplier: 3,
			Steps:             []string{"notify_assignee", "request_recalibration"},
		},
		CategoryResources: {
			Category:          CategoryResources,
			Severity:          SeverityHigh,
			MaxAttempts:       3,
			BaseDelay:         5 * time.Second,
			BackoffMultiplier: 2,
			Steps:             []string{"shed_load", "notify_assignee"},
		},
	}
}
