package router

import (
	"fmt"
	"strings"

	"github.com/davisfield/switchboard/internal/models"
	"github.com/davisfield/switchboard/internal/store"
	"github.com/google/uuid"
)

// Violation types and severities.
const (
	ViolationForbidden = "FORBIDDEN_CAPABILITY"
	ViolationMismatch  = "CAPABILITY_MISMATCH"

	SeverityHigh   = "high"
	SeverityMedium = "medium"
)

// Violation describes a specialization violation for an accepted task.
type Violation struct {
	Type         string   `json:"type"`
	Severity     string   `json:"severity"`
	Agent        string   `json:"agent"`
	Capabilities []string `json:"capabilities"`
	Detail       string   `json:"detail"`
	ContextID    string   `json:"context_id"`
}

// CheckSpecialization verifies an already-accepted task against the
// assignee's profile. A required capability that is forbidden for the agent
// is a high-severity violation; required capabilities entirely absent from
// the agent's primary and secondary sets are a medium-severity mismatch.
// Violations generate a corrective message to the assignee and, for high
// severity, an escalation to the coordinator. Returns nil when the
// assignment is sound.
func (r *Router) CheckSpecialization(taskDescription, assignee string) (*Violation, error) {
	profile, err := r.dir.Resolve(assignee)
	if err != nil {
		return nil, fmt.Errorf("router: check specialization: %w", err)
	}

	required := r.cls.RequiredCapabilities(taskDescription)

	var forbidden []string
	matched := 0
	for _, c := range required {
		if profile.Forbids(c) {
			forbidden = append(forbidden, c)
		}
		if profile.HasPrimary(c) || profile.HasSecondary(c) {
			matched++
		}
	}

	var v *Violation
	switch {
	case len(forbidden) > 0:
		v = &Violation{
			Type:         ViolationForbidden,
			Severity:     SeverityHigh,
			Agent:        assignee,
			Capabilities: forbidden,
			Detail: fmt.Sprintf("task requires capabilities forbidden for %s: %s",
				assignee, strings.Join(forbidden, ", ")),
		}
	case matched == 0:
		v = &Violation{
			Type:         ViolationMismatch,
			Severity:     SeverityMedium,
			Agent:        assignee,
			Capabilities: required,
			Detail: fmt.Sprintf("none of the required capabilities (%s) appear in %s's profile",
				strings.Join(required, ", "), assignee),
		}
	default:
		return nil, nil
	}

	v.ContextID = uuid.NewString()
	coordinator := r.dir.Coordinator()

	_, err = r.store.Send(coordinator, assignee, models.TypeSpecWarning, map[string]interface{}{
		"violation_type": v.Type,
		"severity":       v.Severity,
		"capabilities":   v.Capabilities,
		"detail":         v.Detail,
		"task":           taskDescription,
	}, store.SendOpts{ContextID: v.ContextID})
	if err != nil {
		return v, fmt.Errorf("router: send corrective message: %w", err)
	}

	if v.Severity == SeverityHigh {
		_, err = r.store.Send(coordinator, coordinator, models.TypeEscalation, map[string]interface{}{
			"reason":   "specialization violation",
			"severity": v.Severity,
			"agent":    assignee,
			"detail":   v.Detail,
		}, store.SendOpts{ContextID: v.ContextID})
		if err != nil {
			return v, fmt.Errorf("router: send escalation: %w", err)
		}
	}

	return v, nil
}
