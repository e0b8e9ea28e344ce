package detect

import (
	"time"

	"github.com/davisfield/switchboard/internal/classify"
	"github.com/davisfield/switchboard/internal/models"
)

// HealthScore is the composite coordination health over a message window.
// Every sub-score is 0-100. A sub-score with nothing to measure is 100: an
// empty window is a healthy window, not an unhealthy one.
type HealthScore struct {
	Communication      float64 `json:"communication"`
	Execution          float64 `json:"execution"`
	Stability          float64 `json:"stability"`
	EmergencyReadiness float64 `json:"emergency_readiness"`
	Composite          float64 `json:"composite"`
}

// Sub-score weights for the composite.
const (
	weightCommunication = 0.3
	weightExecution     = 0.3
	weightStability     = 0.2
	weightEmergency     = 0.2
)

// Health computes the composite health score for the window.
func (d *Detector) Health(window []models.Message) HealthScore {
	var (
		delegations, acceptances   int
		completions, failures      int
		errorsSeen, total          int
		emergencies, emergenciesOK int
	)

	sla := time.Duration(d.cfg.EmergencySLAMinutes) * time.Minute
	completedAt := make(map[string]time.Time)
	for _, msg := range window {
		if msg.Type == models.TypeCompletion && msg.ContextID != nil {
			completedAt[*msg.ContextID] = msg.CreatedAt
		}
	}

	for _, msg := range window {
		total++
		switch msg.Type {
		case models.TypeDelegation:
			delegations++
			if d.cls.Classify(msg.Payload) == classify.CategoryEmergency {
				emergencies++
				if msg.ContextID != nil {
					if done, ok := completedAt[*msg.ContextID]; ok && done.Sub(msg.CreatedAt) <= sla {
						emergenciesOK++
					}
				}
			}
		case models.TypeAcceptance:
			acceptances++
		case models.TypeCompletion:
			completions++
		case models.TypeError:
			errorsSeen++
			failures++
		case models.TypeBlocker:
			failures++
		}
	}

	hs := HealthScore{
		Communication:      ratio100(acceptances, delegations),
		Execution:          ratio100(completions, completions+failures),
		Stability:          inverseRatio100(errorsSeen, total),
		EmergencyReadiness: ratio100(emergenciesOK, emergencies),
	}
	hs.Composite = weightCommunication*hs.Communication +
		weightExecution*hs.Execution +
		weightStability*hs.Stability +
		weightEmergency*hs.EmergencyReadiness
	return hs
}

// ratio100 maps num/den to 0-100, capped, with 100 on a zero denominator.
func ratio100(num, den int) float64 {
	if den == 0 {
		return 100
	}
	r := float64(num) / float64(den) * 100
	if r > 100 {
		r = 100
	}
	return r
}

// inverseRatio100 maps the absence of num among den to 0-100, with 100 on a
// zero denominator.
func inverseRatio100(num, den int) float64 {
	if den == 0 {
		return 100
	}
	return ratio100(den-num, den)
}
