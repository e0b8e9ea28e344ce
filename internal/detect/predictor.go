package detect

import (
	"fmt"
	"time"

	"github.com/davisfield/switchboard/internal/config"
	"github.com/davisfield/switchboard/internal/models"
	"github.com/davisfield/switchboard/internal/store"
	"go.uber.org/zap"
)

// Risk factor weights. Fixed: this is heuristic triage, not a calibrated
// model, and tuning happens by editing these in one place.
const (
	weightResponseRate = 0.40
	weightBacklogRatio = 0.35
	weightLatencyTrend = 0.25
)

// Risk is one assessment of coordination breakdown probability.
type Risk struct {
	Probability       float64            `json:"probability"`
	Factors           map[string]float64 `json:"factors"`
	PreventiveActions []string           `json:"preventive_actions"`
	TimeToOccurrence  time.Duration      `json:"time_to_occurrence"`
	AssessedAt        time.Time          `json:"assessed_at"`
}

// Predictor combines normalized window factors into a linear risk score and
// alerts the coordinator when it crosses the configured threshold.
type Predictor struct {
	store     *store.Store
	coord     string
	threshold float64
	window    time.Duration
	log       *zap.Logger

	// alerting is true while risk sits at or above the threshold, so a
	// sustained condition alerts once on the upward crossing rather than
	// every assessment.
	alerting bool
}

// NewPredictor builds a Predictor alerting the named coordinator.
func NewPredictor(st *store.Store, coordinator string, cfg config.PredictorConfig, window time.Duration, log *zap.Logger) (*Predictor, error) {
	if st == nil {
		return nil, fmt.Errorf("detect: store is required")
	}
	if coordinator == "" {
		return nil, fmt.Errorf("detect: coordinator is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Predictor{store: st, coord: coordinator, threshold: cfg.AlertThreshold, window: window, log: log}, nil
}

// Assess computes the linear risk score for the window. Factors are each
// normalized to [0,1]:
//
//	response_rate: share of delegations with no acceptance yet
//	backlog_ratio: share of delegations with no completion yet
//	latency_trend: growth of acknowledgment latency, later half vs earlier
func (p *Predictor) Assess(window []models.Message) Risk {
	var delegations, acceptances, completions int
	var earlySum, lateSum time.Duration
	var earlyN, lateN int

	mid := len(window) / 2
	for i, msg := range window {
		switch msg.Type {
		case models.TypeDelegation:
			delegations++
		case models.TypeAcceptance:
			acceptances++
		case models.TypeCompletion:
			completions++
		}
		if msg.AcknowledgedAt != nil {
			lat := msg.AcknowledgedAt.Sub(msg.CreatedAt)
			if i < mid {
				earlySum += lat
				earlyN++
			} else {
				lateSum += lat
				lateN++
			}
		}
	}

	factors := map[string]float64{
		"response_rate": deficit(acceptances, delegations),
		"backlog_ratio": deficit(completions, delegations),
		"latency_trend": latencyTrend(earlySum, earlyN, lateSum, lateN),
	}
	prob := weightResponseRate*factors["response_rate"] +
		weightBacklogRatio*factors["backlog_ratio"] +
		weightLatencyTrend*factors["latency_trend"]
	if prob > 1 {
		prob = 1
	}

	return Risk{
		Probability:       prob,
		Factors:           factors,
		PreventiveActions: preventiveActions(factors),
		TimeToOccurrence:  p.timeToOccurrence(prob),
		AssessedAt:        time.Now(),
	}
}

// Alert sends a PREDICTIVE_ALERT to the coordinator when the risk crosses
// the threshold from below. Risk holding above the threshold does not
// re-alert; dropping back below re-arms the next crossing. Returns true
// when an alert was sent.
func (p *Predictor) Alert(risk Risk) (bool, error) {
	if risk.Probability < p.threshold {
		p.alerting = false
		return false, nil
	}
	if p.alerting {
		return false, nil
	}
	_, err := p.store.Send(p.coord, p.coord, models.TypePredictiveAlert, map[string]interface{}{
		"probability":        risk.Probability,
		"factors":            risk.Factors,
		"preventive_actions": risk.PreventiveActions,
		"time_to_occurrence": risk.TimeToOccurrence.String(),
	}, store.SendOpts{})
	if err != nil {
		return false, fmt.Errorf("detect: predictive alert: %w", err)
	}
	p.alerting = true
	p.log.Warn("predictive alert emitted",
		zap.Float64("probability", risk.Probability),
		zap.Duration("time_to_occurrence", risk.TimeToOccurrence))
	return true, nil
}

// timeToOccurrence estimates when breakdown lands if nothing changes. Higher
// probability means sooner, scaled against the assessment window.
func (p *Predictor) timeToOccurrence(prob float64) time.Duration {
	if prob <= 0 {
		return 0
	}
	return time.Duration((1.1 - prob) * float64(p.window)).Round(time.Minute)
}

// deficit is the share of expected follow-ups that never arrived.
func deficit(got, expected int) float64 {
	if expected == 0 {
		return 0
	}
	d := 1 - float64(got)/float64(expected)
	if d < 0 {
		return 0
	}
	return d
}

// latencyTrend maps latency growth between window halves to [0,1]. A doubling
// of average latency scores 1.
func latencyTrend(earlySum time.Duration, earlyN int, lateSum time.Duration, lateN int) float64 {
	if earlyN == 0 || lateN == 0 {
		return 0
	}
	early := float64(earlySum) / float64(earlyN)
	late := float64(lateSum) / float64(lateN)
	if early == 0 || late <= early {
		return 0
	}
	t := (late - early) / early
	if t > 1 {
		t = 1
	}
	return t
}

func preventiveActions(factors map[string]float64) []string {
	var actions []string
	if factors["response_rate"] > 0.5 {
		actions = append(actions, "re-ping agents with pending delegations")
	}
	if factors["backlog_ratio"] > 0.5 {
		actions = append(actions, "redistribute open tasks to agents with capacity")
	}
	if factors["latency_trend"] > 0.5 {
		actions = append(actions, "reduce polling intervals until latency recovers")
	}
	if len(actions) == 0 {
		actions = append(actions, "monitor for another cycle")
	}
	return actions
}
