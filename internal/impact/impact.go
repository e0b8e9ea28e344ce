// Package impact assigns heuristic business-value scores to messages and
// aggregates them into prioritization reports. The figures are triage
// signals, not accounting.
package impact

import (
	"fmt"
	"time"

	"github.com/davisfield/switchboard/internal/classify"
	"github.com/davisfield/switchboard/internal/config"
	"github.com/davisfield/switchboard/internal/models"
)

// Per-category value multipliers.
var categoryMultipliers = map[string]float64{
	classify.CategoryEmergency:      5.0,
	classify.CategoryBilling:        4.0,
	classify.CategoryCompliance:     3.5,
	classify.CategoryDataAnalysis:   2.5,
	classify.CategoryInfrastructure: 2.0,
	classify.CategoryCommunication:  2.0,
	classify.CategoryScheduling:     1.5,
	classify.CategoryGeneral:        1.0,
}

// Per-type base values. Completions carry the most realized value; errors
// and blockers still score: handling them is work worth prioritizing.
var typeBaseValues = map[string]float64{
	models.TypeCompletion:     250,
	models.TypeImpactReport:   150,
	models.TypeStrategicQuery: 120,
	models.TypeDelegation:     100,
	models.TypeKnowledgeShare: 80,
	models.TypeBlocker:        40,
	models.TypeError:          30,
}

const defaultBaseValue = 10

const urgencyMultiplier = 1.5

// Report aggregates window scores into per-category and per-agent
// breakdowns with naive revenue projections.
type Report struct {
	WindowHours       float64            `json:"window_hours"`
	MessageCount      int                `json:"message_count"`
	Total             float64            `json:"total"`
	ByCategory        map[string]float64 `json:"by_category"`
	ByAgent           map[string]float64 `json:"by_agent"`
	DailyRate         float64            `json:"daily_rate"`
	MonthlyProjection float64            `json:"monthly_projection"`
	AnnualProjection  float64            `json:"annual_projection"`
	TargetAttainment  float64            `json:"target_attainment"`
	ROI               float64            `json:"roi"`
	GeneratedAt       time.Time          `json:"generated_at"`
}

// Quantifier scores messages with the shared classifier.
type Quantifier struct {
	cfg config.ImpactConfig
	cls *classify.Classifier
}

// New builds a Quantifier.
func New(cfg config.ImpactConfig, cls *classify.Classifier) (*Quantifier, error) {
	if cls == nil {
		return nil, fmt.Errorf("impact: classifier is required")
	}
	return &Quantifier{cfg: cfg, cls: cls}, nil
}

// Score computes one message's impact figure: category multiplier times the
// message-type base value times an urgency multiplier.
func (q *Quantifier) Score(msg models.Message) float64 {
	base, ok := typeBaseValues[msg.Type]
	if !ok {
		base = defaultBaseValue
	}
	category := q.cls.Classify(msg.Payload)
	score := categoryMultipliers[category] * base
	if q.cls.IsUrgent(msg.Payload) {
		score *= urgencyMultiplier
	}
	return score
}

// Category returns the message's impact category.
func (q *Quantifier) Category(msg models.Message) string {
	return q.cls.Classify(msg.Payload)
}

// Report aggregates the window into a prioritization report. windowDur is
// the span the window covers and drives the linear projections.
func (q *Quantifier) Report(window []models.Message, windowDur time.Duration) Report {
	r := Report{
		WindowHours: windowDur.Hours(),
		ByCategory:  make(map[string]float64),
		ByAgent:     make(map[string]float64),
		GeneratedAt: time.Now(),
	}
	for _, msg := range window {
		score := q.Score(msg)
		r.Total += score
		r.ByCategory[q.Category(msg)] += score
		r.ByAgent[msg.Sender] += score
		r.MessageCount++
	}

	if windowDur > 0 {
		r.DailyRate = r.Total * float64(24*time.Hour) / float64(windowDur)
	}
	r.MonthlyProjection = r.DailyRate * 30
	r.AnnualProjection = r.DailyRate * 365
	if q.cfg.AnnualRevenueTarget > 0 {
		r.TargetAttainment = r.AnnualProjection / q.cfg.AnnualRevenueTarget
	}
	if q.cfg.CostRatio > 0 {
		r.ROI = (1 - q.cfg.CostRatio) / q.cfg.CostRatio
	}
	return r
}
