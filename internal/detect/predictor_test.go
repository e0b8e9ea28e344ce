package detect

import (
	"testing"
	"time"

	"github.com/davisfield/switchboard/internal/config"
	"github.com/davisfield/switchboard/internal/directory"
	"github.com/davisfield/switchboard/internal/models"
	"github.com/davisfield/switchboard/internal/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testPredictor(t *testing.T) (*Predictor, *store.Store) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Message{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	dir, err := directory.New([]config.AgentConfig{
		{Name: "coordinator", Role: "coordinator"},
	})
	if err != nil {
		t.Fatalf("directory: %v", err)
	}
	st, err := store.New(db, dir)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	p, err := NewPredictor(st, "coordinator", config.PredictorConfig{AlertThreshold: 0.7}, time.Hour, nil)
	if err != nil {
		t.Fatalf("NewPredictor: %v", err)
	}
	return p, st
}

func TestAssess_EmptyWindow(t *testing.T) {
	p, _ := testPredictor(t)
	risk := p.Assess(nil)
	if risk.Probability != 0 {
		t.Errorf("Probability = %v, want 0", risk.Probability)
	}
}

func TestAssess_StalledDelegations(t *testing.T) {
	p, _ := testPredictor(t)
	var window []models.Message
	for i := uint(1); i <= 4; i++ {
		window = append(window,
			msg(i, "coordinator", "worker", models.TypeDelegation, `{"task":"t"}`, 30*time.Minute, nil))
	}

	risk := p.Assess(window)
	if risk.Factors["response_rate"] != 1 {
		t.Errorf("response_rate = %v, want 1", risk.Factors["response_rate"])
	}
	if risk.Factors["backlog_ratio"] != 1 {
		t.Errorf("backlog_ratio = %v, want 1", risk.Factors["backlog_ratio"])
	}
	// 0.4*1 + 0.35*1 with a flat latency trend
	if risk.Probability < 0.7 || risk.Probability > 0.76 {
		t.Errorf("Probability = %v, want about 0.75", risk.Probability)
	}
	if risk.TimeToOccurrence <= 0 {
		t.Errorf("TimeToOccurrence = %v, want positive", risk.TimeToOccurrence)
	}
	if len(risk.PreventiveActions) < 2 {
		t.Errorf("PreventiveActions = %v, want re-ping and redistribute", risk.PreventiveActions)
	}
}

func TestAssess_HealthyStream(t *testing.T) {
	p, _ := testPredictor(t)
	window := []models.Message{
		msg(1, "coordinator", "worker", models.TypeDelegation, `{"task":"t"}`, 30*time.Minute, ctx("t1")),
		msg(2, "worker", "coordinator", models.TypeAcceptance, `{"ok":true}`, 25*time.Minute, ctx("t1")),
		msg(3, "worker", "coordinator", models.TypeCompletion, `{"done":true}`, 20*time.Minute, ctx("t1")),
	}

	risk := p.Assess(window)
	if risk.Probability != 0 {
		t.Errorf("Probability = %v, want 0", risk.Probability)
	}
	if len(risk.PreventiveActions) != 1 || risk.PreventiveActions[0] != "monitor for another cycle" {
		t.Errorf("PreventiveActions = %v", risk.PreventiveActions)
	}
}

func TestAssess_LatencyTrend(t *testing.T) {
	p, _ := testPredictor(t)
	ackAt := func(m models.Message, lat time.Duration) models.Message {
		at := m.CreatedAt.Add(lat)
		m.AcknowledgedAt = &at
		return m
	}
	window := []models.Message{
		ackAt(msg(1, "a", "b", models.TypeProgress, `{"n":1}`, 40*time.Minute, nil), time.Second),
		ackAt(msg(2, "a", "b", models.TypeProgress, `{"n":2}`, 30*time.Minute, nil), time.Second),
		ackAt(msg(3, "a", "b", models.TypeProgress, `{"n":3}`, 20*time.Minute, nil), 10*time.Second),
		ackAt(msg(4, "a", "b", models.TypeProgress, `{"n":4}`, 10*time.Minute, nil), 10*time.Second),
	}

	risk := p.Assess(window)
	if risk.Factors["latency_trend"] != 1 {
		t.Errorf("latency_trend = %v, want 1 (latency grew tenfold)", risk.Factors["latency_trend"])
	}
}

func TestAlert_OverThreshold(t *testing.T) {
	p, st := testPredictor(t)
	sent, err := p.Alert(Risk{
		Probability:       0.8,
		Factors:           map[string]float64{"response_rate": 1},
		PreventiveActions: []string{"re-ping agents with pending delegations"},
		TimeToOccurrence:  20 * time.Minute,
	})
	if err != nil {
		t.Fatalf("Alert: %v", err)
	}
	if !sent {
		t.Fatal("alert not sent at 0.8 against 0.7 threshold")
	}

	alerts, err := st.Receive("coordinator", 0, 10, models.TypePredictiveAlert)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].PayloadField("time_to_occurrence") != "20m0s" {
		t.Errorf("time_to_occurrence = %q", alerts[0].PayloadField("time_to_occurrence"))
	}
}

func TestAlert_SustainedRiskAlertsOnce(t *testing.T) {
	p, st := testPredictor(t)

	// Risk holding above the threshold over repeated assessments must not
	// re-alert every cycle.
	for i := 0; i < 3; i++ {
		if _, err := p.Alert(Risk{Probability: 0.9}); err != nil {
			t.Fatalf("Alert cycle %d: %v", i, err)
		}
	}
	alerts, err := st.Receive("coordinator", 0, 10, models.TypePredictiveAlert)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts after sustained risk = %d, want 1", len(alerts))
	}

	// Dropping below the threshold re-arms the next crossing.
	if _, err := p.Alert(Risk{Probability: 0.2}); err != nil {
		t.Fatalf("Alert below threshold: %v", err)
	}
	sent, err := p.Alert(Risk{Probability: 0.9})
	if err != nil {
		t.Fatalf("Alert after re-arm: %v", err)
	}
	if !sent {
		t.Fatal("alert not sent on second upward crossing")
	}
	alerts, _ = st.Receive("coordinator", 0, 10, models.TypePredictiveAlert)
	if len(alerts) != 2 {
		t.Errorf("alerts after re-crossing = %d, want 2", len(alerts))
	}
}

func TestAlert_UnderThreshold(t *testing.T) {
	p, st := testPredictor(t)
	sent, err := p.Alert(Risk{Probability: 0.4})
	if err != nil {
		t.Fatalf("Alert: %v", err)
	}
	if sent {
		t.Fatal("alert sent under threshold")
	}
	alerts, _ := st.Receive("coordinator", 0, 10, models.TypePredictiveAlert)
	if len(alerts) != 0 {
		t.Errorf("alerts = %d, want 0", len(alerts))
	}
}
