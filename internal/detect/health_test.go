package detect

import (
	"testing"
	"time"

	"github.com/davisfield/switchboard/internal/models"
)

// With nothing in the window there is nothing unhealthy: every sub-score and
// the composite are 100.
func TestHealth_VacuousTruth(t *testing.T) {
	d := testDetector(t)
	hs := d.Health(nil)

	if hs.Communication != 100 || hs.Execution != 100 || hs.Stability != 100 || hs.EmergencyReadiness != 100 {
		t.Errorf("sub-scores = %+v, want all 100", hs)
	}
	if hs.Composite != 100 {
		t.Errorf("Composite = %v, want 100", hs.Composite)
	}
}

func TestHealth_Communication(t *testing.T) {
	d := testDetector(t)
	window := []models.Message{
		msg(1, "coordinator", "worker", models.TypeDelegation, `{"task":"a"}`, 10*time.Minute, ctx("t1")),
		msg(2, "coordinator", "worker", models.TypeDelegation, `{"task":"b"}`, 9*time.Minute, ctx("t2")),
		msg(3, "worker", "coordinator", models.TypeAcceptance, `{"ok":true}`, 8*time.Minute, ctx("t1")),
	}

	hs := d.Health(window)
	if hs.Communication != 50 {
		t.Errorf("Communication = %v, want 50", hs.Communication)
	}
}

func TestHealth_ExecutionAndStability(t *testing.T) {
	d := testDetector(t)
	window := []models.Message{
		msg(1, "worker", "coordinator", models.TypeCompletion, `{"done":true}`, 10*time.Minute, nil),
		msg(2, "worker", "coordinator", models.TypeError, `{"detail":"boom"}`, 9*time.Minute, nil),
	}

	hs := d.Health(window)
	if hs.Execution != 50 {
		t.Errorf("Execution = %v, want 50", hs.Execution)
	}
	if hs.Stability != 50 {
		t.Errorf("Stability = %v, want 50", hs.Stability)
	}
}

func TestHealth_EmergencyReadiness(t *testing.T) {
	d := testDetector(t)
	window := []models.Message{
		// completed in 5m, inside the 15m SLA
		msg(1, "coordinator", "worker", models.TypeDelegation, `{"task":"emergency outage"}`, 20*time.Minute, ctx("e1")),
		msg(2, "worker", "coordinator", models.TypeCompletion, `{"done":true}`, 15*time.Minute, ctx("e1")),
		// still open past the SLA
		msg(3, "coordinator", "worker", models.TypeDelegation, `{"task":"emergency health alert"}`, 30*time.Minute, ctx("e2")),
	}

	hs := d.Health(window)
	if hs.EmergencyReadiness != 50 {
		t.Errorf("EmergencyReadiness = %v, want 50", hs.EmergencyReadiness)
	}
}

func TestHealth_CompositeWeights(t *testing.T) {
	d := testDetector(t)
	// one unaccepted delegation: communication 0, everything else vacuous 100
	window := []models.Message{
		msg(1, "coordinator", "worker", models.TypeDelegation, `{"task":"write summary"}`, 10*time.Minute, nil),
	}

	hs := d.Health(window)
	if hs.Communication != 0 {
		t.Fatalf("Communication = %v, want 0", hs.Communication)
	}
	want := 0.3*0 + 0.3*100 + 0.2*100 + 0.2*100
	if hs.Composite != want {
		t.Errorf("Composite = %v, want %v", hs.Composite, want)
	}
}
