package consumer

import (
	"context"
	"errors"
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

func testStore(t *testing.T) *store.Store {
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
		{Name: "worker"},
	})
	if err != nil {
		t.Fatalf("directory: %v", err)
	}
	st, err := store.New(db, dir)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return st
}

type recordingReporter struct {
	failures []error
}

func (r *recordingReporter) ReportFailure(agent string, msg models.Message, err error) {
	r.failures = append(r.failures, err)
}

func TestPoll_DispatchAndAck(t *testing.T) {
	st := testStore(t)
	c, err := New("worker", st, Config{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var handled []string
	c.Handle(models.TypeDelegation, func(m models.Message) error {
		handled = append(handled, m.PayloadField("task"))
		return nil
	})

	st.Send("coordinator", "worker", models.TypeDelegation,
		map[string]interface{}{"task": "alpha"}, store.SendOpts{})
	time.Sleep(2 * time.Millisecond)
	st.Send("coordinator", "worker", models.TypeDelegation,
		map[string]interface{}{"task": "beta"}, store.SendOpts{})

	if err := c.Poll(); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	// Oldest first despite newest-first fetch order.
	if len(handled) != 2 || handled[0] != "alpha" || handled[1] != "beta" {
		t.Fatalf("handled = %v", handled)
	}

	// Everything acknowledged and the cursor advanced.
	msgs, _ := st.Receive("worker", c.LastSeenID(), 10)
	if len(msgs) != 0 {
		t.Errorf("unconsumed messages remain: %d", len(msgs))
	}
	for _, id := range []uint{1, 2} {
		got, err := st.Acknowledge(id, "other")
		if err != nil {
			t.Fatalf("Acknowledge probe: %v", err)
		}
		if got.AcknowledgedBy == nil || *got.AcknowledgedBy != "worker" {
			t.Errorf("message %d AcknowledgedBy = %v, want worker", id, got.AcknowledgedBy)
		}
	}
}

func TestPoll_BacklogBeyondReceiveLimit(t *testing.T) {
	st := testStore(t)
	c, err := New("worker", st, Config{ReceiveLimit: 2}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var handled []string
	c.Handle(models.TypeDelegation, func(m models.Message) error {
		handled = append(handled, m.PayloadField("task"))
		return nil
	})

	tasks := []string{"one", "two", "three", "four", "five"}
	for _, task := range tasks {
		st.Send("coordinator", "worker", models.TypeDelegation,
			map[string]interface{}{"task": task}, store.SendOpts{})
		time.Sleep(2 * time.Millisecond)
	}

	if err := c.Poll(); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	// The burst exceeds the page size; every message must still be
	// delivered exactly once, oldest first.
	if len(handled) != len(tasks) {
		t.Fatalf("handled %d of %d messages: %v", len(handled), len(tasks), handled)
	}
	for i, task := range tasks {
		if handled[i] != task {
			t.Errorf("handled[%d] = %q, want %q", i, handled[i], task)
		}
	}

	// Nothing left stranded behind the cursor.
	msgs, err := st.Receive("worker", 0, 10)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	for _, m := range msgs {
		if m.Status != models.StatusAcknowledged {
			t.Errorf("message %d status = %s, want %s", m.ID, m.Status, models.StatusAcknowledged)
		}
	}
	if c.LastSeenID() != uint(len(tasks)) {
		t.Errorf("cursor = %d, want %d", c.LastSeenID(), len(tasks))
	}
}

func TestPoll_DeduplicatesByID(t *testing.T) {
	st := testStore(t)
	c, _ := New("worker", st, Config{}, nil)

	calls := 0
	c.Handle(models.TypeDelegation, func(m models.Message) error {
		calls++
		return nil
	})

	st.Send("coordinator", "worker", models.TypeDelegation,
		map[string]interface{}{"task": "x"}, store.SendOpts{})

	if err := c.Poll(); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if err := c.Poll(); err != nil {
		t.Fatalf("second Poll: %v", err)
	}
	if calls != 1 {
		t.Errorf("handler called %d times, want 1", calls)
	}
}

func TestPoll_HandlerErrorDoesNotStopLoop(t *testing.T) {
	st := testStore(t)
	c, _ := New("worker", st, Config{}, nil)
	rep := &recordingReporter{}
	c.SetFailureReporter(rep)

	var handled []string
	c.Handle(models.TypeDelegation, func(m models.Message) error {
		if m.PayloadField("task") == "bad" {
			return errors.New("task execution failed")
		}
		handled = append(handled, m.PayloadField("task"))
		return nil
	})

	st.Send("coordinator", "worker", models.TypeDelegation,
		map[string]interface{}{"task": "bad"}, store.SendOpts{})
	time.Sleep(2 * time.Millisecond)
	st.Send("coordinator", "worker", models.TypeDelegation,
		map[string]interface{}{"task": "good"}, store.SendOpts{})

	if err := c.Poll(); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	if len(handled) != 1 || handled[0] != "good" {
		t.Errorf("handled = %v, want [good]", handled)
	}
	if len(rep.failures) != 1 {
		t.Errorf("reported failures = %d, want 1", len(rep.failures))
	}
}

func TestPoll_HandlerPanicContained(t *testing.T) {
	st := testStore(t)
	c, _ := New("worker", st, Config{}, nil)
	rep := &recordingReporter{}
	c.SetFailureReporter(rep)

	c.Handle(models.TypeDelegation, func(m models.Message) error {
		panic("boom")
	})

	st.Send("coordinator", "worker", models.TypeDelegation,
		map[string]interface{}{"task": "x"}, store.SendOpts{})

	if err := c.Poll(); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(rep.failures) != 1 {
		t.Errorf("reported failures = %d, want 1", len(rep.failures))
	}
}

func TestPoll_DefaultHandler(t *testing.T) {
	st := testStore(t)
	c, _ := New("worker", st, Config{}, nil)

	var types []string
	c.HandleDefault(func(m models.Message) error {
		types = append(types, m.Type)
		return nil
	})

	st.Send("coordinator", "worker", models.TypeInfoRequest,
		map[string]interface{}{"q": "status?"}, store.SendOpts{})

	if err := c.Poll(); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(types) != 1 || types[0] != models.TypeInfoRequest {
		t.Errorf("types = %v", types)
	}
}

func TestPoll_ProcessedSetBound(t *testing.T) {
	st := testStore(t)
	c, _ := New("worker", st, Config{ProcessedSetBound: 2}, nil)
	c.Handle(models.TypeProgress, func(m models.Message) error { return nil })

	for i := 0; i < 5; i++ {
		st.Send("coordinator", "worker", models.TypeProgress,
			map[string]interface{}{"n": i}, store.SendOpts{})
		time.Sleep(2 * time.Millisecond)
		if err := c.Poll(); err != nil {
			t.Fatalf("Poll %d: %v", i, err)
		}
	}

	// The set is cleared whenever it exceeds the bound.
	if len(c.processed) > 3 {
		t.Errorf("processed set size = %d, should stay bounded", len(c.processed))
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	st := testStore(t)
	c, _ := New("worker", st, Config{PollInterval: 5 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestNew_Validation(t *testing.T) {
	st := testStore(t)
	if _, err := New("", st, Config{}, nil); err == nil {
		t.Error("expected error for empty agent")
	}
	if _, err := New("worker", nil, Config{}, nil); err == nil {
		t.Error("expected error for nil store")
	}
}
