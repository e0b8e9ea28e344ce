// Package recovery implements the catalog-driven error recovery engine:
// detection over the message window, retry with non-blocking backoff, and
// escalation once a protocol's attempt budget is exhausted.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/davisfield/switchboard/internal/models"
	"github.com/davisfield/switchboard/internal/store"
	"go.uber.org/zap"
)

// ErrExhausted is returned once a recovery record has used its protocol's
// full attempt budget without resolution.
var ErrExhausted = errors.New("recovery attempts exhausted")

// Record statuses.
const (
	StatusPending   = "pending"
	StatusAttempted = "attempted"
	StatusResolved  = "resolved"
	StatusExhausted = "exhausted"
)

// ErrorEvent is one detected failure to recover from.
type ErrorEvent struct {
	Category   string
	Severity   string
	Agent      string // agent the failure concerns (usually the sender)
	MessageID  uint   // source message, zero for synthetic events
	Summary    string
	DetectedAt time.Time
}

// key identifies the recovery record for an event. Events from the same
// message collapse into one record; synthetic events collapse per
// category+agent.
func (e ErrorEvent) key() string {
	if e.MessageID != 0 {
		return fmt.Sprintf("msg-%d", e.MessageID)
	}
	return e.Category + "/" + e.Agent
}

// Record tracks recovery progress for one detected error.
type Record struct {
	Category      string
	Severity      string
	Agent         string
	MessageID     uint
	AttemptsMade  int
	Status        string
	LastAttemptAt time.Time
}

// StepRunner executes one named recovery step, reporting whether the error
// is resolved. Injectable for tests and for callers with richer remedies.
type StepRunner func(ctx context.Context, step string, ev ErrorEvent) (resolved bool, err error)

// Engine is the recovery engine. Records are in-memory per instance and
// rebuildable from the stream; construct one per monitoring process.
type Engine struct {
	store   *store.Store
	catalog map[string]Protocol
	coord   string
	log     *zap.Logger
	runner  StepRunner

	mu      sync.Mutex
	records map[string]*Record
	cancels map[string]context.CancelFunc
}

// New creates an Engine using the default catalog.
func New(st *store.Store, coordinator string, log *zap.Logger) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("recovery: store is required")
	}
	if coordinator == "" {
		return nil, fmt.Errorf("recovery: coordinator is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		store:   st,
		catalog: DefaultCatalog(),
		coord:   coordinator,
		log:     log,
		records: make(map[string]*Record),
		cancels: make(map[string]context.CancelFunc),
	}
	e.runner = e.defaultRunner
	return e, nil
}

// SetStepRunner replaces the step runner.
func (e *Engine) SetStepRunner(r StepRunner) {
	if r != nil {
		e.runner = r
	}
}

// failure text patterns, checked in order against lowercased payloads.
var textPatterns = []struct {
	category string
	needles  []string
}{
	{CategoryStoreConnection, []string{"store unreachable", "database connection", "connection refused", "connection timeout"}},
	{CategoryEmergencySLA, []string{"emergency response failure", "sla violation", "sla breach", "missed emergency"}},
	{CategoryResources, []string{"quota exceeded", "limit exceeded", "out of memory", "resource exhausted", "rate limited"}},
	{CategoryModelAccuracy, []string{"accuracy degradation", "model drift", "confidence dropped"}},
	{CategoryCommunication, []string{"no response from", "not responding", "unreachable agent", "communication failure"}},
}

// Classify maps failure text to an error category, defaulting to
// task_execution_failure.
func Classify(text string) string {
	lower := strings.ToLower(text)
	for _, p := range textPatterns {
		for _, n := range p.needles {
			if strings.Contains(lower, n) {
				return p.category
			}
		}
	}
	return CategoryTaskExecution
}

// Detect scans a message window for error-type messages and textual failure
// patterns, returning classified events. Detection never fails: malformed
// payloads are skipped.
func (e *Engine) Detect(window []models.Message) []ErrorEvent {
	var events []ErrorEvent
	for _, msg := range window {
		if msg.Type != models.TypeError && msg.Type != models.TypeBlocker {
			continue
		}

		category := msg.PayloadField("category")
		if _, known := e.catalog[category]; !known {
			category = Classify(msg.Payload)
		}
		// Blocker reports only become recovery events when their text
		// matches a known failure pattern.
		if msg.Type == models.TypeBlocker && category == CategoryTaskExecution &&
			!strings.Contains(strings.ToLower(msg.Payload), "fail") {
			continue
		}

		summary := msg.PayloadField("detail")
		if summary == "" {
			summary = msg.PayloadField("description")
		}
		events = append(events, ErrorEvent{
			Category:   category,
			Severity:   e.catalog[category].Severity,
			Agent:      msg.Sender,
			MessageID:  msg.ID,
			Summary:    summary,
			DetectedAt: msg.CreatedAt,
		})
	}
	return events
}

// Execute runs one recovery attempt for the event: the protocol's steps in
// order, waiting baseDelay x multiplier^stepIndex between steps. The waits
// are context-cancellable selects, never bare sleeps, so many executions can
// run concurrently and a chain can be aborted once the underlying error
// clears. Returns ErrExhausted (after escalating to the coordinator) once
// the attempt budget is spent.
func (e *Engine) Execute(ctx context.Context, ev ErrorEvent) error {
	proto, ok := e.catalog[ev.Category]
	if !ok {
		return fmt.Errorf("recovery: unknown category %q", ev.Category)
	}

	key := ev.key()
	e.mu.Lock()
	rec, ok := e.records[key]
	if !ok {
		rec = &Record{
			Category:  ev.Category,
			Severity:  proto.Severity,
			Agent:     ev.Agent,
			MessageID: ev.MessageID,
			Status:    StatusPending,
		}
		e.records[key] = rec
	}
	if rec.Status == StatusResolved || rec.Status == StatusExhausted {
		e.mu.Unlock()
		return nil
	}
	rec.AttemptsMade++
	rec.Status = StatusAttempted
	rec.LastAttemptAt = time.Now()
	attempt := rec.AttemptsMade
	e.mu.Unlock()

	for i, step := range proto.Steps {
		if i > 0 {
			delay := time.Duration(float64(proto.BaseDelay) * math.Pow(proto.BackoffMultiplier, float64(i)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		resolved, err := e.runner(ctx, step, ev)
		if err != nil {
			e.log.Warn("recovery step failed",
				zap.String("category", ev.Category), zap.String("step", step), zap.Error(err))
			continue
		}
		if resolved {
			e.mu.Lock()
			rec.Status = StatusResolved
			e.mu.Unlock()
			e.log.Info("recovery resolved",
				zap.String("category", ev.Category), zap.String("step", step), zap.Int("attempt", attempt))
			return nil
		}
	}

	if attempt >= proto.MaxAttempts {
		e.mu.Lock()
		rec.Status = StatusExhausted
		e.mu.Unlock()
		if err := e.escalate(ev, attempt); err != nil {
			e.log.Error("escalation send failed", zap.Error(err))
		}
		return fmt.Errorf("recovery: %s for %s: %w", ev.Category, ev.Agent, ErrExhausted)
	}

	e.mu.Lock()
	rec.Status = StatusPending
	e.mu.Unlock()
	return nil
}

// ExecuteAsync runs Execute on its own goroutine with a cancel handle so a
// long backoff chain can be aborted via Resolve.
func (e *Engine) ExecuteAsync(ctx context.Context, ev ErrorEvent) {
	runCtx, cancel := context.WithCancel(ctx)
	key := ev.key()

	e.mu.Lock()
	if prev, ok := e.cancels[key]; ok {
		prev() // supersede any in-flight chain for the same record
	}
	e.cancels[key] = cancel
	e.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			e.mu.Lock()
			if e.cancels[key] != nil {
				delete(e.cancels, key)
			}
			e.mu.Unlock()
		}()
		if err := e.Execute(runCtx, ev); err != nil && !errors.Is(err, context.Canceled) {
			e.log.Warn("recovery execution", zap.String("category", ev.Category), zap.Error(err))
		}
	}()
}

// Resolve marks the record for key resolved and aborts any in-flight
// backoff chain. Used when the underlying error clears on its own.
func (e *Engine) Resolve(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rec, ok := e.records[key]; ok {
		rec.Status = StatusResolved
	}
	if cancel, ok := e.cancels[key]; ok {
		cancel()
		delete(e.cancels, key)
	}
}

// ReportFailure implements consumer.FailureReporter: handler failures enter
// the recovery pipeline as synthetic events.
func (e *Engine) ReportFailure(agent string, msg models.Message, err error) {
	category := Classify(err.Error())
	e.ExecuteAsync(context.Background(), ErrorEvent{
		Category:   category,
		Severity:   e.catalog[category].Severity,
		Agent:      agent,
		MessageID:  msg.ID,
		Summary:    err.Error(),
		DetectedAt: time.Now(),
	})
}

// Records returns a snapshot of all recovery records.
func (e *Engine) Records() []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Record, 0, len(e.records))
	for _, r := range e.records {
		out = append(out, *r)
	}
	return out
}

// escalate emits an ESCALATION message to the coordinator.
func (e *Engine) escalate(ev ErrorEvent, attempts int) error {
	_, err := e.store.Send(e.coord, e.coord, models.TypeEscalation, map[string]interface{}{
		"reason":   "recovery exhausted",
		"category": ev.Category,
		"severity": e.catalog[ev.Category].Severity,
		"agent":    ev.Agent,
		"attempts": attempts,
		"summary":  ev.Summary,
	}, store.SendOpts{})
	if err != nil {
		return fmt.Errorf("recovery: escalate %s: %w", ev.Category, err)
	}
	return nil
}

// defaultRunner provides best-effort built-in remedies. Store-facing steps
// resolve when the store answers a health check; agent-facing steps send a
// nudge message and leave resolution to a later detection cycle.
func (e *Engine) defaultRunner(ctx context.Context, step string, ev ErrorEvent) (bool, error) {
	switch step {
	case "ping_store", "reconnect_store":
		h := e.store.HealthCheck()
		return h.Status == "ok" && ev.Category == CategoryStoreConnection, nil
	case "notify_assignee", "reping_agent":
		if ev.Agent == "" {
			return false, nil
		}
		_, err := e.store.Send(e.coord, ev.Agent, models.TypeInfoRequest, map[string]interface{}{
			"reason":   "recovery check",
			"category": ev.Category,
			"summary":  ev.Summary,
		}, store.SendOpts{})
		return false, err
	default:
		// Steps without a built-in remedy report progress only.
		return false, nil
	}
}
