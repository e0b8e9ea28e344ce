// Package monitor runs the long-lived scanning loop that owns every
// read-only consumer of the message stream: blocker detection, error
// recovery, risk prediction, knowledge indexing and impact reporting.
package monitor

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/davisfield/switchboard/internal/config"
	"github.com/davisfield/switchboard/internal/detect"
	"github.com/davisfield/switchboard/internal/impact"
	"github.com/davisfield/switchboard/internal/knowledge"
	"github.com/davisfield/switchboard/internal/models"
	"github.com/davisfield/switchboard/internal/notify"
	"github.com/davisfield/switchboard/internal/recovery"
	"github.com/davisfield/switchboard/internal/store"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const defaultPollInterval = 30 * time.Second

// cronParser uses standard 5-field cron expressions (minute, hour, dom,
// month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Opts holds parameters for creating a Monitor.
type Opts struct {
	Store        *store.Store
	Detector     *detect.Detector
	Recovery     *recovery.Engine
	Predictor    *detect.Predictor
	Indexer      *knowledge.Indexer
	Quantifier   *impact.Quantifier
	Notifier     *notify.Notifier // optional; nil disables chat fan-out
	Window       time.Duration
	PollInterval time.Duration
	Retention    config.RetentionConfig
	Log          *zap.Logger
}

// Monitor owns the scanning loop and caches each cycle's results for the
// status server.
type Monitor struct {
	st    *store.Store
	det   *detect.Detector
	rec   *recovery.Engine
	pred  *detect.Predictor
	idx   *knowledge.Indexer
	quant *impact.Quantifier
	ntf   *notify.Notifier

	window       time.Duration
	pollInterval time.Duration
	retention    config.RetentionConfig
	log          *zap.Logger

	lastNotified uint // highest message id already fanned out to chat

	mu          sync.RWMutex
	lastMatches []detect.Match
	lastHealth  detect.HealthScore
	lastRisk    detect.Risk
	lastReport  impact.Report
	cycles      int
}

// New builds a Monitor. Every scanner is required; the notifier is not.
func New(opts Opts) (*Monitor, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("monitor: store is required")
	}
	if opts.Detector == nil {
		return nil, fmt.Errorf("monitor: detector is required")
	}
	if opts.Recovery == nil {
		return nil, fmt.Errorf("monitor: recovery engine is required")
	}
	if opts.Predictor == nil {
		return nil, fmt.Errorf("monitor: predictor is required")
	}
	if opts.Indexer == nil {
		return nil, fmt.Errorf("monitor: indexer is required")
	}
	if opts.Quantifier == nil {
		return nil, fmt.Errorf("monitor: quantifier is required")
	}
	if opts.Window <= 0 {
		opts.Window = time.Hour
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.New(nil, opts.Log)
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Monitor{
		st:           opts.Store,
		det:          opts.Detector,
		rec:          opts.Recovery,
		pred:         opts.Predictor,
		idx:          opts.Indexer,
		quant:        opts.Quantifier,
		ntf:          opts.Notifier,
		window:       opts.Window,
		pollInterval: opts.PollInterval,
		retention:    opts.Retention,
		log:          opts.Log,
	}, nil
}

// Run loops until the context is cancelled: one Cycle per poll interval,
// plus the cron-scheduled retention sweep.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("monitor starting",
		zap.Duration("poll_interval", m.pollInterval),
		zap.Duration("window", m.window),
		zap.String("retention_schedule", m.retention.Schedule))

	// A restart must not replay alerts already sitting in the window:
	// start the fan-out high-water mark at the newest existing message.
	if window, err := m.st.Window(m.window); err == nil {
		for _, msg := range window {
			if msg.ID > m.lastNotified {
				m.lastNotified = msg.ID
			}
		}
	}

	nextSweep := m.nextSweepTime()
	for {
		select {
		case <-ctx.Done():
			m.log.Info("monitor stopped")
			return nil
		default:
		}

		m.Cycle(ctx)

		if !nextSweep.IsZero() && !time.Now().Before(nextSweep) {
			m.sweep()
			nextSweep = m.nextSweepTime()
		}

		sleepWithContext(ctx, m.pollInterval)
	}
}

// Cycle fetches the trailing window once and runs every scanning phase over
// it. Each phase is isolated: one failing never skips the rest.
func (m *Monitor) Cycle(ctx context.Context) {
	window, err := m.st.Window(m.window)
	if err != nil {
		m.log.Warn("window fetch failed", zap.Error(err))
		return
	}

	// Phase 1: blocker patterns.
	matches := m.det.Scan(window)
	if len(matches) > 0 {
		m.log.Info("blocker patterns matched", zap.Int("count", len(matches)))
	}

	// Phase 2: error recovery.
	for _, ev := range m.rec.Detect(window) {
		m.rec.ExecuteAsync(ctx, ev)
	}

	// Phase 3: risk prediction.
	risk := m.pred.Assess(window)
	if _, err := m.pred.Alert(risk); err != nil {
		m.log.Warn("predictive alert failed", zap.Error(err))
	}

	// Phase 4: knowledge indexing.
	if added := m.idx.Index(window); added > 0 {
		m.log.Info("knowledge indexed", zap.Int("added", added))
	}

	// Phase 5: impact report.
	report := m.quant.Report(window, m.window)

	// Phase 6: fan new alerts out to chat.
	m.fanOut(ctx, window)

	m.mu.Lock()
	m.lastMatches = matches
	m.lastHealth = m.det.Health(window)
	m.lastRisk = risk
	m.lastReport = report
	m.cycles++
	m.mu.Unlock()
}

// fanOut broadcasts escalations and predictive alerts that arrived since the
// last cycle. The high-water mark covers every message in the window, so an
// alert is announced exactly once.
func (m *Monitor) fanOut(ctx context.Context, window []models.Message) {
	for _, msg := range window {
		if msg.ID <= m.lastNotified {
			continue
		}
		switch msg.Type {
		case models.TypeEscalation:
			m.ntf.Broadcast(ctx, notify.Notice{
				Title:    "Escalation",
				Body:     msg.PayloadField("reason"),
				Severity: payloadSeverity(msg),
				Fields: []notify.Field{
					{Name: "agent", Value: msg.PayloadField("agent")},
					{Name: "category", Value: msg.PayloadField("category")},
				},
			})
		case models.TypePredictiveAlert:
			m.ntf.Broadcast(ctx, notify.Notice{
				Title:    "Predictive alert",
				Body:     "coordination breakdown risk " + payloadProbability(msg),
				Severity: "high",
				Fields: []notify.Field{
					{Name: "time to occurrence", Value: msg.PayloadField("time_to_occurrence")},
				},
			})
		}
	}
	for _, msg := range window {
		if msg.ID > m.lastNotified {
			m.lastNotified = msg.ID
		}
	}
}

// sweep runs the retention cleanup.
func (m *Monitor) sweep() {
	removed, err := m.st.Cleanup(m.retention.Days, m.retention.ExcludeSeverities)
	if err != nil {
		m.log.Warn("retention sweep failed", zap.Error(err))
		return
	}
	m.log.Info("retention sweep",
		zap.Int64("removed", removed),
		zap.Int("older_than_days", m.retention.Days))
}

// nextSweepTime parses the 5-field retention schedule. Zero time disables
// the sweep.
func (m *Monitor) nextSweepTime() time.Time {
	if m.retention.Schedule == "" {
		return time.Time{}
	}
	sched, err := cronParser.Parse(m.retention.Schedule)
	if err != nil {
		m.log.Warn("bad retention schedule",
			zap.String("schedule", m.retention.Schedule), zap.Error(err))
		return time.Time{}
	}
	return sched.Next(time.Now())
}

// Health returns the last cycle's composite health score.
func (m *Monitor) Health() detect.HealthScore {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHealth
}

// Blockers returns the last cycle's blocker pattern matches.
func (m *Monitor) Blockers() []detect.Match {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]detect.Match, len(m.lastMatches))
	copy(out, m.lastMatches)
	return out
}

// Risk returns the last cycle's risk assessment.
func (m *Monitor) Risk() detect.Risk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRisk
}

// Impact returns the last cycle's impact report.
func (m *Monitor) Impact() impact.Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastReport
}

// Cycles returns how many scan cycles have completed.
func (m *Monitor) Cycles() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cycles
}

func payloadSeverity(msg models.Message) string {
	if s := msg.PayloadField("severity"); s != "" {
		return s
	}
	return "high"
}

// sleepWithContext waits for d or until ctx is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// payloadProbability renders the alert's probability field for chat display.
func payloadProbability(msg models.Message) string {
	fields, err := msg.PayloadMap()
	if err != nil {
		return "unknown"
	}
	p, ok := fields["probability"].(float64)
	if !ok {
		return "unknown"
	}
	return strconv.FormatFloat(p, 'f', 2, 64)
}
