// Package detect scans the recent message stream for coordination blockers
// and emerging risk. All scanners are read-only over the message window and
// never fail past their own boundary.
package detect

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/davisfield/switchboard/internal/classify"
	"github.com/davisfield/switchboard/internal/config"
	"github.com/davisfield/switchboard/internal/directory"
	"github.com/davisfield/switchboard/internal/models"
	"go.uber.org/zap"
)

// Blocker pattern names.
const (
	PatternCommunicationBreakdown = "communication_breakdown"
	PatternAgentOverload          = "agent_overload"
	PatternRepeatedFailures       = "repeated_failures"
	PatternEscalationLoop         = "escalation_loop"
	PatternResourceExhaustion     = "resource_exhaustion"
	PatternEmergencyDegradation   = "emergency_degradation"
)

// Pattern severities.
const (
	SeverityCritical = "CRITICAL"
	SeverityHigh     = "HIGH"
	SeverityMedium   = "MEDIUM"
)

// Evidence is one message supporting a pattern match.
type Evidence struct {
	MessageID uint   `json:"message_id"`
	Agent     string `json:"agent"`
	Detail    string `json:"detail"`
}

// Match is one detected blocker pattern with its supporting evidence.
type Match struct {
	Pattern    string     `json:"pattern"`
	Severity   string     `json:"severity"`
	Evidence   []Evidence `json:"evidence"`
	DetectedAt time.Time  `json:"detected_at"`
}

// Detector evaluates the blocker pattern catalog against a message window.
type Detector struct {
	cfg config.DetectorConfig
	dir *directory.Directory
	cls *classify.Classifier
	log *zap.Logger
}

// New builds a Detector. The classifier is shared with the router so failure
// categories group the same way tasks route.
func New(cfg config.DetectorConfig, dir *directory.Directory, cls *classify.Classifier, log *zap.Logger) (*Detector, error) {
	if dir == nil {
		return nil, fmt.Errorf("detect: directory is required")
	}
	if cls == nil {
		return nil, fmt.Errorf("detect: classifier is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Detector{cfg: cfg, dir: dir, cls: cls, log: log}, nil
}

// Scan runs every pattern in the catalog over the window (oldest-first) and
// returns all matches. A pattern that panics internally is logged and
// skipped; detection never takes down the caller.
func (d *Detector) Scan(window []models.Message) []Match {
	now := time.Now()
	patterns := []struct {
		name string
		fn   func([]models.Message, time.Time) *Match
	}{
		{PatternCommunicationBreakdown, d.communicationBreakdown},
		{PatternAgentOverload, d.agentOverload},
		{PatternRepeatedFailures, d.repeatedFailures},
		{PatternEscalationLoop, d.escalationLoop},
		{PatternResourceExhaustion, d.resourceExhaustion},
		{PatternEmergencyDegradation, d.emergencyDegradation},
	}

	var matches []Match
	for _, p := range patterns {
		m := d.runPattern(p.name, p.fn, window, now)
		if m != nil {
			matches = append(matches, *m)
		}
	}
	return matches
}

func (d *Detector) runPattern(name string, fn func([]models.Message, time.Time) *Match, window []models.Message, now time.Time) (m *Match) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Warn("blocker pattern panicked",
				zap.String("pattern", name), zap.Any("panic", r))
			m = nil
		}
	}()
	return fn(window, now)
}

// communicationBreakdown flags delegations older than the acceptance timeout
// with no acceptance from the named recipient.
func (d *Detector) communicationBreakdown(window []models.Message, now time.Time) *Match {
	timeout := time.Duration(d.cfg.AcceptanceTimeoutMins) * time.Minute

	// context id -> accepted by recipient
	accepted := make(map[string]bool)
	// recipient -> latest acceptance time, for unthreaded delegations
	lastAccept := make(map[string]time.Time)
	for _, msg := range window {
		if msg.Type != models.TypeAcceptance {
			continue
		}
		if msg.ContextID != nil {
			accepted[*msg.ContextID] = true
		}
		if msg.CreatedAt.After(lastAccept[msg.Sender]) {
			lastAccept[msg.Sender] = msg.CreatedAt
		}
	}

	var evidence []Evidence
	for _, msg := range window {
		if msg.Type != models.TypeDelegation || now.Sub(msg.CreatedAt) < timeout {
			continue
		}
		if msg.ContextID != nil {
			if accepted[*msg.ContextID] {
				continue
			}
		} else if lastAccept[msg.Recipient].After(msg.CreatedAt) {
			continue
		}
		evidence = append(evidence, Evidence{
			MessageID: msg.ID,
			Agent:     msg.Recipient,
			Detail: fmt.Sprintf("delegation from %s unaccepted for %s",
				msg.Sender, now.Sub(msg.CreatedAt).Round(time.Minute)),
		})
	}
	if len(evidence) == 0 {
		return nil
	}
	return &Match{Pattern: PatternCommunicationBreakdown, Severity: SeverityHigh, Evidence: evidence, DetectedAt: now}
}

// agentOverload flags agents whose assignment rate exceeds their completion
// rate by the configured ratio.
func (d *Detector) agentOverload(window []models.Message, now time.Time) *Match {
	assigned := make(map[string]int)
	completed := make(map[string]int)
	for _, msg := range window {
		switch msg.Type {
		case models.TypeDelegation:
			assigned[msg.Recipient]++
		case models.TypeCompletion:
			completed[msg.Sender]++
		}
	}

	var evidence []Evidence
	for _, p := range d.dir.All() {
		a, c := assigned[p.Name], completed[p.Name]
		if a < p.MaxConcurrentTasks {
			continue // too few assignments to mean anything
		}
		if c > 0 && float64(a)/float64(c) < d.cfg.OverloadRatio {
			continue
		}
		evidence = append(evidence, Evidence{
			Agent:  p.Name,
			Detail: fmt.Sprintf("%d assigned vs %d completed in window", a, c),
		})
	}
	if len(evidence) == 0 {
		return nil
	}
	return &Match{Pattern: PatternAgentOverload, Severity: SeverityMedium, Evidence: evidence, DetectedAt: now}
}

// repeatedFailures flags task categories accumulating failure messages.
func (d *Detector) repeatedFailures(window []models.Message, now time.Time) *Match {
	byCategory := make(map[string][]Evidence)
	for _, msg := range window {
		if msg.Type != models.TypeError && msg.Type != models.TypeBlocker {
			continue
		}
		category := d.cls.Classify(msg.Payload)
		byCategory[category] = append(byCategory[category], Evidence{
			MessageID: msg.ID,
			Agent:     msg.Sender,
			Detail:    fmt.Sprintf("%s failure from %s", category, msg.Sender),
		})
	}

	var evidence []Evidence
	var categories []string
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, c := range categories {
		if len(byCategory[c]) >= d.cfg.RepeatedFailureMin {
			evidence = append(evidence, byCategory[c]...)
		}
	}
	if len(evidence) == 0 {
		return nil
	}
	return &Match{Pattern: PatternRepeatedFailures, Severity: SeverityHigh, Evidence: evidence, DetectedAt: now}
}

// escalationLoop flags task contexts bouncing between agents with no
// completion.
func (d *Detector) escalationLoop(window []models.Message, now time.Time) *Match {
	type thread struct {
		hops      int
		lastPair  string
		completed bool
		firstID   uint
		agents    map[string]bool
	}
	threads := make(map[string]*thread)
	for _, msg := range window {
		if msg.ContextID == nil {
			continue
		}
		th, ok := threads[*msg.ContextID]
		if !ok {
			th = &thread{firstID: msg.ID, agents: make(map[string]bool)}
			threads[*msg.ContextID] = th
		}
		if msg.Type == models.TypeCompletion {
			th.completed = true
			continue
		}
		pair := msg.Sender + ">" + msg.Recipient
		if pair != th.lastPair {
			th.hops++
			th.lastPair = pair
		}
		th.agents[msg.Sender] = true
		th.agents[msg.Recipient] = true
	}

	var evidence []Evidence
	var ids []string
	for id := range threads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		th := threads[id]
		if th.completed || th.hops < d.cfg.EscalationLoopMinHops || len(th.agents) < 2 {
			continue
		}
		evidence = append(evidence, Evidence{
			MessageID: th.firstID,
			Detail:    fmt.Sprintf("context %s bounced %d times across %d agents without completion", id, th.hops, len(th.agents)),
		})
	}
	if len(evidence) == 0 {
		return nil
	}
	return &Match{Pattern: PatternEscalationLoop, Severity: SeverityHigh, Evidence: evidence, DetectedAt: now}
}

// resourceExhaustion flags explicit quota or limit exceedance anywhere in the
// window. Always CRITICAL: exhausted resources degrade every other agent.
func (d *Detector) resourceExhaustion(window []models.Message, now time.Time) *Match {
	var evidence []Evidence
	for _, msg := range window {
		lower := strings.ToLower(msg.Payload)
		if !strings.Contains(lower, "quota exceeded") && !strings.Contains(lower, "limit exceeded") &&
			!strings.Contains(lower, "resource exhausted") {
			continue
		}
		evidence = append(evidence, Evidence{
			MessageID: msg.ID,
			Agent:     msg.Sender,
			Detail:    fmt.Sprintf("%s reported by %s", msg.Type, msg.Sender),
		})
	}
	if len(evidence) == 0 {
		return nil
	}
	return &Match{Pattern: PatternResourceExhaustion, Severity: SeverityCritical, Evidence: evidence, DetectedAt: now}
}

// emergencyDegradation flags emergency-category delegations whose completion
// latency (or open age) has reached 80% of the SLA bound.
func (d *Detector) emergencyDegradation(window []models.Message, now time.Time) *Match {
	sla := time.Duration(d.cfg.EmergencySLAMinutes) * time.Minute
	warnAt := sla * 8 / 10

	completions := make(map[string]time.Time) // context id -> completion time
	for _, msg := range window {
		if msg.Type == models.TypeCompletion && msg.ContextID != nil {
			completions[*msg.ContextID] = msg.CreatedAt
		}
	}

	var evidence []Evidence
	for _, msg := range window {
		if msg.Type != models.TypeDelegation {
			continue
		}
		if d.cls.Classify(msg.Payload) != classify.CategoryEmergency {
			continue
		}
		elapsed := now.Sub(msg.CreatedAt)
		if msg.ContextID != nil {
			if done, ok := completions[*msg.ContextID]; ok {
				elapsed = done.Sub(msg.CreatedAt)
			}
		}
		if elapsed < warnAt {
			continue
		}
		evidence = append(evidence, Evidence{
			MessageID: msg.ID,
			Agent:     msg.Recipient,
			Detail: fmt.Sprintf("emergency task latency %s against %s SLA",
				elapsed.Round(time.Second), sla),
		})
	}
	if len(evidence) == 0 {
		return nil
	}
	return &Match{Pattern: PatternEmergencyDegradation, Severity: SeverityHigh, Evidence: evidence, DetectedAt: now}
}
