// Package router assigns incoming work to the best-fit agent based on the
// shared classifier, declared capability profiles, and current load.
package router

import (
	"fmt"
	"strings"
	"time"

	"github.com/davisfield/switchboard/internal/classify"
	"github.com/davisfield/switchboard/internal/config"
	"github.com/davisfield/switchboard/internal/directory"
	"github.com/davisfield/switchboard/internal/store"
)

// Capability score weights.
const (
	scorePrimary   = 3
	scoreSecondary = 1
	scoreForbidden = -5
	scoreTierMatch = 1
)

// Router computes routing decisions. Construct one per process and share it;
// all state lives in the injected services.
type Router struct {
	store       *store.Store
	dir         *directory.Directory
	cls         *classify.Classifier
	directRules map[string]string
	loadWindow  time.Duration
}

// New creates a Router.
func New(st *store.Store, dir *directory.Directory, cls *classify.Classifier, routing config.RoutingConfig) (*Router, error) {
	if st == nil {
		return nil, fmt.Errorf("router: store is required")
	}
	if dir == nil {
		return nil, fmt.Errorf("router: directory is required")
	}
	if cls == nil {
		return nil, fmt.Errorf("router: classifier is required")
	}
	window := time.Duration(routing.LoadWindowHours) * time.Hour
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Router{
		store:       st,
		dir:         dir,
		cls:         cls,
		directRules: routing.DirectRules,
		loadWindow:  window,
	}, nil
}

// Decision is the result of routing a task description.
type Decision struct {
	Category             string        `json:"category"`
	RequiredCapabilities []string      `json:"required_capabilities"`
	BusinessImpact       string        `json:"business_impact"`
	Agent                string        `json:"agent"`
	Reasoning            string        `json:"reasoning"`
	EstimatedDuration    time.Duration `json:"estimated_duration"`
}

// Route classifies taskDescription and selects the best-fit agent. Direct
// category rules take precedence over capability scoring; an overloaded
// selection falls back to capability-overlapping agents with capacity, and
// finally to the coordinator.
func (r *Router) Route(taskDescription, requestingAgent, urgency string) (*Decision, error) {
	if strings.TrimSpace(taskDescription) == "" {
		return nil, fmt.Errorf("router: task description is required")
	}
	if !r.dir.IsRegistered(requestingAgent) {
		return nil, fmt.Errorf("router: unregistered requesting agent %q", requestingAgent)
	}

	category := r.cls.Classify(taskDescription)
	caps := r.cls.RequiredCapabilities(taskDescription)
	impact := r.cls.BusinessImpact(taskDescription, urgency)

	var reasons []string
	reasons = append(reasons, fmt.Sprintf("category %s (keywords: %s)",
		category, strings.Join(r.cls.MatchedKeywords(taskDescription), ", ")))

	// Direct rule wins over capability scoring.
	candidate := ""
	if direct, ok := r.directRules[category]; ok && r.dir.IsRegistered(direct) {
		candidate = direct
		reasons = append(reasons, fmt.Sprintf("direct rule %s -> %s", category, direct))
	} else {
		scored, why := r.scoreAgents(caps, impact, requestingAgent)
		candidate = scored
		reasons = append(reasons, why)
	}

	// Overload fallback.
	load, err := r.CheckLoad(candidate)
	if err != nil {
		return nil, err
	}
	if !load.IsAvailable {
		reasons = append(reasons, fmt.Sprintf("%s at capacity (%d/%d open)",
			candidate, load.OpenTasks, load.MaxConcurrent))
		alt, why, err := r.findAlternate(caps, candidate, requestingAgent)
		if err != nil {
			return nil, err
		}
		candidate = alt
		reasons = append(reasons, why)
	}

	return &Decision{
		Category:             category,
		RequiredCapabilities: caps,
		BusinessImpact:       impact,
		Agent:                candidate,
		Reasoning:            strings.Join(reasons, "; "),
		EstimatedDuration:    estimateDuration(category, impact),
	}, nil
}

// scoreAgents picks the max-scoring agent by capability match: +3 per
// required capability in primaries, +1 in secondaries, -5 per forbidden
// match, +1 for a matching business-impact tier. Ties resolve to the agent
// declared earliest in the directory.
func (r *Router) scoreAgents(caps []string, impact, requestingAgent string) (string, string) {
	best := ""
	bestScore := 0
	for _, p := range r.dir.All() {
		if p.Name == requestingAgent {
			continue
		}
		score := scoreProfile(&p, caps, impact)
		if best == "" || score > bestScore {
			best = p.Name
			bestScore = score
		}
	}
	if best == "" {
		best = r.dir.Coordinator()
		return best, "no scorable agents, defaulting to coordinator"
	}
	return best, fmt.Sprintf("capability score %d for %s", bestScore, best)
}

func scoreProfile(p *directory.Profile, caps []string, impact string) int {
	score := 0
	for _, c := range caps {
		switch {
		case p.Forbids(c):
			score += scoreForbidden
		case p.HasPrimary(c):
			score += scorePrimary
		case p.HasSecondary(c):
			score += scoreSecondary
		}
	}
	if p.BusinessImpactTier == impact {
		score += scoreTierMatch
	}
	return score
}

// findAlternate searches agents with capability overlap and spare capacity,
// preferring the highest capability score. Falls back to the coordinator.
func (r *Router) findAlternate(caps []string, exclude, requestingAgent string) (string, string, error) {
	best := ""
	bestScore := 0
	for _, p := range r.dir.All() {
		if p.Name == exclude || p.Name == requestingAgent {
			continue
		}
		if !overlaps(&p, caps) {
			continue
		}
		load, err := r.CheckLoad(p.Name)
		if err != nil {
			return "", "", err
		}
		if !load.IsAvailable {
			continue
		}
		score := scoreProfile(&p, caps, "")
		if best == "" || score > bestScore {
			best = p.Name
			bestScore = score
		}
	}
	if best != "" {
		return best, fmt.Sprintf("rerouted to %s (capability overlap, capacity available)", best), nil
	}
	coord := r.dir.Coordinator()
	return coord, fmt.Sprintf("no available specialist, falling back to coordinator %s", coord), nil
}

func overlaps(p *directory.Profile, caps []string) bool {
	for _, c := range caps {
		if p.HasPrimary(c) || p.HasSecondary(c) {
			return true
		}
	}
	return false
}

// LoadStatus reports an agent's open-delegation load against its limit.
type LoadStatus struct {
	Agent         string `json:"agent"`
	OpenTasks     int    `json:"open_tasks"`
	MaxConcurrent int    `json:"max_concurrent"`
	IsAvailable   bool   `json:"is_available"`
}

// CheckLoad counts the agent's open delegations in the trailing load window
// and compares against its declared concurrency limit.
func (r *Router) CheckLoad(agent string) (*LoadStatus, error) {
	profile, err := r.dir.Resolve(agent)
	if err != nil {
		return nil, fmt.Errorf("router: check load: %w", err)
	}
	open, err := r.store.OpenDelegations(agent, r.loadWindow)
	if err != nil {
		return nil, fmt.Errorf("router: check load: %w", err)
	}
	return &LoadStatus{
		Agent:         agent,
		OpenTasks:     open,
		MaxConcurrent: profile.MaxConcurrentTasks,
		IsAvailable:   open < profile.MaxConcurrentTasks,
	}, nil
}

// estimateDuration derives a rough task duration from category and impact.
// Higher impact widens the estimate: those tasks carry review overhead.
func estimateDuration(category, impact string) time.Duration {
	base := map[string]time.Duration{
		classify.CategoryEmergency:      30 * time.Minute,
		classify.CategoryDataAnalysis:   4 * time.Hour,
		classify.CategoryCommunication:  time.Hour,
		classify.CategoryScheduling:     30 * time.Minute,
		classify.CategoryBilling:        2 * time.Hour,
		classify.CategoryCompliance:     6 * time.Hour,
		classify.CategoryInfrastructure: 3 * time.Hour,
		classify.CategoryGeneral:        2 * time.Hour,
	}
	d, ok := base[category]
	if !ok {
		d = 2 * time.Hour
	}
	switch impact {
	case classify.ImpactCritical:
		return d * 2
	case classify.ImpactHigh:
		return d * 3 / 2
	default:
		return d
	}
}
