// Package classify provides the shared task-category classifier used by the
// router, the knowledge indexer, and the impact quantifier. Classification is
// an ordered rule table evaluated deterministically: the highest-weight
// matching rule wins, and ties break in favor of the earliest declared rule.
package classify

import "strings"

// Task categories.
const (
	CategoryEmergency      = "emergency_response"
	CategoryDataAnalysis   = "data_analysis"
	CategoryCommunication  = "customer_communication"
	CategoryScheduling     = "scheduling"
	CategoryBilling        = "billing_finance"
	CategoryCompliance     = "compliance"
	CategoryInfrastructure = "infrastructure"
	CategoryGeneral        = "general"
)

// Business impact levels.
const (
	ImpactCritical = "critical"
	ImpactHigh     = "high"
	ImpactMedium   = "medium"
)

// Rule maps keyword presence in a task description to a category. Weight
// orders competing matches; declaration order breaks weight ties.
type Rule struct {
	Category string
	Keywords []string
	Weight   int
}

// capabilityRule maps keywords to a required capability tag.
type capabilityRule struct {
	Capability string
	Keywords   []string
}

// Classifier evaluates the shared rule tables.
type Classifier struct {
	rules           []Rule
	capabilityRules []capabilityRule
	highImpactWords []string
	urgentWords     []string
}

// New returns a Classifier with the default rule tables.
func New() *Classifier {
	return &Classifier{
		rules: []Rule{
			{CategoryEmergency, []string{"emergency", "urgent", "critical incident", "health alert", "immediate", "sla breach", "outage"}, 10},
			{CategoryCompliance, []string{"compliance", "audit", "regulation", "policy violation", "consent"}, 8},
			{CategoryBilling, []string{"invoice", "billing", "payment", "refund", "revenue", "pricing"}, 7},
			{CategoryDataAnalysis, []string{"analysis", "analytics", "report", "metrics", "forecast", "trend", "dashboard data"}, 6},
			{CategoryCommunication, []string{"customer", "client", "follow up", "outreach", "notification", "reply", "message the"}, 5},
			{CategoryScheduling, []string{"schedule", "calendar", "appointment", "reschedule", "booking", "availability"}, 5},
			{CategoryInfrastructure, []string{"deploy", "server", "database", "migration", "pipeline", "integration", "api"}, 4},
		},
		capabilityRules: []capabilityRule{
			{"emergency_response", []string{"emergency", "urgent", "immediate", "incident", "outage"}},
			{"triage", []string{"triage", "prioritize", "assess", "health alert"}},
			{"data_analysis", []string{"analysis", "analytics", "metrics", "report", "forecast"}},
			{"customer_communication", []string{"customer", "client", "outreach", "follow up", "reply"}},
			{"scheduling", []string{"schedule", "calendar", "appointment", "booking"}},
			{"billing", []string{"invoice", "billing", "payment", "refund"}},
			{"compliance", []string{"compliance", "audit", "regulation", "consent"}},
			{"infrastructure", []string{"deploy", "server", "database", "pipeline", "api"}},
		},
		highImpactWords: []string{"revenue", "emergency", "outage", "sla", "churn", "legal", "breach"},
		urgentWords:     []string{"urgent", "immediate", "asap", "emergency", "critical", "now"},
	}
}

// Classify returns the category for a task description. The highest-weight
// rule with at least one keyword match wins; with no match the category is
// general.
func (c *Classifier) Classify(description string) string {
	text := strings.ToLower(description)
	best := CategoryGeneral
	bestWeight := 0
	for _, r := range c.rules {
		if r.Weight <= bestWeight {
			continue // earlier rule already won at this weight
		}
		for _, kw := range r.Keywords {
			if strings.Contains(text, kw) {
				best = r.Category
				bestWeight = r.Weight
				break
			}
		}
	}
	return best
}

// MatchedKeywords returns the rule keywords present in the description for
// the description's category. Used as evidence in routing reasoning.
func (c *Classifier) MatchedKeywords(description string) []string {
	text := strings.ToLower(description)
	category := c.Classify(description)
	var matched []string
	for _, r := range c.rules {
		if r.Category != category {
			continue
		}
		for _, kw := range r.Keywords {
			if strings.Contains(text, kw) {
				matched = append(matched, kw)
			}
		}
	}
	return matched
}

// RequiredCapabilities derives capability tags from keyword presence.
// Returns at least one tag: general_assistance when nothing matches.
func (c *Classifier) RequiredCapabilities(description string) []string {
	text := strings.ToLower(description)
	var caps []string
	for _, cr := range c.capabilityRules {
		for _, kw := range cr.Keywords {
			if strings.Contains(text, kw) {
				caps = append(caps, cr.Capability)
				break
			}
		}
	}
	if len(caps) == 0 {
		caps = []string{"general_assistance"}
	}
	return caps
}

// BusinessImpact combines the caller-declared urgency with high-impact
// keyword presence.
func (c *Classifier) BusinessImpact(description, urgency string) string {
	if urgency == "critical" {
		return ImpactCritical
	}
	text := strings.ToLower(description)
	for _, kw := range c.highImpactWords {
		if strings.Contains(text, kw) {
			if urgency == "high" {
				return ImpactCritical
			}
			return ImpactHigh
		}
	}
	if urgency == "high" {
		return ImpactHigh
	}
	return ImpactMedium
}

// IsUrgent reports whether the text carries urgency-signaling keywords.
func (c *Classifier) IsUrgent(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range c.urgentWords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Categories returns all known categories in rule order, general last.
func (c *Classifier) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range c.rules {
		if !seen[r.Category] {
			seen[r.Category] = true
			out = append(out, r.Category)
		}
	}
	return append(out, CategoryGeneral)
}
