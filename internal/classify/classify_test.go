package classify

import (
	"reflect"
	"testing"
)

func TestClassify(t *testing.T) {
	c := New()

	tests := []struct {
		name string
		text string
		want string
	}{
		{"emergency", "emergency health alert needs immediate review", CategoryEmergency},
		{"billing", "customer asked for a refund on last invoice", CategoryBilling},
		{"analysis", "prepare the weekly metrics report", CategoryDataAnalysis},
		{"scheduling", "reschedule the appointment for tuesday", CategoryScheduling},
		{"compliance", "quarterly audit of consent records", CategoryCompliance},
		{"infrastructure", "run the database migration before deploy", CategoryInfrastructure},
		{"no match", "water the office plants", CategoryGeneral},
		{"empty", "", CategoryGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.text); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

// A description matching both the emergency rule (weight 10) and the billing
// rule (weight 7) must resolve to the higher-weight rule.
func TestClassify_WeightPrecedence(t *testing.T) {
	c := New()
	got := c.Classify("urgent: customer invoice system outage")
	if got != CategoryEmergency {
		t.Errorf("Classify = %q, want %q", got, CategoryEmergency)
	}
}

// Equal-weight matches resolve to the earlier declared rule.
func TestClassify_DeclarationOrderTieBreak(t *testing.T) {
	c := New()
	// "customer" (communication, weight 5) and "schedule" (scheduling,
	// weight 5): communication is declared first.
	got := c.Classify("customer wants to change their schedule")
	if got != CategoryCommunication {
		t.Errorf("Classify = %q, want %q (first declared rule at equal weight)", got, CategoryCommunication)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := New()
	text := "urgent customer billing analysis schedule audit deploy"
	first := c.Classify(text)
	for i := 0; i < 50; i++ {
		if got := c.Classify(text); got != first {
			t.Fatalf("run %d: Classify = %q, first run gave %q", i, got, first)
		}
	}
}

func TestRequiredCapabilities(t *testing.T) {
	c := New()

	caps := c.RequiredCapabilities("emergency triage of incoming health alert")
	want := []string{"emergency_response", "triage"}
	if !reflect.DeepEqual(caps, want) {
		t.Errorf("RequiredCapabilities = %v, want %v", caps, want)
	}
}

func TestRequiredCapabilities_Fallback(t *testing.T) {
	c := New()
	caps := c.RequiredCapabilities("do the thing")
	if len(caps) != 1 || caps[0] != "general_assistance" {
		t.Errorf("RequiredCapabilities = %v, want [general_assistance]", caps)
	}
}

func TestBusinessImpact(t *testing.T) {
	c := New()

	tests := []struct {
		name    string
		text    string
		urgency string
		want    string
	}{
		{"critical urgency wins", "routine task", "critical", ImpactCritical},
		{"high urgency plus impact keyword", "revenue report", "high", ImpactCritical},
		{"impact keyword alone", "churn analysis", "normal", ImpactHigh},
		{"high urgency alone", "routine task", "high", ImpactHigh},
		{"neither", "routine task", "normal", ImpactMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.BusinessImpact(tt.text, tt.urgency); got != tt.want {
				t.Errorf("BusinessImpact = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsUrgent(t *testing.T) {
	c := New()
	if !c.IsUrgent("please handle ASAP") {
		t.Error("IsUrgent(ASAP) = false")
	}
	if c.IsUrgent("whenever you get a chance") {
		t.Error("IsUrgent(casual) = true")
	}
}

func TestMatchedKeywords(t *testing.T) {
	c := New()
	kws := c.MatchedKeywords("emergency outage, act immediate")
	if len(kws) < 2 {
		t.Fatalf("MatchedKeywords = %v, want >= 2 entries", kws)
	}
}

func TestCategories_IncludesGeneralLast(t *testing.T) {
	c := New()
	cats := c.Categories()
	if cats[len(cats)-1] != CategoryGeneral {
		t.Errorf("last category = %q, want general", cats[len(cats)-1])
	}
}
