package knowledge

import (
	"math"
	"testing"
	"time"

	"github.com/davisfield/switchboard/internal/classify"
	"github.com/davisfield/switchboard/internal/models"
)

func seedIndex(t *testing.T) *Indexer {
	t.Helper()
	ix, _ := testIndexer(t)
	window := []models.Message{
		kmsg(1, "analyst", models.TypeCompletion,
			`{"summary":"invoice reconciliation workflow for payment disputes"}`, 48*time.Hour),
		kmsg(2, "analyst", models.TypeCompletion,
			`{"summary":"metrics forecast and trend analysis for the weekly report"}`, 2*time.Hour),
		kmsg(3, "coordinator", models.TypeKnowledgeShare,
			`{"content":"customer outreach template for churn follow up"}`, time.Hour),
	}
	if added := ix.Index(window); added != 3 {
		t.Fatalf("seed added = %d, want 3", added)
	}
	return ix
}

func TestSearch_ExactPhraseRanksFirst(t *testing.T) {
	ix := seedIndex(t)

	results := ix.Search("trend analysis", Filters{})
	if len(results) == 0 {
		t.Fatal("no results")
	}
	if results[0].Item.Category != classify.CategoryDataAnalysis {
		t.Errorf("top category = %q, want data_analysis", results[0].Item.Category)
	}
}

func TestSearch_PunctuationOnlyQuery(t *testing.T) {
	ix, _ := testIndexer(t)
	window := []models.Message{
		kmsg(1, "analyst", models.TypeCompletion,
			`{"summary":"invoice reconciliation pending... awaiting payment dispute details"}`, time.Hour),
	}
	if added := ix.Index(window); added != 1 {
		t.Fatalf("added = %d, want 1", added)
	}

	// "..." matches as an exact phrase but yields no query words; the
	// score must stay finite.
	results := ix.Search("...", Filters{})
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if math.IsNaN(results[0].Score) || results[0].Score <= 0 {
		t.Errorf("score = %v, want a positive number", results[0].Score)
	}
}

func TestSearch_NoCommonality(t *testing.T) {
	ix := seedIndex(t)
	if results := ix.Search("kubernetes helm chart", Filters{}); len(results) != 0 {
		t.Errorf("results = %d, want 0", len(results))
	}
}

func TestSearch_CategoryFilter(t *testing.T) {
	ix := seedIndex(t)
	results := ix.Search("report", Filters{Category: classify.CategoryDataAnalysis})
	for _, r := range results {
		if r.Item.Category != classify.CategoryDataAnalysis {
			t.Errorf("category = %q leaked through filter", r.Item.Category)
		}
	}
	if len(results) != 1 {
		t.Errorf("results = %d, want 1", len(results))
	}
}

func TestSearch_SourceFilter(t *testing.T) {
	ix := seedIndex(t)
	results := ix.Search("customer outreach", Filters{Source: "coordinator"})
	if len(results) != 1 || results[0].Item.SourceAgent != "coordinator" {
		t.Errorf("results = %+v, want one coordinator item", results)
	}
}

func TestSearch_TagFilter(t *testing.T) {
	ix := seedIndex(t)
	results := ix.Search("invoice", Filters{Tag: "invoice"})
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].Item.Category != classify.CategoryBilling {
		t.Errorf("category = %q, want billing_finance", results[0].Item.Category)
	}
}

// The intern role may not read billing_finance items, so the billing item is
// filtered out of its searches.
func TestSearch_AccessControl(t *testing.T) {
	ix := seedIndex(t)

	if results := ix.Search("invoice reconciliation", Filters{Requester: "intern"}); len(results) != 0 {
		t.Errorf("results = %d, want 0 for intern", len(results))
	}
	if results := ix.Search("invoice reconciliation", Filters{Requester: "analyst"}); len(results) != 1 {
		t.Errorf("results = %d, want 1 for analyst", len(results))
	}
}

func TestSearch_UnknownRequester(t *testing.T) {
	ix := seedIndex(t)
	if results := ix.Search("invoice", Filters{Requester: "ghost"}); results != nil {
		t.Errorf("results = %+v, want nil", results)
	}
}

func TestSearch_Limit(t *testing.T) {
	ix := seedIndex(t)
	results := ix.Search("", Filters{Limit: 2})
	if len(results) != 2 {
		t.Errorf("results = %d, want 2", len(results))
	}
}

func TestSearch_EmptyQueryRanksByRecency(t *testing.T) {
	ix := seedIndex(t)
	results := ix.Search("", Filters{Source: "analyst"})
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if !results[0].Item.Timestamp.After(results[1].Item.Timestamp) {
		t.Error("empty query results not ordered newest-first")
	}
}

func TestRecency(t *testing.T) {
	now := time.Now()
	if r := recency(now, now); r != 1 {
		t.Errorf("recency(now) = %v, want 1", r)
	}
	if r := recency(now.Add(-8*24*time.Hour), now); r != 0 {
		t.Errorf("recency(8d) = %v, want 0", r)
	}
	mid := recency(now.Add(-3*24*time.Hour), now)
	if mid <= 0 || mid >= 1 {
		t.Errorf("recency(3d) = %v, want between 0 and 1", mid)
	}
}
