package knowledge

import (
	"sort"
	"strings"
	"time"
)

// Filters narrows a search. Zero-value fields are ignored; Requester, when
// set, applies the category access table against that agent's role.
type Filters struct {
	Category  string
	Tag       string
	Source    string
	Requester string
	Limit     int
}

// Result is one ranked search hit.
type Result struct {
	Item  Item    `json:"item"`
	Score float64 `json:"score"`
}

// ranking term weights
const (
	scoreExactPhrase = 2.0
	scoreKeyword     = 1.0
	scoreTag         = 0.5
	scoreRecency     = 0.5
)

// Search ranks indexed items against the query. Candidates come from the
// narrowest applicable bucket, then score by exact-phrase presence, keyword
// overlap, tag overlap, recency and the item's business relevance.
func (ix *Indexer) Search(query string, f Filters) []Result {
	ix.mu.RLock()
	candidates := ix.candidates(f)
	ix.mu.RUnlock()

	role := ""
	if f.Requester != "" {
		p, err := ix.dir.Resolve(f.Requester)
		if err != nil {
			return nil
		}
		role = p.Role
	}

	queryLower := strings.ToLower(strings.TrimSpace(query))
	queryWords := fields(queryLower)
	now := time.Now()

	var results []Result
	for _, item := range candidates {
		if f.Category != "" && item.Category != f.Category {
			continue
		}
		if f.Source != "" && item.SourceAgent != f.Source {
			continue
		}
		if role != "" && !ix.canAccess(item.Category, role) {
			continue
		}
		s := score(item, queryLower, queryWords, now)
		if s <= 0 {
			continue
		}
		results = append(results, Result{Item: *item, Score: s})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Item.Timestamp.After(results[j].Item.Timestamp)
	})
	if f.Limit > 0 && len(results) > f.Limit {
		results = results[:f.Limit]
	}
	return results
}

// candidates picks the narrowest bucket for the filters. Caller holds mu.
func (ix *Indexer) candidates(f Filters) []*Item {
	switch {
	case f.Tag != "":
		return ix.byTag[f.Tag]
	case f.Category != "":
		return ix.byCategory[f.Category]
	case f.Source != "":
		return ix.bySource[f.Source]
	default:
		out := make([]*Item, 0, len(ix.byID))
		for _, item := range ix.byID {
			out = append(out, item)
		}
		return out
	}
}

func score(item *Item, queryLower string, queryWords []string, now time.Time) float64 {
	if queryLower == "" {
		return scoreRecency*recency(item.Timestamp, now) + item.BusinessRelevance
	}

	contentLower := strings.ToLower(item.Content)
	var s float64
	if strings.Contains(contentLower, queryLower) {
		s += scoreExactPhrase
	}

	contentWords := make(map[string]bool)
	for _, w := range fields(contentLower) {
		contentWords[w] = true
	}
	tagSet := make(map[string]bool)
	for _, t := range item.Tags {
		tagSet[strings.ToLower(t)] = true
	}

	var kwHits, tagHits int
	for _, w := range queryWords {
		if contentWords[w] {
			kwHits++
		}
		if tagSet[w] {
			tagHits++
		}
	}
	if kwHits == 0 && s == 0 {
		return 0 // nothing in common with the query
	}
	// An all-punctuation query has no words to normalize against.
	if len(queryWords) > 0 {
		s += scoreKeyword * float64(kwHits) / float64(len(queryWords))
		s += scoreTag * float64(tagHits) / float64(len(queryWords))
	}
	s += scoreRecency * recency(item.Timestamp, now)
	s += item.BusinessRelevance
	return s
}

// recency decays linearly from 1 to 0 over seven days.
func recency(ts, now time.Time) float64 {
	age := now.Sub(ts)
	const horizon = 7 * 24 * time.Hour
	if age <= 0 {
		return 1
	}
	if age >= horizon {
		return 0
	}
	return 1 - float64(age)/float64(horizon)
}

// fields splits on whitespace and trims punctuation.
func fields(s string) []string {
	var out []string
	for _, w := range strings.Fields(s) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}
