// Package knowledge mines the message stream for high-value content and
// indexes it for search and gated sharing between agents.
package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/davisfield/switchboard/internal/classify"
	"github.com/davisfield/switchboard/internal/config"
	"github.com/davisfield/switchboard/internal/directory"
	"github.com/davisfield/switchboard/internal/models"
	"github.com/davisfield/switchboard/internal/store"
	"go.uber.org/zap"
)

// ErrAccessDenied is returned when an agent's role is not permitted to read
// a knowledge category.
var ErrAccessDenied = errors.New("access denied")

// Item is one indexed piece of knowledge derived from a message. Items are
// rebuilt from the stream on restart; the index carries no durability of its
// own.
type Item struct {
	ID                string    `json:"id"`
	Category          string    `json:"category"`
	Tags              []string  `json:"tags"`
	Content           string    `json:"content"`
	Confidence        float64   `json:"confidence"`
	BusinessRelevance float64   `json:"business_relevance"`
	SourceAgent       string    `json:"source_agent"`
	Timestamp         time.Time `json:"timestamp"`
}

// message types worth indexing
var highValueTypes = map[string]bool{
	models.TypeCompletion:     true,
	models.TypeKnowledgeShare: true,
	models.TypeStrategicQuery: true,
	models.TypeImpactReport:   true,
	models.TypeError:          true,
}

// payload fields tried in order when extracting item content
var contentFields = []string{"content", "summary", "result", "detail", "description", "task", "query"}

// Indexer builds and serves the in-memory knowledge index.
type Indexer struct {
	cfg config.KnowledgeConfig
	dir *directory.Directory
	cls *classify.Classifier
	st  *store.Store
	log *zap.Logger

	mu         sync.RWMutex
	byID       map[string]*Item
	byCategory map[string][]*Item
	byTag      map[string][]*Item
	bySource   map[string][]*Item
}

// New builds an empty Indexer sharing the router's classifier.
func New(cfg config.KnowledgeConfig, st *store.Store, dir *directory.Directory, cls *classify.Classifier, log *zap.Logger) (*Indexer, error) {
	if st == nil {
		return nil, fmt.Errorf("knowledge: store is required")
	}
	if dir == nil {
		return nil, fmt.Errorf("knowledge: directory is required")
	}
	if cls == nil {
		return nil, fmt.Errorf("knowledge: classifier is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Indexer{
		cfg:        cfg,
		dir:        dir,
		cls:        cls,
		st:         st,
		log:        log,
		byID:       make(map[string]*Item),
		byCategory: make(map[string][]*Item),
		byTag:      make(map[string][]*Item),
		bySource:   make(map[string][]*Item),
	}, nil
}

// Index scans the window and adds every qualifying message to the index.
// Returns the number of new items. Re-indexing the same window is a no-op:
// item ids are deterministic.
func (ix *Indexer) Index(window []models.Message) int {
	added := 0
	for _, msg := range window {
		if !highValueTypes[msg.Type] || len(msg.Payload) < ix.cfg.MinPayloadBytes {
			continue
		}
		item := ix.build(msg)
		if ix.add(item) {
			added++
		}
	}
	return added
}

// build derives an Item from a qualifying message.
func (ix *Indexer) build(msg models.Message) *Item {
	content := extractContent(msg)
	return &Item{
		ID:                itemID(msg.Sender, msg.CreatedAt, content),
		Category:          ix.cls.Classify(content),
		Tags:              ix.tags(content),
		Content:           content,
		Confidence:        ix.confidence(msg),
		BusinessRelevance: ix.relevance(content),
		SourceAgent:       msg.Sender,
		Timestamp:         msg.CreatedAt,
	}
}

// add inserts the item into every bucket unless the id is already known.
func (ix *Indexer) add(item *Item) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.byID[item.ID]; ok {
		return false
	}
	ix.byID[item.ID] = item
	ix.byCategory[item.Category] = append(ix.byCategory[item.Category], item)
	for _, tag := range item.Tags {
		ix.byTag[tag] = append(ix.byTag[tag], item)
	}
	ix.bySource[item.SourceAgent] = append(ix.bySource[item.SourceAgent], item)
	return true
}

// itemID is a deterministic hash of source, timestamp and a content prefix,
// so the same message always indexes to the same id across restarts.
func itemID(source string, ts time.Time, content string) string {
	prefix := content
	if len(prefix) > 32 {
		prefix = prefix[:32]
	}
	sum := sha256.Sum256([]byte(source + "|" + ts.UTC().Format(time.RFC3339Nano) + "|" + prefix))
	return hex.EncodeToString(sum[:8])
}

// extractContent pulls a normalized content string from the first populated
// priority field, falling back to the raw payload.
func extractContent(msg models.Message) string {
	for _, field := range contentFields {
		if v := msg.PayloadField(field); v != "" {
			return strings.TrimSpace(v)
		}
	}
	return strings.TrimSpace(msg.Payload)
}

// tags are the classifier keywords present in the content, plus an urgency
// marker when applicable.
func (ix *Indexer) tags(content string) []string {
	tags := ix.cls.MatchedKeywords(content)
	if ix.cls.IsUrgent(content) {
		tags = append(tags, "urgent")
	}
	return tags
}

// confidence scores source credibility, message type and payload richness.
func (ix *Indexer) confidence(msg models.Message) float64 {
	score := 0.5
	if p, err := ix.dir.Resolve(msg.Sender); err == nil {
		switch p.Role {
		case "coordinator":
			score = 0.8
		case "specialist":
			score = 0.7
		}
	}
	switch msg.Type {
	case models.TypeKnowledgeShare:
		score += 0.15
	case models.TypeCompletion, models.TypeImpactReport:
		score += 0.1
	}
	if len(msg.Payload) > 500 {
		score += 0.05
	}
	if score > 1 {
		score = 1
	}
	return score
}

// relevance weighs business-impact keywords in the content.
func (ix *Indexer) relevance(content string) float64 {
	score := 0.4
	switch ix.cls.BusinessImpact(content, "") {
	case classify.ImpactCritical:
		score = 0.9
	case classify.ImpactHigh:
		score = 0.7
	}
	if ix.cls.IsUrgent(content) {
		score += 0.1
	}
	if score > 1 {
		score = 1
	}
	return score
}

// Get returns the item for id, or store.ErrNotFound.
func (ix *Indexer) Get(id string) (*Item, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	item, ok := ix.byID[id]
	if !ok {
		return nil, fmt.Errorf("knowledge: item %s: %w", id, store.ErrNotFound)
	}
	cp := *item
	return &cp, nil
}

// Len returns the number of indexed items.
func (ix *Indexer) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byID)
}

// Share sends the item to target as a KNOWLEDGE_SHARE message after checking
// that the target's role may read the item's category.
func (ix *Indexer) Share(itemID, target, by string) (*models.Message, error) {
	item, err := ix.Get(itemID)
	if err != nil {
		return nil, err
	}
	profile, err := ix.dir.Resolve(target)
	if err != nil {
		return nil, fmt.Errorf("knowledge: share target: %w", err)
	}
	if !ix.canAccess(item.Category, profile.Role) {
		return nil, fmt.Errorf("knowledge: share %s with role %s: %w", item.Category, profile.Role, ErrAccessDenied)
	}
	msg, err := ix.st.Send(by, target, models.TypeKnowledgeShare, map[string]interface{}{
		"knowledge_id":       item.ID,
		"category":           item.Category,
		"content":            item.Content,
		"tags":               item.Tags,
		"confidence":         item.Confidence,
		"business_relevance": item.BusinessRelevance,
		"source_agent":       item.SourceAgent,
	}, store.SendOpts{})
	if err != nil {
		return nil, fmt.Errorf("knowledge: share send: %w", err)
	}
	return msg, nil
}

// canAccess checks the category's permitted roles. A category absent from
// the access table is readable by every role.
func (ix *Indexer) canAccess(category, role string) bool {
	roles, ok := ix.cfg.AccessControl[category]
	if !ok {
		return true
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
