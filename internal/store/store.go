// Package store implements the durable message store client: typed message
// send/receive/acknowledge over a single messages table, with at-least-once
// delivery semantics.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/davisfield/switchboard/internal/directory"
	"github.com/davisfield/switchboard/internal/models"
	"gorm.io/gorm"
)

// Store is the message store client. It is an explicit service instance:
// construct one per database connection and pass it by reference.
type Store struct {
	db  *gorm.DB
	dir *directory.Directory

	subs *subscriptions
}

// New creates a Store over an opened database connection and agent directory.
func New(db *gorm.DB, dir *directory.Directory) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	if dir == nil {
		return nil, fmt.Errorf("store: directory is required")
	}
	return &Store{db: db, dir: dir, subs: newSubscriptions()}, nil
}

// SendOpts holds optional parameters for sending a message.
type SendOpts struct {
	ContextID string // threads related messages; empty for a new standalone message
}

// Send validates and persists a new message, returning the stored record
// with its assigned id and timestamps. Validation failures wrap
// ErrValidation and nothing is persisted.
func (s *Store) Send(sender, recipient, msgType string, payload map[string]interface{}, opts SendOpts) (*models.Message, error) {
	if sender == "" {
		return nil, fmt.Errorf("store: send: sender is required: %w", ErrValidation)
	}
	if recipient == "" {
		return nil, fmt.Errorf("store: send: recipient is required: %w", ErrValidation)
	}
	if !s.dir.IsRegistered(sender) {
		return nil, fmt.Errorf("store: send: unregistered sender %q: %w", sender, ErrValidation)
	}
	if !s.dir.IsRegistered(recipient) {
		return nil, fmt.Errorf("store: send: unregistered recipient %q: %w", recipient, ErrValidation)
	}
	if !models.ValidType(msgType) {
		return nil, fmt.Errorf("store: send: unknown message type %q: %w", msgType, ErrValidation)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("store: send: payload must be a non-empty object: %w", ErrValidation)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("store: send: marshal payload: %w", ErrValidation)
	}

	msg := models.Message{
		Sender:    sender,
		Recipient: recipient,
		Type:      msgType,
		Payload:   string(raw),
		Status:    models.StatusSent,
	}
	if opts.ContextID != "" {
		ctx := opts.ContextID
		msg.ContextID = &ctx
	}

	if err := s.db.Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("store: send: %w: %v", ErrDelivery, err)
	}

	s.subs.dispatch(&msg)
	return &msg, nil
}

// Receive returns messages addressed to recipient, newest first. When
// afterID is non-zero, only messages created strictly after that message's
// creation time are returned. Delivery is at-least-once: a message keeps
// appearing until the caller advances its cursor past it, so callers must
// deduplicate by id.
func (s *Store) Receive(recipient string, afterID uint, limit int, typeFilter ...string) ([]models.Message, error) {
	if recipient == "" {
		return nil, fmt.Errorf("store: receive: recipient is required: %w", ErrValidation)
	}
	if limit <= 0 {
		limit = 50
	}

	q := s.db.Where("recipient = ?", recipient)
	if afterID != 0 {
		var cursor models.Message
		if err := s.db.First(&cursor, afterID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, fmt.Errorf("store: receive: cursor %d: %w", afterID, ErrNotFound)
			}
			return nil, fmt.Errorf("store: receive: %w: %v", ErrDelivery, err)
		}
		q = q.Where("created_at > ?", cursor.CreatedAt)
	}
	if len(typeFilter) > 0 {
		q = q.Where("type IN ?", typeFilter)
	}

	var msgs []models.Message
	if err := q.Order("created_at DESC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("store: receive for %s: %w: %v", recipient, ErrDelivery, err)
	}
	return msgs, nil
}

// Acknowledge transitions a message to ACKNOWLEDGED, stamping who and when.
// Re-acknowledging an already-acknowledged message is a no-op that returns
// the row unchanged.
func (s *Store) Acknowledge(messageID uint, by string) (*models.Message, error) {
	if by == "" {
		return nil, fmt.Errorf("store: acknowledge: by is required: %w", ErrValidation)
	}

	var msg models.Message
	if err := s.db.First(&msg, messageID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("store: acknowledge %d: %w", messageID, ErrNotFound)
		}
		return nil, fmt.Errorf("store: acknowledge %d: %w: %v", messageID, ErrDelivery, err)
	}

	if msg.Status == models.StatusAcknowledged {
		return &msg, nil
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":          models.StatusAcknowledged,
		"acknowledged_by": by,
		"acknowledged_at": now,
	}
	if err := s.db.Model(&models.Message{}).Where("id = ?", messageID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("store: acknowledge %d: %w: %v", messageID, ErrDelivery, err)
	}

	msg.Status = models.StatusAcknowledged
	msg.AcknowledgedBy = &by
	msg.AcknowledgedAt = &now
	return &msg, nil
}

// Window returns all messages created within the trailing duration, oldest
// first. The detector, indexer and quantifier scan this shared window.
func (s *Store) Window(d time.Duration) ([]models.Message, error) {
	cutoff := time.Now().Add(-d)
	var msgs []models.Message
	if err := s.db.Where("created_at >= ?", cutoff).
		Order("created_at ASC").Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("store: window: %w: %v", ErrDelivery, err)
	}
	return msgs, nil
}

// Health describes the result of a store health check.
type Health struct {
	Status string `json:"status"` // "ok" or "unavailable"
	Detail string `json:"detail"`
}

// HealthCheck pings the underlying database and reports row count.
func (s *Store) HealthCheck() Health {
	sqlDB, err := s.db.DB()
	if err != nil {
		return Health{Status: "unavailable", Detail: err.Error()}
	}
	if err := sqlDB.Ping(); err != nil {
		return Health{Status: "unavailable", Detail: err.Error()}
	}
	var count int64
	if err := s.db.Model(&models.Message{}).Count(&count).Error; err != nil {
		return Health{Status: "unavailable", Detail: err.Error()}
	}
	return Health{Status: "ok", Detail: fmt.Sprintf("%d messages stored", count)}
}

// Cleanup batch-deletes messages older than olderThanDays, skipping rows
// whose payload carries an excluded severity. Returns the number removed.
// Escalations are always retained.
func (s *Store) Cleanup(olderThanDays int, excludeSeverities []string) (int64, error) {
	if olderThanDays <= 0 {
		return 0, fmt.Errorf("store: cleanup: olderThanDays must be positive: %w", ErrValidation)
	}

	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	q := s.db.Where("created_at < ?", cutoff).
		Where("type != ?", models.TypeEscalation)
	for _, sev := range excludeSeverities {
		q = q.Where("payload NOT LIKE ?", fmt.Sprintf(`%%"severity":"%s"%%`, sev))
	}

	result := q.Delete(&models.Message{})
	if result.Error != nil {
		return 0, fmt.Errorf("store: cleanup: %w: %v", ErrDelivery, result.Error)
	}
	return result.RowsAffected, nil
}
