package models

import (
	"encoding/json"
	"time"
)

// Message statuses. Transitions are monotonic: SENT -> ACKNOWLEDGED.
const (
	StatusSent         = "SENT"
	StatusAcknowledged = "ACKNOWLEDGED"
)

// Message types carried on the bus.
const (
	TypeDelegation      = "TASK_DELEGATION"
	TypeAcceptance      = "TASK_ACCEPTED"
	TypeProgress        = "TASK_PROGRESS"
	TypeCompletion      = "TASK_COMPLETED"
	TypeBlocker         = "BLOCKER_REPORT"
	TypeInfoRequest     = "INFO_REQUEST"
	TypeStrategicQuery  = "STRATEGIC_QUERY"
	TypeImpactReport    = "IMPACT_REPORT"
	TypeError           = "ERROR_NOTIFICATION"
	TypeAcknowledgment  = "ACKNOWLEDGMENT"
	TypeEscalation      = "ESCALATION"
	TypePredictiveAlert = "PREDICTIVE_ALERT"
	TypeKnowledgeShare  = "KNOWLEDGE_SHARE"
	TypeSpecWarning     = "SPECIALIZATION_WARNING"
)

// AllTypes returns the enumerated set of valid message types.
func AllTypes() []string {
	return []string{
		TypeDelegation, TypeAcceptance, TypeProgress, TypeCompletion,
		TypeBlocker, TypeInfoRequest, TypeStrategicQuery, TypeImpactReport,
		TypeError, TypeAcknowledgment, TypeEscalation, TypePredictiveAlert,
		TypeKnowledgeShare, TypeSpecWarning,
	}
}

// ValidType reports whether t is in the enumerated type set.
func ValidType(t string) bool {
	for _, v := range AllTypes() {
		if v == t {
			return true
		}
	}
	return false
}

// Message is the single persisted entity of the coordination bus. Rows are
// immutable after insert except for the acknowledgment fields.
type Message struct {
	ID             uint    `gorm:"primaryKey;autoIncrement"`
	Sender         string  `gorm:"size:64;not null;index"`
	Recipient      string  `gorm:"size:64;not null;index"`
	Type           string  `gorm:"size:48;not null;index"`
	Payload        string  `gorm:"type:text;not null"`
	ContextID      *string `gorm:"size:64;index"`
	Status         string  `gorm:"size:16;not null;default:SENT;index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	AcknowledgedBy *string `gorm:"size:64"`
	AcknowledgedAt *time.Time
}

// PayloadMap deserializes the payload into a map. Returns an error if the
// payload is not a JSON object.
func (m *Message) PayloadMap() (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(m.Payload), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PayloadField returns the string value of a top-level payload field, or
// empty string if absent or non-string.
func (m *Message) PayloadField(key string) string {
	fields, err := m.PayloadMap()
	if err != nil {
		return ""
	}
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}
