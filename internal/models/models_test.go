package models

import "testing"

func TestValidType(t *testing.T) {
	for _, typ := range AllTypes() {
		if !ValidType(typ) {
			t.Errorf("ValidType(%q) = false, want true", typ)
		}
	}
	if ValidType("CARRIER_PIGEON") {
		t.Error("ValidType accepted an unknown type")
	}
	if ValidType("") {
		t.Error("ValidType accepted empty string")
	}
}

func TestPayloadMap(t *testing.T) {
	m := Message{Payload: `{"task_id": 42, "note": "hello"}`}
	fields, err := m.PayloadMap()
	if err != nil {
		t.Fatalf("PayloadMap: %v", err)
	}
	if fields["note"] != "hello" {
		t.Errorf("note = %v, want hello", fields["note"])
	}
}

func TestPayloadMap_Invalid(t *testing.T) {
	m := Message{Payload: `not json`}
	if _, err := m.PayloadMap(); err == nil {
		t.Fatal("expected error for invalid payload")
	}
}

func TestPayloadField(t *testing.T) {
	m := Message{Payload: `{"description": "fix the report", "count": 3}`}
	if got := m.PayloadField("description"); got != "fix the report" {
		t.Errorf("PayloadField(description) = %q", got)
	}
	if got := m.PayloadField("count"); got != "" {
		t.Errorf("PayloadField(count) = %q, want empty for non-string", got)
	}
	if got := m.PayloadField("missing"); got != "" {
		t.Errorf("PayloadField(missing) = %q, want empty", got)
	}
}
