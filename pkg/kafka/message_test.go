package kafka

import (
	"testing"
)

func TestMessageBuilder_Build(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	msg := NewMessage().
		WithKey("doctor-1").
		WithValue(payload{Name: "checkup"}).
		WithEventType("appointment.created").
		WithSource("appointments").
		WithSchemaVersion("1").
		Build()

	if msg.Key != "doctor-1" {
		t.Errorf("key = %q, want doctor-1", msg.Key)
	}
	if msg.GetEventType() != "appointment.created" {
		t.Errorf("event type = %q", msg.GetEventType())
	}
	if msg.Headers[HeaderSource] != "appointments" {
		t.Errorf("source header = %q", msg.Headers[HeaderSource])
	}
	if msg.GetEventID() == "" {
		t.Errorf("Build must assign an event ID")
	}
	if msg.Headers[HeaderTimestamp] == "" {
		t.Errorf("Build must assign a timestamp header")
	}

	var decoded payload
	if err := msg.DecodeValue(&decoded); err != nil {
		t.Fatalf("DecodeValue: %v", err)
	}
	if decoded.Name != "checkup" {
		t.Errorf("decoded name = %q", decoded.Name)
	}
}

func TestMessageBuilder_ExplicitEventIDKept(t *testing.T) {
	msg := NewMessage().
		WithKey("k").
		WithRawValue([]byte(`{}`)).
		WithEventID("fixed-id").
		Build()

	if msg.GetEventID() != "fixed-id" {
		t.Errorf("explicit event ID should be kept, got %q", msg.GetEventID())
	}
}
