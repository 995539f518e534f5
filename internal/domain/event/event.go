package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event represents a domain event raised by the approval engine
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	ApprovalID    string                 `json:"approval_id"`
	Actor         string                 `json:"actor,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with a generated ID and the current time
func NewEvent(eventType Type, approvalID string, payload map[string]interface{}) *Event {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		ApprovalID:    approvalID,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
		CorrelationID: approvalID,
	}
}

// WithActor returns a copy of the event attributed to actor
func (e *Event) WithActor(actor string) *Event {
	c := e.clone()
	c.Actor = actor
	return c
}

// WithPayload returns a new Event with an added payload key-value pair
func (e *Event) WithPayload(key string, value interface{}) *Event {
	c := e.clone()
	c.Payload[key] = value
	return c
}

func (e *Event) clone() *Event {
	payload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		payload[k] = v
	}
	c := *e
	c.Payload = payload
	return &c
}

// PayloadJSON serializes the payload for storage
func (e *Event) PayloadJSON() string {
	if len(e.Payload) == 0 {
		return "{}"
	}
	b, err := json.Marshal(e.Payload)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an integer value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}

// GetPayloadBool retrieves a bool value from the payload
func (e *Event) GetPayloadBool(key string) bool {
	if val, ok := e.Payload[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}
