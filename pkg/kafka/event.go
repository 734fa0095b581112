package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TopicPrefix namespaces every topic the storefront writes to.
const TopicPrefix = "storefront"

// SchemaVersion is stamped on every envelope. Bump it when a payload
// changes shape.
const SchemaVersion = 1

// Topic builds "<prefix>.<domain>", e.g. "storefront.catalog".
func Topic(domain string) string {
	return TopicPrefix + "." + domain
}

// Event is the JSON envelope written as the message value. Subject is also
// the message key, which keeps the events of one subject in order.
type Event struct {
	ID            string          `json:"event_id"`
	Type          string          `json:"event_type"`
	Subject       string          `json:"aggregate_id"`
	SubjectType   string          `json:"aggregate_type"`
	Schema        int             `json:"version"`
	OccurredAt    time.Time       `json:"timestamp"`
	Source        string          `json:"source"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"data"`
}

// NewEvent encodes payload into a fresh envelope stamped with a random id
// and the current UTC time.
func NewEvent(eventType, subject, subjectType, source string, payload any) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", eventType, err)
	}

	return &Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		Subject:     subject,
		SubjectType: subjectType,
		Schema:      SchemaVersion,
		OccurredAt:  time.Now().UTC(),
		Source:      source,
		Payload:     raw,
	}, nil
}

// WithCorrelationID ties e to the request that caused it.
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// Encode returns the message value.
func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodePayload unmarshals the payload into target.
func (e *Event) DecodePayload(target any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has no payload", e.ID)
	}
	return json.Unmarshal(e.Payload, target)
}
