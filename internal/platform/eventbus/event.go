package eventbus

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is a named in-process notification. The bus never persists events.
type Event struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

func NewEvent(name string, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{
		ID:        uuid.New(),
		Name:      name,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

// ToMap renders the event as plain JSON-friendly data for the job queue.
func (e Event) ToMap() map[string]any {
	return map[string]any{
		"id":         e.ID.String(),
		"name":       e.Name,
		"payload":    e.Payload,
		"created_at": e.CreatedAt.Format(time.RFC3339Nano),
	}
}

// EventFromMap rebuilds a lightweight view from ToMap output after it has
// travelled through the job queue. Missing or malformed id and timestamp are
// tolerated; name falls back to the given eventName.
func EventFromMap(eventName string, data map[string]any) (Event, error) {
	if eventName == "" {
		if n, ok := data["name"].(string); ok {
			eventName = n
		}
	}
	if eventName == "" {
		return Event{}, fmt.Errorf("eventbus: event data has no name")
	}

	e := Event{Name: eventName, Payload: map[string]any{}}
	if raw, ok := data["id"].(string); ok {
		if id, err := uuid.Parse(raw); err == nil {
			e.ID = id
		}
	}
	if raw, ok := data["created_at"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			e.CreatedAt = ts
		}
	}
	if p, ok := data["payload"].(map[string]any); ok {
		e.Payload = p
	}
	return e, nil
}
