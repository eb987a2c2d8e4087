// Package feed fans ledger and table-session mutations out to every terminal
// of a business.
package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
)

type Entity string

const (
	EntityOrderLine    Entity = "order_line"
	EntityTableSession Entity = "table_session"
)

type Event struct {
	EventType  EventType       `json:"eventType"`
	Entity     Entity          `json:"entity"`
	BusinessID string          `json:"businessId"`
	TableID    string          `json:"tableId"`
	Origin     string          `json:"origin,omitempty"`
	At         time.Time       `json:"at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

func NewEvent(t EventType, e Entity, businessID, tableID string, payload interface{}) (Event, error) {
	ev := Event{
		EventType:  t,
		Entity:     e,
		BusinessID: businessID,
		TableID:    tableID,
		At:         time.Now().UTC(),
	}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return ev, errors.Wrap(err, "failed json.Marshal(payload)")
		}
		ev.Payload = b
	}
	return ev, nil
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type Handler interface {
	HandleEvent(ctx context.Context, ev Event)
	// Resync is called once the subscription is back after a disconnect.
	Resync(ctx context.Context)
}

// Nop drops every event; used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
