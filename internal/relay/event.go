// Package relay fans waiting-room events out to live subscribers.
// Delivery is at most once and nothing is replayed to late subscribers.
package relay

import (
	"context"
	"time"

	"hospital-waiting-room/internal/models"
)

// EventKind names a waiting-room event
type EventKind string

const (
	EventVisitNotified EventKind = "visit-notified"
	EventVisitRemoved  EventKind = "visit-removed"
)

// Event is a transient waiting-room notification. Visit is set for
// visit-notified, VisitID for both kinds.
type Event struct {
	Kind        EventKind     `json:"type"`
	VisitID     uint          `json:"visit_id"`
	Visit       *models.Visit `json:"visit,omitempty"`
	PublishedAt time.Time     `json:"published_at"`
}

// NewVisitNotified builds the event announcing that a patient is called in
func NewVisitNotified(v *models.Visit) Event {
	return Event{
		Kind:        EventVisitNotified,
		VisitID:     v.ID,
		Visit:       v,
		PublishedAt: time.Now().UTC(),
	}
}

// NewVisitRemoved builds the event evicting a visit from every display
func NewVisitRemoved(visitID uint) Event {
	return Event{
		Kind:        EventVisitRemoved,
		VisitID:     visitID,
		PublishedAt: time.Now().UTC(),
	}
}

// Publisher is the write side of the relay as seen by the lifecycle manager
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
