// Package queue carries resource change events over RabbitMQ: the
// resource server publishes them and the audit consumer records them.
package queue

import (
	"time"

	"github.com/learntrack/learntrack/internal/authz"
)

// Event types.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// ExchangeName is the topic exchange events are published to.
const ExchangeName = "learntrack.events"

// ResourceEvent is published after a course, lesson or review changes.
// It carries enough for consumers to audit the change without reading
// the database.
type ResourceEvent struct {
	Type       string    `json:"type"`
	Kind       string    `json:"kind"`
	ID         int64     `json:"id"`
	ParentID   int64     `json:"parent_id,omitempty"`
	OwnerID    int64     `json:"owner_id"`
	ActorID    int64     `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewResourceEvent describes a change made by p to r.
func NewResourceEvent(typ string, r authz.Owned, parentID int64, p authz.Principal) ResourceEvent {
	return ResourceEvent{
		Type:       typ,
		Kind:       r.Kind(),
		ID:         r.ResourceID(),
		ParentID:   parentID,
		OwnerID:    r.ResourceOwner(),
		ActorID:    p.UserID,
		OccurredAt: time.Now().UTC(),
	}
}

// RoutingKey is "<kind>.<type>", e.g. "course.created".
func (e ResourceEvent) RoutingKey() string { return e.Kind + "." + e.Type }
