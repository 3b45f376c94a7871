package event

import (
	"context"
	"fmt"

	"github.com/rentaldesk/rentals/internal/activity"
	"github.com/rentaldesk/rentals/internal/types"
)

// Recorder persists domain events once the mutation they describe has
// been committed.
type Recorder interface {
	Record(ctx context.Context, evt DomainEvent) error
}

// Publisher hands events to downstream consumers. It must not block.
type Publisher interface {
	Publish(ctx context.Context, evt DomainEvent)
}

// NopRecorder discards every event.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, DomainEvent) error { return nil }

// Entries expands evt into the feed rows of every owner, tenant, property,
// contract or payment it touches. Each row keeps the full ref list so a
// feed reader can link to the other parties.
func (evt DomainEvent) Entries() []types.ActivityEntry {
	rows := make([]types.ActivityEntry, len(evt.AffectedEntities))
	for i, ref := range evt.AffectedEntities {
		rows[i] = types.ActivityEntry{
			EventID:           evt.ID,
			EventType:         evt.EventType,
			OccurredAt:        evt.OccurredAt,
			IndexedEntityType: ref.EntityType,
			IndexedEntityID:   ref.EntityID,
			EntityRole:        ref.Role,
			SourceRefs:        evt.AffectedEntities,
			Summary:           evt.Summary,
			Category:          evt.Category,
			Weight:            evt.Weight,
			Actor:             evt.Actor,
			Payload:           evt.Payload,
		}
	}
	return rows
}

// ActivityRecorder writes event rows to an activity.Store and then, if a
// Publisher is attached, publishes the event. Nothing is published when
// the write fails.
type ActivityRecorder struct {
	feed activity.Store
	pub  Publisher
}

func NewActivityRecorder(feed activity.Store) *ActivityRecorder {
	return &ActivityRecorder{feed: feed}
}

// SetPublisher attaches p; call it before the recorder is shared.
func (r *ActivityRecorder) SetPublisher(p Publisher) {
	r.pub = p
}

func (r *ActivityRecorder) Record(ctx context.Context, evt DomainEvent) error {
	if rows := evt.Entries(); len(rows) > 0 {
		if err := r.feed.WriteEntries(ctx, rows); err != nil {
			return fmt.Errorf("recording %s event %s: %w", evt.EventType, evt.ID, err)
		}
	}
	if r.pub != nil {
		r.pub.Publish(ctx, evt)
	}
	return nil
}
