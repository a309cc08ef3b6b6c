package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type activityRepo struct {
	db *bun.DB
}

var _ ActivitySink = (*activityRepo)(nil)

// NewActivityRepository returns an ActivitySink that appends events to the
// activity_log table. Rows are write-only from the application's point of
// view.
func NewActivityRepository(db *bun.DB) ActivitySink {
	return &activityRepo{db: db}
}

func (a *activityRepo) Record(ctx context.Context, event ActivityEvent) error {
	row := recordFromEvent(event)
	if _, err := a.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to append activity record")
	}
	return nil
}

func recordFromEvent(event ActivityEvent) *ActivityRecord {
	row := &ActivityRecord{
		EventType:  string(event.EventType),
		ActorType:  event.Actor.Type,
		Identifier: event.Identifier,
		Success:    event.Success,
		Error:      event.ErrorLabel,
		Metadata:   event.Metadata,
		OccurredAt: event.OccurredAt,
	}

	if row.ActorType == "" {
		row.ActorType = "unknown"
	}

	if event.Actor.ID != 0 {
		id := event.Actor.ID
		row.ActorID = &id
	}

	if event.UserID != 0 {
		id := event.UserID
		row.UserID = &id
	}

	if event.FromState != "" || event.ToState != "" {
		if row.Metadata == nil {
			row.Metadata = map[string]any{}
		}
		row.Metadata["from_state"] = string(event.FromState)
		row.Metadata["to_state"] = string(event.ToState)
	}

	if row.OccurredAt.IsZero() {
		row.OccurredAt = time.Now().UTC()
	}

	return row
}
