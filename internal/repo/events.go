package repo

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	"socialservice/internal/domain"
)

// EventFilter narrows event listings. Zero values are ignored.
type EventFilter struct {
	WorkID     int64
	Type       string
	EntityKind string
	EntityID   string
	BeforeID   int64
	Limit      int
}

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var evt domain.Event
		var workID sql.NullInt64
		var entityID sql.NullString
		if err := rows.Scan(&evt.ID, &evt.TS, &evt.Type, &workID, &evt.EntityKind, &entityID, &evt.ActorID, &evt.Payload); err != nil {
			return nil, err
		}
		evt.WorkID = workID.Int64
		evt.EntityID = entityID.String
		res = append(res, evt)
	}
	return res, rows.Err()
}

var eventColumns = []string{"id", "ts", "type", "work_id", "entity_kind", "entity_id", "actor_id", "payload_json"}

// LatestEvents lists events newest first.
func (r Repo) LatestEvents(ctx context.Context, f EventFilter) ([]domain.Event, error) {
	b := sq.Select(eventColumns...).From("work_events").OrderBy("id DESC")
	if f.WorkID > 0 {
		b = b.Where(sq.Eq{"work_id": f.WorkID})
	}
	if f.Type != "" {
		b = b.Where(sq.Eq{"type": f.Type})
	}
	if f.EntityKind != "" {
		b = b.Where(sq.Eq{"entity_kind": f.EntityKind})
	}
	if f.EntityID != "" {
		b = b.Where(sq.Eq{"entity_id": f.EntityID})
	}
	if f.BeforeID > 0 {
		b = b.Where(sq.Lt{"id": f.BeforeID})
	}
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// EventsAfter lists events with id greater than cursor, oldest first.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	query, args, err := sq.Select(eventColumns...).From("work_events").
		Where(sq.Gt{"id": cursor}).OrderBy("id ASC").Limit(uint64(limit)).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM work_events`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}
