package repo

import (
	"context"
	"database/sql"

	"socialservice/internal/domain"
)

func (r Repo) InsertObservation(ctx context.Context, tx *sql.Tx, o domain.Observation) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO observations(work_id,author_id,category,body,created_at) VALUES (?,?,?,?,?)`,
		o.WorkID, nullableStringPtr(o.AuthorID), o.Category, o.Body, o.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListObservations returns observations of workID, most recent first. An
// empty category matches all.
func (r Repo) ListObservations(ctx context.Context, workID int64, category string, limit int) ([]domain.Observation, error) {
	query := `SELECT id,work_id,author_id,category,body,created_at FROM observations WHERE work_id=?`
	args := []any{workID}
	if category != "" {
		query += ` AND category=?`
		args = append(args, category)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Observation
	for rows.Next() {
		var o domain.Observation
		var author sql.NullString
		if err := rows.Scan(&o.ID, &o.WorkID, &author, &o.Category, &o.Body, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.AuthorID = stringPtr(author)
		res = append(res, o)
	}
	return res, rows.Err()
}
