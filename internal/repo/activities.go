package repo

import (
	"context"
	"database/sql"
	"fmt"

	"socialservice/internal/domain"
)

const activityColumns = `id,work_id,ordinal,description,justification,start_date,planned_end_date,completed_on,results,observation,evidence_file,status`

func scanActivity(row scanner) (domain.ScheduledActivity, error) {
	var a domain.ScheduledActivity
	var justification, completed, results, observation, evidence, status sql.NullString
	err := row.Scan(&a.ID, &a.WorkID, &a.Ordinal, &a.Description, &justification, &a.StartDate, &a.PlannedEndDate,
		&completed, &results, &observation, &evidence, &status)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.Justification = justification.String
	a.Results = results.String
	a.CompletedOn = stringPtr(completed)
	a.Observation = stringPtr(observation)
	a.EvidenceFile = stringPtr(evidence)
	if status.Valid {
		s := domain.ActivityStatus(status.String)
		a.Status = &s
	}
	return a, nil
}

func statusValue(s *domain.ActivityStatus) any {
	if s == nil {
		return nil
	}
	return string(*s)
}

// ReplaceActivities deletes the schedule of workID and inserts items in order.
// It returns the evidence files referenced by the removed rows.
func (r Repo) ReplaceActivities(ctx context.Context, tx *sql.Tx, workID int64, items []domain.ScheduledActivity) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT evidence_file FROM activities WHERE work_id=? AND evidence_file IS NOT NULL`, workID)
	if err != nil {
		return nil, err
	}
	var orphaned []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			rows.Close()
			return nil, err
		}
		orphaned = append(orphaned, ref)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM activities WHERE work_id=?`, workID); err != nil {
		return nil, fmt.Errorf("delete activities: %w", err)
	}
	for i, a := range items {
		if _, err := tx.ExecContext(ctx, `INSERT INTO activities(work_id,ordinal,description,justification,start_date,planned_end_date,results) VALUES (?,?,?,?,?,?,?)`,
			workID, i+1, a.Description, nullable(a.Justification), a.StartDate, a.PlannedEndDate, nullable(a.Results)); err != nil {
			return nil, fmt.Errorf("insert activity %d: %w", i+1, err)
		}
	}
	return orphaned, nil
}

func (r Repo) ListActivities(ctx context.Context, workID int64) ([]domain.ScheduledActivity, error) {
	return listActivities(ctx, r.DB, workID)
}

func (r Repo) ListActivitiesTx(ctx context.Context, tx *sql.Tx, workID int64) ([]domain.ScheduledActivity, error) {
	return listActivities(ctx, tx, workID)
}

func listActivities(ctx context.Context, q querier, workID int64) ([]domain.ScheduledActivity, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE work_id=? ORDER BY ordinal`, workID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ScheduledActivity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) GetActivity(ctx context.Context, id int64) (domain.ScheduledActivity, error) {
	return scanActivity(r.DB.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE id=?`, id))
}

func (r Repo) GetActivityTx(ctx context.Context, tx *sql.Tx, id int64) (domain.ScheduledActivity, error) {
	return scanActivity(tx.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE id=?`, id))
}

// UpdateActivityProgress writes the supervisor and evidence fields of a.
func (r Repo) UpdateActivityProgress(ctx context.Context, tx *sql.Tx, a domain.ScheduledActivity) error {
	res, err := tx.ExecContext(ctx, `UPDATE activities SET completed_on=?, observation=?, evidence_file=?, status=? WHERE id=?`,
		nullableStringPtr(a.CompletedOn), nullableStringPtr(a.Observation), nullableStringPtr(a.EvidenceFile), statusValue(a.Status), a.ID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}
