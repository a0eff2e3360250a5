package repo

import (
	"context"
	"database/sql"
	"fmt"

	"socialservice/internal/domain"
)

func (r Repo) InsertMembers(ctx context.Context, tx *sql.Tx, workID int64, emails []string, createdAt string) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO group_members(work_id,email,status,created_at) VALUES (?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, email := range emails {
		if _, err := stmt.ExecContext(ctx, workID, email, string(domain.NotAttended), createdAt); err != nil {
			return fmt.Errorf("insert member %s: %w", email, err)
		}
	}
	return nil
}

func (r Repo) ListMembers(ctx context.Context, workID int64) ([]domain.GroupMember, error) {
	return listMembers(ctx, r.DB, workID)
}

func (r Repo) ListMembersTx(ctx context.Context, tx *sql.Tx, workID int64) ([]domain.GroupMember, error) {
	return listMembers(ctx, tx, workID)
}

func listMembers(ctx context.Context, q querier, workID int64) ([]domain.GroupMember, error) {
	rows, err := q.QueryContext(ctx, `SELECT id,work_id,email,status,created_at FROM group_members WHERE work_id=? ORDER BY id`, workID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.GroupMember
	for rows.Next() {
		var m domain.GroupMember
		if err := rows.Scan(&m.ID, &m.WorkID, &m.Email, &m.Status, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) GetMemberTx(ctx context.Context, tx *sql.Tx, id int64) (domain.GroupMember, error) {
	var m domain.GroupMember
	err := tx.QueryRowContext(ctx, `SELECT id,work_id,email,status,created_at FROM group_members WHERE id=?`, id).
		Scan(&m.ID, &m.WorkID, &m.Email, &m.Status, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

func (r Repo) UpdateMemberStatus(ctx context.Context, tx *sql.Tx, id int64, status domain.AttendanceStatus) error {
	res, err := tx.ExecContext(ctx, `UPDATE group_members SET status=? WHERE id=?`, string(status), id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}
