package repo

import (
	"context"
	"database/sql"

	"socialservice/internal/domain"
)

// UpsertMemberDocument stores d and returns the file it replaced, if any.
func (r Repo) UpsertMemberDocument(ctx context.Context, tx *sql.Tx, d domain.MemberDocument) (*string, error) {
	var previous sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT file FROM member_documents WHERE work_id=? AND kind=? AND code=?`, d.WorkID, string(d.Kind), d.Code).Scan(&previous)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO member_documents(work_id,kind,code,file,created_at) VALUES (?,?,?,?,?)
ON CONFLICT(work_id,kind,code) DO UPDATE SET file=excluded.file, created_at=excluded.created_at`,
		d.WorkID, string(d.Kind), d.Code, d.File, d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return stringPtr(previous), nil
}

func (r Repo) ListMemberDocuments(ctx context.Context, workID int64, kind domain.MemberDocumentKind) ([]domain.MemberDocument, error) {
	query := `SELECT id,work_id,kind,code,file,created_at FROM member_documents WHERE work_id=?`
	args := []any{workID}
	if kind != "" {
		query += ` AND kind=?`
		args = append(args, string(kind))
	}
	rows, err := r.DB.QueryContext(ctx, query+` ORDER BY code, kind`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.MemberDocument
	for rows.Next() {
		var d domain.MemberDocument
		if err := rows.Scan(&d.ID, &d.WorkID, &d.Kind, &d.Code, &d.File, &d.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}
