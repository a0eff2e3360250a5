package repo

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"socialservice/internal/domain"
)

var workColumns = []string{
	"id", "owner_id", "program_id", "faculty_id", "instructor_id", "labor_id", "action_line_id",
	"service_type", "plan_state", "plan_conformity", "plan_file", "acceptance_letter_file",
	"termination_request", "completion_letter_file", "final_report_file", "final_report_state",
	"certificate_file", "created_at", "updated_at",
}

// WorkFilter narrows ListWorks. Zero values are ignored.
type WorkFilter struct {
	OwnerID        int64
	InstructorID   int64
	ProgramID      int64
	FacultyID      int64
	ServiceType    domain.ServiceType
	PlanState      domain.PlanState
	HasFinalReport *bool
	Limit          int
	AfterID        int64
}

func scanWork(row scanner) (domain.WorkSelection, error) {
	var w domain.WorkSelection
	var conformity, planFile, acceptance, completion, report, certificate sql.NullString
	err := row.Scan(&w.ID, &w.OwnerID, &w.ProgramID, &w.FacultyID, &w.InstructorID, &w.LaborID, &w.ActionLineID,
		&w.ServiceType, &w.PlanState, &conformity, &planFile, &acceptance,
		&w.TerminationRequest, &completion, &report, &w.FinalReportState,
		&certificate, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	if err != nil {
		return w, err
	}
	if conformity.Valid {
		c := domain.Conformity(conformity.String)
		w.PlanConformity = &c
	}
	w.PlanFile = stringPtr(planFile)
	w.AcceptanceLetterFile = stringPtr(acceptance)
	w.CompletionLetterFile = stringPtr(completion)
	w.FinalReportFile = stringPtr(report)
	w.CertificateFile = stringPtr(certificate)
	return w, nil
}

func conformityValue(c *domain.Conformity) any {
	if c == nil {
		return nil
	}
	return string(*c)
}

// InsertWork stores w and returns the assigned id.
func (r Repo) InsertWork(ctx context.Context, tx *sql.Tx, w domain.WorkSelection) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO works(owner_id,program_id,faculty_id,instructor_id,labor_id,action_line_id,service_type,plan_state,plan_conformity,plan_file,acceptance_letter_file,termination_request,completion_letter_file,final_report_file,final_report_state,certificate_file,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		w.OwnerID, w.ProgramID, w.FacultyID, w.InstructorID, w.LaborID, w.ActionLineID,
		string(w.ServiceType), string(w.PlanState), conformityValue(w.PlanConformity), nullableStringPtr(w.PlanFile), nullableStringPtr(w.AcceptanceLetterFile),
		string(w.TerminationRequest), nullableStringPtr(w.CompletionLetterFile), nullableStringPtr(w.FinalReportFile), string(w.FinalReportState),
		nullableStringPtr(w.CertificateFile), w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert work: %w", err)
	}
	return res.LastInsertId()
}

// UpdateWork rewrites every mutable column of w. The service type and the
// foreign ids never change after creation.
func (r Repo) UpdateWork(ctx context.Context, tx *sql.Tx, w domain.WorkSelection) error {
	res, err := tx.ExecContext(ctx, `UPDATE works SET plan_state=?, plan_conformity=?, plan_file=?, acceptance_letter_file=?, termination_request=?, completion_letter_file=?, final_report_file=?, final_report_state=?, certificate_file=?, updated_at=? WHERE id=?`,
		string(w.PlanState), conformityValue(w.PlanConformity), nullableStringPtr(w.PlanFile), nullableStringPtr(w.AcceptanceLetterFile),
		string(w.TerminationRequest), nullableStringPtr(w.CompletionLetterFile), nullableStringPtr(w.FinalReportFile), string(w.FinalReportState),
		nullableStringPtr(w.CertificateFile), w.UpdatedAt, w.ID)
	if err != nil {
		return fmt.Errorf("update work: %w", err)
	}
	return affectedOrNotFound(res)
}

// SetLetter records a generated letter outside of any transition.
func (r Repo) SetLetter(ctx context.Context, id int64, kind domain.DocumentKind, ref *string, updatedAt string) error {
	column := ""
	switch kind {
	case domain.DocAcceptanceLetter:
		column = "acceptance_letter_file"
	case domain.DocCompletionLetter:
		column = "completion_letter_file"
	default:
		return fmt.Errorf("unknown letter kind %s", kind)
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE works SET `+column+`=?, updated_at=? WHERE id=?`, nullableStringPtr(ref), updatedAt, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (r Repo) GetWork(ctx context.Context, id int64) (domain.WorkSelection, error) {
	return getWork(ctx, r.DB, id)
}

func (r Repo) GetWorkTx(ctx context.Context, tx *sql.Tx, id int64) (domain.WorkSelection, error) {
	return getWork(ctx, tx, id)
}

func getWork(ctx context.Context, q querier, id int64) (domain.WorkSelection, error) {
	query, args, err := sq.Select(workColumns...).From("works").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.WorkSelection{}, err
	}
	return scanWork(q.QueryRowContext(ctx, query, args...))
}

// GetWorkByOwner returns the most recent selection owned by ownerID.
func (r Repo) GetWorkByOwner(ctx context.Context, ownerID int64) (domain.WorkSelection, error) {
	query, args, err := sq.Select(workColumns...).From("works").
		Where(sq.Eq{"owner_id": ownerID}).OrderBy("id DESC").Limit(1).ToSql()
	if err != nil {
		return domain.WorkSelection{}, err
	}
	return scanWork(r.DB.QueryRowContext(ctx, query, args...))
}

func (r Repo) ListWorks(ctx context.Context, f WorkFilter) ([]domain.WorkSelection, error) {
	b := sq.Select(workColumns...).From("works").OrderBy("id DESC")
	if f.OwnerID > 0 {
		b = b.Where(sq.Eq{"owner_id": f.OwnerID})
	}
	if f.InstructorID > 0 {
		b = b.Where(sq.Eq{"instructor_id": f.InstructorID})
	}
	if f.ProgramID > 0 {
		b = b.Where(sq.Eq{"program_id": f.ProgramID})
	}
	if f.FacultyID > 0 {
		b = b.Where(sq.Eq{"faculty_id": f.FacultyID})
	}
	if f.ServiceType != "" {
		b = b.Where(sq.Eq{"service_type": string(f.ServiceType)})
	}
	if f.PlanState != "" {
		b = b.Where(sq.Eq{"plan_state": string(f.PlanState)})
	}
	if f.HasFinalReport != nil {
		if *f.HasFinalReport {
			b = b.Where(sq.NotEq{"final_report_file": nil})
		} else {
			b = b.Where(sq.Eq{"final_report_file": nil})
		}
	}
	if f.AfterID > 0 {
		b = b.Where(sq.Lt{"id": f.AfterID})
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
	defer rows.Close()
	var res []domain.WorkSelection
	for rows.Next() {
		w, err := scanWork(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}
