package engine

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"socialservice/internal/domain"
	"socialservice/internal/events"
	"socialservice/internal/repo"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validationError converts the first validator failure into a ValidationError.
func validationError(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		reason := fe.Tag()
		switch fe.Tag() {
		case "required":
			reason = "is required"
		case "gt":
			reason = "must be a positive id"
		case "oneof":
			reason = "must be one of " + fe.Param()
		case "datetime":
			reason = "must be a date formatted YYYY-MM-DD"
		}
		return ValidationError{Field: fe.Field(), Reason: reason}
	}
	return ValidationError{Reason: err.Error()}
}

// CreateWorkInput describes a new selection. GroupEmails is required for
// group selections and forbidden for individual ones.
type CreateWorkInput struct {
	OwnerID      int64    `json:"owner_id" validate:"required,gt=0"`
	ServiceType  string   `json:"service_type" validate:"required,oneof=individual group"`
	ProgramID    int64    `json:"program_id" validate:"required,gt=0"`
	FacultyID    int64    `json:"faculty_id" validate:"required,gt=0"`
	InstructorID int64    `json:"instructor_id" validate:"required,gt=0"`
	LaborID      int64    `json:"labor_id" validate:"required,gt=0"`
	ActionLineID int64    `json:"action_line_id" validate:"required,gt=0"`
	GroupEmails  []string `json:"group_emails,omitempty"`
}

// CreateWork stores a selection and, for groups, its member batch in one
// transaction.
func (e Engine) CreateWork(ctx context.Context, actor domain.Actor, in CreateWorkInput) (domain.WorkSelection, error) {
	if err := validate.Struct(in); err != nil {
		return domain.WorkSelection{}, validationError(err)
	}
	serviceType := domain.ServiceType(in.ServiceType)
	var emails []string
	switch serviceType {
	case domain.ServiceGroup:
		if len(in.GroupEmails) == 0 {
			return domain.WorkSelection{}, ValidationError{Field: "group_emails", Reason: "a group selection needs at least one member"}
		}
		normalized, err := normalizeEmails(in.GroupEmails, e.config().Institution.EmailDomain)
		if err != nil {
			return domain.WorkSelection{}, err
		}
		emails = normalized
	case domain.ServiceIndividual:
		if len(in.GroupEmails) > 0 {
			return domain.WorkSelection{}, ValidationError{Field: "group_emails", Reason: "only group selections have members"}
		}
	}
	now := e.timestamp()
	w := domain.WorkSelection{
		OwnerID:            in.OwnerID,
		ProgramID:          in.ProgramID,
		FacultyID:          in.FacultyID,
		InstructorID:       in.InstructorID,
		LaborID:            in.LaborID,
		ActionLineID:       in.ActionLineID,
		ServiceType:        serviceType,
		PlanState:          domain.PlanPending,
		TerminationRequest: domain.TerminationNotRequested,
		FinalReportState:   domain.ReportPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkSelection{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertWork(ctx, tx, w)
	if err != nil {
		return domain.WorkSelection{}, err
	}
	w.ID = id
	if len(emails) > 0 {
		if err := e.Repo.InsertMembers(ctx, tx, id, emails, now); err != nil {
			return domain.WorkSelection{}, err
		}
		members, err := e.Repo.ListMembersTx(ctx, tx, id)
		if err != nil {
			return domain.WorkSelection{}, err
		}
		w.Members = members
	}
	if err := e.appendEvent(ctx, tx, "work.created", id, "work", "", actor, events.EventPayload{
		"service_type": w.ServiceType,
		"owner_id":     w.OwnerID,
		"members":      len(emails),
	}); err != nil {
		return domain.WorkSelection{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkSelection{}, err
	}
	return w, nil
}

// GetWork returns the selection with its members attached for groups.
func (e Engine) GetWork(ctx context.Context, id int64) (domain.WorkSelection, error) {
	w, err := e.Repo.GetWork(ctx, id)
	if err != nil {
		return w, mapNotFound(err, "work selection", id)
	}
	return e.withMembers(ctx, w)
}

func (e Engine) GetWorkByOwner(ctx context.Context, ownerID int64) (domain.WorkSelection, error) {
	w, err := e.Repo.GetWorkByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return w, NotFoundError{Entity: "work selection for owner", ID: formatID(ownerID)}
		}
		return w, err
	}
	return e.withMembers(ctx, w)
}

func (e Engine) ListWorks(ctx context.Context, f repo.WorkFilter) ([]domain.WorkSelection, error) {
	return e.Repo.ListWorks(ctx, f)
}

func (e Engine) withMembers(ctx context.Context, w domain.WorkSelection) (domain.WorkSelection, error) {
	if w.ServiceType != domain.ServiceGroup {
		return w, nil
	}
	members, err := e.Repo.ListMembers(ctx, w.ID)
	if err != nil {
		return w, err
	}
	w.Members = members
	return w, nil
}

func (e Engine) insertObservation(ctx context.Context, tx *sql.Tx, workID int64, actor domain.Actor, category, body string) error {
	o := domain.Observation{
		WorkID:    workID,
		Category:  category,
		Body:      body,
		CreatedAt: e.timestamp(),
	}
	if actor.ID != "" {
		author := actor.ID
		o.AuthorID = &author
	}
	id, err := e.Repo.InsertObservation(ctx, tx, o)
	if err != nil {
		return err
	}
	return e.appendEvent(ctx, tx, "observation.appended", workID, "observation", formatID(id), actor, events.EventPayload{"category": category})
}

// ReviewSelection records the supervisor's first verdict on a pending
// selection. Rejections require a reason. The verdict is frozen once a plan
// document is under review.
func (e Engine) ReviewSelection(ctx context.Context, actor domain.Actor, id int64, verdict domain.PlanState, reason string) (Outcome, error) {
	reason = strings.TrimSpace(reason)
	if verdict == domain.PlanRejected && reason == "" {
		return Outcome{}, ValidationError{Field: "reason", Reason: "a rejection needs a reason"}
	}
	return e.changeWork(ctx, actor, id, "selection.reviewed", nil, nil, func(tx *sql.Tx, w domain.WorkSelection, _ string) (domain.WorkSelection, []Effect, events.EventPayload, error) {
		next, err := reviewSelection(w, verdict)
		if err != nil {
			return w, nil, nil, err
		}
		if reason != "" {
			if err := e.insertObservation(ctx, tx, id, actor, "review-reason", reason); err != nil {
				return w, nil, nil, err
			}
		}
		return next, nil, events.EventPayload{"verdict": verdict}, nil
	})
}

// UploadPlanDocument stores the plan and sets conformity to pending. The
// selection must be accepted first, and an approved plan cannot be replaced.
func (e Engine) UploadPlanDocument(ctx context.Context, actor domain.Actor, id int64, up Upload) (Outcome, error) {
	return e.changeWork(ctx, actor, id, "plan.uploaded", &up, guardPlanUpload, func(_ *sql.Tx, w domain.WorkSelection, ref string) (domain.WorkSelection, []Effect, events.EventPayload, error) {
		next, effects, err := uploadPlan(w, ref)
		return next, effects, events.EventPayload{"file": ref}, err
	})
}

// ResolvePlanConformity accepts or rejects the pending plan document. A
// rejection deletes the document and reopens the upload; an optional reason
// is kept in the observation log.
func (e Engine) ResolvePlanConformity(ctx context.Context, actor domain.Actor, id int64, verdict domain.Conformity, reason string) (Outcome, error) {
	if verdict != domain.ConformityAccepted && verdict != domain.ConformityRejected {
		return Outcome{}, ValidationError{Field: "verdict", Reason: "must be accepted or rejected"}
	}
	reason = strings.TrimSpace(reason)
	return e.changeWork(ctx, actor, id, "plan.conformity.resolved", nil, nil, func(tx *sql.Tx, w domain.WorkSelection, _ string) (domain.WorkSelection, []Effect, events.EventPayload, error) {
		next, effects, err := resolveConformity(w, verdict)
		if err != nil {
			return w, nil, nil, err
		}
		if verdict == domain.ConformityRejected && reason != "" {
			if err := e.insertObservation(ctx, tx, id, actor, "conformity-reason", reason); err != nil {
				return w, nil, nil, err
			}
		}
		return next, effects, events.EventPayload{"verdict": verdict}, nil
	})
}

// DeclineOrRestore flips the selection verdict and logs the reason.
func (e Engine) DeclineOrRestore(ctx context.Context, actor domain.Actor, id int64, target domain.PlanState, reason string) (Outcome, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Outcome{}, ValidationError{Field: "reason", Reason: "is required"}
	}
	evtType, category := "plan.restored", "restore-reason"
	if target == domain.PlanRejected {
		evtType, category = "plan.declined", "decline-reason"
	}
	return e.changeWork(ctx, actor, id, evtType, nil, nil, func(tx *sql.Tx, w domain.WorkSelection, _ string) (domain.WorkSelection, []Effect, events.EventPayload, error) {
		next, effects, err := declineOrRestore(w, target)
		if err != nil {
			return w, nil, nil, err
		}
		if err := e.insertObservation(ctx, tx, id, actor, category, reason); err != nil {
			return w, nil, nil, err
		}
		return next, effects, events.EventPayload{"from": w.PlanState, "to": target}, nil
	})
}

// RequestCompletionLetter moves the completion track from not_requested to
// requested. It fails with PreconditionError unless the selection was accepted.
func (e Engine) RequestCompletionLetter(ctx context.Context, actor domain.Actor, id int64) (Outcome, error) {
	return e.changeWork(ctx, actor, id, "completion.requested", nil, nil, func(_ *sql.Tx, w domain.WorkSelection, _ string) (domain.WorkSelection, []Effect, events.EventPayload, error) {
		next, err := requestCompletion(w)
		return next, nil, nil, err
	})
}

// ResolveCompletionLetter answers a pending request. Approval renders the
// completion letter.
func (e Engine) ResolveCompletionLetter(ctx context.Context, actor domain.Actor, id int64, verdict domain.TerminationState) (Outcome, error) {
	return e.changeWork(ctx, actor, id, "completion.resolved", nil, nil, func(_ *sql.Tx, w domain.WorkSelection, _ string) (domain.WorkSelection, []Effect, events.EventPayload, error) {
		next, effects, err := resolveCompletion(w, verdict)
		return next, effects, events.EventPayload{"verdict": verdict}, err
	})
}

// StoreLetter replaces the acceptance or completion letter with an uploaded file.
func (e Engine) StoreLetter(ctx context.Context, actor domain.Actor, id int64, kind domain.DocumentKind, up Upload) (Outcome, error) {
	guard := func(w domain.WorkSelection) error { return guardLetter(w, kind) }
	return e.changeWork(ctx, actor, id, "letter.stored", &up, guard, func(_ *sql.Tx, w domain.WorkSelection, ref string) (domain.WorkSelection, []Effect, events.EventPayload, error) {
		next, effects, err := storeLetter(w, kind, ref)
		return next, effects, events.EventPayload{"kind": kind, "file": ref}, err
	})
}

// SubmitFinalReport stores the report and resets its verdict to pending. It
// fails with PreconditionError until the completion request is approved.
func (e Engine) SubmitFinalReport(ctx context.Context, actor domain.Actor, id int64, up Upload) (Outcome, error) {
	return e.changeWork(ctx, actor, id, "report.submitted", &up, guardFinalReport, func(_ *sql.Tx, w domain.WorkSelection, ref string) (domain.WorkSelection, []Effect, events.EventPayload, error) {
		next, effects, err := submitFinalReport(w, ref)
		return next, effects, events.EventPayload{"file": ref}, err
	})
}

// SetFinalReportState overrides the report verdict. It does not check other gates.
func (e Engine) SetFinalReportState(ctx context.Context, actor domain.Actor, id int64, state domain.ReportState) (Outcome, error) {
	if !state.Valid() {
		return Outcome{}, ValidationError{Field: "state", Reason: "must be pending, approved or rejected"}
	}
	return e.changeWork(ctx, actor, id, "report.state.changed", nil, nil, func(_ *sql.Tx, w domain.WorkSelection, _ string) (domain.WorkSelection, []Effect, events.EventPayload, error) {
		next, err := setFinalReportState(w, state)
		return next, nil, events.EventPayload{"from": w.FinalReportState, "to": state}, err
	})
}

// IssueCertificate stores the certificate once the final report is approved.
func (e Engine) IssueCertificate(ctx context.Context, actor domain.Actor, id int64, up Upload) (Outcome, error) {
	return e.changeWork(ctx, actor, id, "certificate.issued", &up, guardCertificate, func(_ *sql.Tx, w domain.WorkSelection, ref string) (domain.WorkSelection, []Effect, events.EventPayload, error) {
		next, effects, err := issueCertificate(w, ref)
		return next, effects, events.EventPayload{"file": ref}, err
	})
}
