package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"socialservice/internal/config"
	"socialservice/internal/domain"
	"socialservice/internal/events"
	"socialservice/internal/repo"
)

// FileStore holds uploaded and generated documents behind opaque references.
type FileStore interface {
	Save(ctx context.Context, data []byte, suggestedName string) (string, error)
	Delete(ctx context.Context, ref string) (bool, error)
	Exists(ctx context.Context, ref string) (bool, error)
}

// Renderer produces a letter document and returns its file reference.
type Renderer interface {
	Render(ctx context.Context, kind domain.DocumentKind, data domain.LetterData) (string, error)
}

// Directory resolves academic identities. A nil identity with a nil error
// means the code is unknown.
type Directory interface {
	Lookup(ctx context.Context, code string) (*domain.Identity, error)
}

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Files     FileStore
	Renderer  Renderer
	Directory Directory
	Logger    *slog.Logger
	Now       func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Logger: slog.Default(),
		Now:    time.Now,
	}
}

// Upload is a file received from a caller.
type Upload struct {
	Name string
	Data []byte
}

// Outcome is the result of a transition. Warnings carry side-effect failures
// that happened after the change was committed.
type Outcome struct {
	Work     domain.WorkSelection `json:"work"`
	Warnings []string             `json:"warnings,omitempty"`
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) config() *config.Config {
	if e.Config == nil {
		return config.Default()
	}
	return e.Config
}

// today is the calendar date in the institution time zone, at UTC midnight.
func (e Engine) today() time.Time {
	t := e.now().In(e.config().Location())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, evtType string, workID int64, entityKind, entityID string, actor domain.Actor, payload events.EventPayload) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w.Append(ctx, tx, evtType, workID, entityKind, entityID, actor.ID, payload)
}

func mapNotFound(err error, entity string, id int64) error {
	if errors.Is(err, repo.ErrNotFound) {
		return notFound(entity, id)
	}
	return err
}

func (e Engine) saveUpload(ctx context.Context, up Upload) (string, error) {
	if len(up.Data) == 0 {
		return "", ValidationError{Field: "file", Reason: "a non-empty file is required"}
	}
	if e.Files == nil {
		return "", errors.New("file store not configured")
	}
	ref, err := e.Files.Save(ctx, up.Data, up.Name)
	if err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	return ref, nil
}

// workStep computes the next state of w. ref is the stored upload, if any.
type workStep func(tx *sql.Tx, w domain.WorkSelection, ref string) (domain.WorkSelection, []Effect, events.EventPayload, error)

// changeWork loads the selection, runs guard before touching the file store,
// applies step and commits the new state with its event. Effects run last.
func (e Engine) changeWork(ctx context.Context, actor domain.Actor, id int64, evtType string, up *Upload, guard func(domain.WorkSelection) error, step workStep) (Outcome, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Outcome{}, err
	}
	defer tx.Rollback()

	w, err := e.Repo.GetWorkTx(ctx, tx, id)
	if err != nil {
		return Outcome{}, mapNotFound(err, "work selection", id)
	}
	if guard != nil {
		if err := guard(w); err != nil {
			return Outcome{}, err
		}
	}
	ref := ""
	committed := false
	if up != nil {
		ref, err = e.saveUpload(ctx, *up)
		if err != nil {
			return Outcome{}, err
		}
		defer func() {
			if !committed {
				e.removeFile(ctx, id, ref)
			}
		}()
	}
	next, effects, payload, err := step(tx, w, ref)
	if err != nil {
		return Outcome{}, err
	}
	next.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateWork(ctx, tx, next); err != nil {
		return Outcome{}, mapNotFound(err, "work selection", id)
	}
	if payload == nil {
		payload = events.EventPayload{}
	}
	payload["plan_state"] = next.PlanState
	payload["plan_conformity"] = next.PlanConformity
	payload["termination_request"] = next.TerminationRequest
	payload["final_report_state"] = next.FinalReportState
	if err := e.appendEvent(ctx, tx, evtType, id, "work", "", actor, payload); err != nil {
		return Outcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return Outcome{}, err
	}
	committed = true
	warnings := e.apply(ctx, &next, effects)
	return Outcome{Work: next, Warnings: warnings}, nil
}

// apply runs effects best-effort. Failures are logged and, for rendering,
// reported back as warnings.
func (e Engine) apply(ctx context.Context, w *domain.WorkSelection, effects []Effect) []string {
	var warnings []string
	for _, eff := range effects {
		switch eff.Kind {
		case EffectDeleteFile:
			e.removeFile(ctx, w.ID, eff.FileRef)
		case EffectRenderDocument:
			if err := e.renderLetter(ctx, w, eff.Document); err != nil {
				warnings = append(warnings, err.Error())
			}
		}
	}
	return warnings
}

func (e Engine) removeFile(ctx context.Context, workID int64, ref string) {
	if e.Files == nil || ref == "" {
		return
	}
	ok, err := e.Files.Delete(ctx, ref)
	switch {
	case err != nil:
		e.logger().Warn("file delete failed", slog.Int64("work_id", workID), slog.String("file", ref), slog.String("error", err.Error()))
	case !ok:
		e.logger().Info("file already absent", slog.Int64("work_id", workID), slog.String("file", ref))
	}
}

func (e Engine) letterData(ctx context.Context, w domain.WorkSelection) domain.LetterData {
	data := domain.LetterData{
		WorkID:       w.ID,
		OwnerID:      w.OwnerID,
		ProgramID:    w.ProgramID,
		FacultyID:    w.FacultyID,
		InstructorID: w.InstructorID,
		LaborID:      w.LaborID,
		ServiceType:  w.ServiceType,
		Institution:  e.config().Institution.Name,
		IssuedOn:     e.today().Format(dateLayout),
	}
	if w.ServiceType == domain.ServiceGroup {
		members, err := e.Repo.ListMembers(ctx, w.ID)
		if err != nil {
			e.logger().Warn("list members for letter failed", slog.Int64("work_id", w.ID), slog.String("error", err.Error()))
		}
		for _, m := range members {
			data.Members = append(data.Members, m.Email)
		}
	}
	return data
}

// renderLetter generates kind and records it on w. The transition that asked
// for it is already committed.
func (e Engine) renderLetter(ctx context.Context, w *domain.WorkSelection, kind domain.DocumentKind) error {
	if e.Renderer == nil {
		return ExternalServiceError{Service: "renderer", Err: errors.New("not configured")}
	}
	ref, err := e.Renderer.Render(ctx, kind, e.letterData(ctx, *w))
	if err != nil {
		e.logger().Warn("letter rendering failed", slog.Int64("work_id", w.ID), slog.String("kind", string(kind)), slog.String("error", err.Error()))
		return ExternalServiceError{Service: "renderer", Err: err}
	}
	slot := &w.AcceptanceLetterFile
	if kind == domain.DocCompletionLetter {
		slot = &w.CompletionLetterFile
	}
	previous := *slot
	updatedAt := e.timestamp()
	if err := e.Repo.SetLetter(ctx, w.ID, kind, &ref, updatedAt); err != nil {
		e.removeFile(ctx, w.ID, ref)
		return fmt.Errorf("record %s letter: %w", kind, err)
	}
	if previous != nil && *previous != ref {
		e.removeFile(ctx, w.ID, *previous)
	}
	*slot = &ref
	w.UpdatedAt = updatedAt
	return nil
}
