package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"socialservice/internal/domain"
	"socialservice/internal/events"
)

// ActivityInput is one row of a schedule submitted as a whole.
type ActivityInput struct {
	Description    string `json:"description" validate:"required"`
	Justification  string `json:"justification,omitempty"`
	StartDate      string `json:"start_date" validate:"required,datetime=2006-01-02"`
	PlannedEndDate string `json:"planned_end_date" validate:"required,datetime=2006-01-02"`
	Results        string `json:"results,omitempty"`
}

func validateActivities(items []ActivityInput) error {
	for i, item := range items {
		if err := validate.Struct(item); err != nil {
			var ve ValidationError
			if errors.As(validationError(err), &ve) {
				ve.Field = fmt.Sprintf("activities[%d].%s", i, ve.Field)
				return ve
			}
			return err
		}
		if strings.TrimSpace(item.Description) == "" {
			return ValidationError{Field: fmt.Sprintf("activities[%d].description", i), Reason: "is required"}
		}
		if item.PlannedEndDate < item.StartDate {
			return ValidationError{Field: fmt.Sprintf("activities[%d].planned_end_date", i), Reason: "must not be before start_date"}
		}
	}
	return nil
}

// ReplaceSchedule deletes the schedule of workID and inserts items in order.
// Evidence files of the replaced activities are removed after commit.
func (e Engine) ReplaceSchedule(ctx context.Context, actor domain.Actor, workID int64, items []ActivityInput) ([]domain.ScheduledActivity, error) {
	if err := validateActivities(items); err != nil {
		return nil, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	w, err := e.Repo.GetWorkTx(ctx, tx, workID)
	if err != nil {
		return nil, mapNotFound(err, "work selection", workID)
	}
	if err := guardScheduleWrite(w); err != nil {
		return nil, err
	}
	rows := make([]domain.ScheduledActivity, 0, len(items))
	for _, item := range items {
		rows = append(rows, domain.ScheduledActivity{
			Description:    strings.TrimSpace(item.Description),
			Justification:  item.Justification,
			StartDate:      item.StartDate,
			PlannedEndDate: item.PlannedEndDate,
			Results:        item.Results,
		})
	}
	orphaned, err := e.Repo.ReplaceActivities(ctx, tx, workID, rows)
	if err != nil {
		return nil, err
	}
	if err := e.appendEvent(ctx, tx, "schedule.replaced", workID, "work", "", actor, events.EventPayload{
		"activities":        len(rows),
		"evidence_released": len(orphaned),
	}); err != nil {
		return nil, err
	}
	saved, err := e.Repo.ListActivitiesTx(ctx, tx, workID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	for _, ref := range orphaned {
		e.removeFile(ctx, workID, ref)
	}
	return saved, nil
}

func (e Engine) ListSchedule(ctx context.Context, workID int64) ([]domain.ScheduledActivity, error) {
	if _, err := e.Repo.GetWork(ctx, workID); err != nil {
		return nil, mapNotFound(err, "work selection", workID)
	}
	return e.Repo.ListActivities(ctx, workID)
}

// EvidenceWindow returns the inclusive upload window of a.
func (e Engine) EvidenceWindow(a domain.ScheduledActivity) (string, string, error) {
	cfg := e.config()
	from, to, err := evidenceWindow(a.PlannedEndDate, cfg.Evidence.DaysBefore, cfg.Evidence.DaysAfter)
	if err != nil {
		return "", "", err
	}
	return from.Format(dateLayout), to.Format(dateLayout), nil
}

type activityStep func(w domain.WorkSelection, a domain.ScheduledActivity, ref string) (domain.ScheduledActivity, []Effect, error)

func (e Engine) changeActivity(ctx context.Context, actor domain.Actor, activityID int64, evtType string, up *Upload, guard func(domain.WorkSelection, domain.ScheduledActivity) error, step activityStep) (domain.ScheduledActivity, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ScheduledActivity{}, err
	}
	defer tx.Rollback()

	a, err := e.Repo.GetActivityTx(ctx, tx, activityID)
	if err != nil {
		return a, mapNotFound(err, "activity", activityID)
	}
	w, err := e.Repo.GetWorkTx(ctx, tx, a.WorkID)
	if err != nil {
		return a, mapNotFound(err, "work selection", a.WorkID)
	}
	if guard != nil {
		if err := guard(w, a); err != nil {
			return a, err
		}
	}
	ref := ""
	committed := false
	if up != nil {
		ref, err = e.saveUpload(ctx, *up)
		if err != nil {
			return a, err
		}
		defer func() {
			if !committed {
				e.removeFile(ctx, w.ID, ref)
			}
		}()
	}
	next, effects, err := step(w, a, ref)
	if err != nil {
		return a, err
	}
	if ref == "" && len(effects) == 0 && next == a {
		return a, nil
	}
	if err := e.Repo.UpdateActivityProgress(ctx, tx, next); err != nil {
		return a, mapNotFound(err, "activity", activityID)
	}
	payload := events.EventPayload{"ordinal": next.Ordinal, "status": next.Status}
	if ref != "" {
		payload["file"] = ref
	}
	if err := e.appendEvent(ctx, tx, evtType, w.ID, "activity", formatID(activityID), actor, payload); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	committed = true
	e.apply(ctx, &w, effects)
	return next, nil
}

// AttachEvidence stores proof for an activity inside its date window and
// records today as its completion date.
func (e Engine) AttachEvidence(ctx context.Context, actor domain.Actor, activityID int64, up Upload, status *domain.ActivityStatus) (domain.ScheduledActivity, error) {
	if status != nil && !status.Valid() {
		return domain.ScheduledActivity{}, ValidationError{Field: "status", Reason: "must be approved, observed or pending"}
	}
	cfg := e.config()
	today := e.today()
	guard := func(w domain.WorkSelection, a domain.ScheduledActivity) error {
		return guardEvidence(w, a, today, cfg.Evidence.DaysBefore, cfg.Evidence.DaysAfter)
	}
	return e.changeActivity(ctx, actor, activityID, "evidence.attached", &up, guard, func(_ domain.WorkSelection, a domain.ScheduledActivity, ref string) (domain.ScheduledActivity, []Effect, error) {
		next, err := attachEvidence(a, today, ref, status)
		return next, nil, err
	})
}

// ClearEvidence removes the evidence file and resets completion date and
// status. Clearing an activity without evidence succeeds and changes nothing.
func (e Engine) ClearEvidence(ctx context.Context, actor domain.Actor, activityID int64) (domain.ScheduledActivity, error) {
	return e.changeActivity(ctx, actor, activityID, "evidence.cleared", nil, nil, func(_ domain.WorkSelection, a domain.ScheduledActivity, _ string) (domain.ScheduledActivity, []Effect, error) {
		return clearEvidence(a)
	})
}

func (e Engine) SetApprovalStatus(ctx context.Context, actor domain.Actor, activityID int64, status domain.ActivityStatus) (domain.ScheduledActivity, error) {
	return e.changeActivity(ctx, actor, activityID, "activity.status.changed", nil, nil, func(_ domain.WorkSelection, a domain.ScheduledActivity, _ string) (domain.ScheduledActivity, []Effect, error) {
		next, err := setActivityStatus(a, status)
		return next, nil, err
	})
}

// RecordObservation marks the activity observed with the supervisor's text.
func (e Engine) RecordObservation(ctx context.Context, actor domain.Actor, activityID int64, text string) (domain.ScheduledActivity, error) {
	text = strings.TrimSpace(text)
	return e.changeActivity(ctx, actor, activityID, "activity.observed", nil, nil, func(_ domain.WorkSelection, a domain.ScheduledActivity, _ string) (domain.ScheduledActivity, []Effect, error) {
		next, err := observeActivity(a, text)
		return next, nil, err
	})
}

