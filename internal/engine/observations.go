package engine

import (
	"context"
	"strings"

	"socialservice/internal/domain"
	"socialservice/internal/repo"
)

const defaultListLimit = 50

// AppendObservation adds a remark to the log of workID. Observations are
// never edited afterwards.
func (e Engine) AppendObservation(ctx context.Context, actor domain.Actor, workID int64, category, body string) (domain.Observation, error) {
	category = strings.TrimSpace(category)
	body = strings.TrimSpace(body)
	if category == "" {
		return domain.Observation{}, ValidationError{Field: "category", Reason: "is required"}
	}
	if body == "" {
		return domain.Observation{}, ValidationError{Field: "body", Reason: "is required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Observation{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetWorkTx(ctx, tx, workID); err != nil {
		return domain.Observation{}, mapNotFound(err, "work selection", workID)
	}
	if err := e.insertObservation(ctx, tx, workID, actor, category, body); err != nil {
		return domain.Observation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Observation{}, err
	}
	latest, err := e.Repo.ListObservations(ctx, workID, category, 1)
	if err != nil {
		return domain.Observation{}, err
	}
	if len(latest) == 0 {
		return domain.Observation{}, notFound("observation", workID)
	}
	return latest[0], nil
}

// LatestObservation returns the newest observation of category for workID,
// typically the reason behind the last rejection.
func (e Engine) LatestObservation(ctx context.Context, workID int64, category string) (domain.Observation, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return domain.Observation{}, ValidationError{Field: "category", Reason: "is required"}
	}
	if _, err := e.Repo.GetWork(ctx, workID); err != nil {
		return domain.Observation{}, mapNotFound(err, "work selection", workID)
	}
	items, err := e.Repo.ListObservations(ctx, workID, category, 1)
	if err != nil {
		return domain.Observation{}, err
	}
	if len(items) == 0 {
		return domain.Observation{}, NotFoundError{Entity: "observation", ID: category}
	}
	return items[0], nil
}

func (e Engine) ListObservations(ctx context.Context, workID int64, category string, limit int) ([]domain.Observation, error) {
	if _, err := e.Repo.GetWork(ctx, workID); err != nil {
		return nil, mapNotFound(err, "work selection", workID)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	return e.Repo.ListObservations(ctx, workID, strings.TrimSpace(category), limit)
}

func (e Engine) ListEvents(ctx context.Context, f repo.EventFilter) ([]domain.Event, error) {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	return e.Repo.LatestEvents(ctx, f)
}
