package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"socialservice/internal/domain"
	"socialservice/internal/repo"
)

func (h handlers) registerObservations(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-observations",
		Method:      http.MethodGet,
		Path:        "/works/{id}/observations",
		Summary:     "List observations newest first",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID       int64  `path:"id" minimum:"1"`
		Category string `query:"category"`
		Limit    int    `query:"limit" default:"50"`
	}) (*bodyOutput[[]domain.Observation], error) {
		if _, err := authorize(ctx, h.policy, "observation.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := h.engine.ListObservations(ctx, input.ID, input.Category, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNil(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "latest-observation",
		Method:      http.MethodGet,
		Path:        "/works/{id}/observations/latest",
		Summary:     "Latest observation of a category",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID       int64  `path:"id" minimum:"1"`
		Category string `query:"category" required:"true" minLength:"1"`
	}) (*bodyOutput[domain.Observation], error) {
		if _, err := authorize(ctx, h.policy, "observation.read"); err != nil {
			return nil, handleError(err)
		}
		o, err := h.engine.LatestObservation(ctx, input.ID, input.Category)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(o), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "append-observation",
		Method:        http.MethodPost,
		Path:          "/works/{id}/observations",
		Summary:       "Append an observation",
		DefaultStatus: http.StatusCreated,
		Errors:        commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id" minimum:"1"`
		Body ObservationRequest
	}) (*bodyOutput[domain.Observation], error) {
		actor, err := authorize(ctx, h.policy, "observation.write")
		if err != nil {
			return nil, handleError(err)
		}
		o, err := h.engine.AppendObservation(ctx, actor, input.ID, input.Body.Category, input.Body.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(o), nil
	})
}

func (h handlers) registerEvents(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List audit events newest first",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		WorkID     int64  `query:"work_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*bodyOutput[paginatedEvents], error) {
		if _, err := authorize(ctx, h.policy, "events.read"); err != nil {
			return nil, handleError(err)
		}
		f := repo.EventFilter{
			WorkID:     input.WorkID,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
		}
		if input.Cursor != "" {
			before, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "validation_error", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			f.BeforeID = before
		}
		limit := normalizeLimit(input.Limit)
		f.Limit = limit + 1
		items, err := h.engine.ListEvents(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		resp.Items = nonNil(items)
		return respond(resp), nil
	})
}
