package server

import (
	"context"
	"mime/multipart"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"socialservice/internal/domain"
)

type activityPath struct {
	ID int64 `path:"id" minimum:"1"`
}

func (h handlers) activityResponse(a domain.ScheduledActivity) ActivityResponse {
	resp := ActivityResponse{ScheduledActivity: a}
	if from, to, err := h.engine.EvidenceWindow(a); err == nil {
		resp.Window = &EvidenceWindowResponse{From: from, To: to}
	}
	return resp
}

func (h handlers) activityResponses(items []domain.ScheduledActivity) []ActivityResponse {
	res := make([]ActivityResponse, 0, len(items))
	for _, a := range items {
		res = append(res, h.activityResponse(a))
	}
	return res
}

func (h handlers) registerSchedule(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-schedule",
		Method:      http.MethodGet,
		Path:        "/works/{id}/schedule",
		Summary:     "List scheduled activities in order",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *workPath) (*bodyOutput[[]ActivityResponse], error) {
		if _, err := authorize(ctx, h.policy, "work.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := h.engine.ListSchedule(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(h.activityResponses(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "replace-schedule",
		Method:      http.MethodPut,
		Path:        "/works/{id}/schedule",
		Summary:     "Replace the schedule",
		Description: "Allowed while the plan document is pending or rejected. Evidence of replaced activities is released.",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id" minimum:"1"`
		Body ScheduleRequest
	}) (*bodyOutput[[]ActivityResponse], error) {
		actor, err := authorize(ctx, h.policy, "schedule.write")
		if err != nil {
			return nil, handleError(err)
		}
		items, err := h.engine.ReplaceSchedule(ctx, actor, input.ID, input.Body.Activities)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(h.activityResponses(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "attach-evidence",
		Method:      http.MethodPost,
		Path:        "/activities/{id}/evidence",
		Summary:     "Attach evidence to an activity",
		Description: "Multipart form with a `file` part and an optional `status` value. Only accepted inside the evidence window.",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID      int64 `path:"id" minimum:"1"`
		RawBody multipart.Form
	}) (*bodyOutput[ActivityResponse], error) {
		actor, err := authorize(ctx, h.policy, "evidence.write")
		if err != nil {
			return nil, handleError(err)
		}
		up, err := formUpload(&input.RawBody, "file")
		if err != nil {
			return nil, handleError(err)
		}
		var status *domain.ActivityStatus
		if v := formValue(&input.RawBody, "status"); v != "" {
			s := domain.ActivityStatus(v)
			status = &s
		}
		a, err := h.engine.AttachEvidence(ctx, actor, input.ID, up, status)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(h.activityResponse(a)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "clear-evidence",
		Method:      http.MethodDelete,
		Path:        "/activities/{id}/evidence",
		Summary:     "Remove the evidence of an activity",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *activityPath) (*bodyOutput[ActivityResponse], error) {
		actor, err := authorize(ctx, h.policy, "evidence.write")
		if err != nil {
			return nil, handleError(err)
		}
		a, err := h.engine.ClearEvidence(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(h.activityResponse(a)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-activity-status",
		Method:      http.MethodPut,
		Path:        "/activities/{id}/status",
		Summary:     "Set the approval status of an activity",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id" minimum:"1"`
		Body ActivityStatusRequest
	}) (*bodyOutput[ActivityResponse], error) {
		actor, err := authorize(ctx, h.policy, "schedule.review")
		if err != nil {
			return nil, handleError(err)
		}
		a, err := h.engine.SetApprovalStatus(ctx, actor, input.ID, domain.ActivityStatus(input.Body.Status))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(h.activityResponse(a)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "observe-activity",
		Method:      http.MethodPost,
		Path:        "/activities/{id}/observation",
		Summary:     "Record a supervisor observation on an activity",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id" minimum:"1"`
		Body ActivityObservationRequest
	}) (*bodyOutput[ActivityResponse], error) {
		actor, err := authorize(ctx, h.policy, "schedule.review")
		if err != nil {
			return nil, handleError(err)
		}
		a, err := h.engine.RecordObservation(ctx, actor, input.ID, input.Body.Text)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(h.activityResponse(a)), nil
	})
}
