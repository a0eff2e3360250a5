package server

import (
	"context"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"socialservice/internal/domain"
	"socialservice/internal/engine"
	"socialservice/internal/repo"
)

type workPath struct {
	ID int64 `path:"id" minimum:"1"`
}

type uploadInput struct {
	ID      int64 `path:"id" minimum:"1"`
	RawBody multipart.Form
}

func (h handlers) registerWorks(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-work",
		Method:        http.MethodPost,
		Path:          "/works",
		Summary:       "Create a work selection",
		DefaultStatus: http.StatusCreated,
		Errors:        commonErrors,
	}, func(ctx context.Context, input *struct {
		Body engine.CreateWorkInput
	}) (*bodyOutput[WorkResponse], error) {
		actor, err := authorize(ctx, h.policy, "work.create")
		if err != nil {
			return nil, handleError(err)
		}
		w, err := h.engine.CreateWork(ctx, actor, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(workResponse(w)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-works",
		Method:      http.MethodGet,
		Path:        "/works",
		Summary:     "List work selections",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		OwnerID        int64  `query:"owner_id"`
		InstructorID   int64  `query:"instructor_id"`
		ProgramID      int64  `query:"program_id"`
		FacultyID      int64  `query:"faculty_id"`
		ServiceType    string `query:"service_type"`
		PlanState      string `query:"plan_state"`
		HasFinalReport string `query:"has_final_report"`
		Limit          int    `query:"limit" default:"50"`
		Cursor         string `query:"cursor"`
	}) (*bodyOutput[paginatedWorks], error) {
		if _, err := authorize(ctx, h.policy, "work.list"); err != nil {
			return nil, handleError(err)
		}
		f := repo.WorkFilter{
			OwnerID:      input.OwnerID,
			InstructorID: input.InstructorID,
			ProgramID:    input.ProgramID,
			FacultyID:    input.FacultyID,
			ServiceType:  domain.ServiceType(input.ServiceType),
			PlanState:    domain.PlanState(input.PlanState),
		}
		if input.HasFinalReport != "" {
			v, err := strconv.ParseBool(input.HasFinalReport)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "validation_error", "has_final_report must be true or false", map[string]any{"field": "has_final_report"})
			}
			f.HasFinalReport = &v
		}
		if input.Cursor != "" {
			after, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "validation_error", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			f.AfterID = after
		}
		limit := normalizeLimit(input.Limit)
		f.Limit = limit + 1
		items, err := h.engine.ListWorks(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedWorks{}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		resp.Items = mapWorks(items)
		return respond(resp), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-work",
		Method:      http.MethodGet,
		Path:        "/works/{id}",
		Summary:     "Get a work selection",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *workPath) (*bodyOutput[WorkResponse], error) {
		if _, err := authorize(ctx, h.policy, "work.read"); err != nil {
			return nil, handleError(err)
		}
		w, err := h.engine.GetWork(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(workResponse(w)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-work-by-owner",
		Method:      http.MethodGet,
		Path:        "/owners/{owner_id}/work",
		Summary:     "Get the work selection of an owner",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		OwnerID int64 `path:"owner_id" minimum:"1"`
	}) (*bodyOutput[WorkResponse], error) {
		if _, err := authorize(ctx, h.policy, "work.read"); err != nil {
			return nil, handleError(err)
		}
		w, err := h.engine.GetWorkByOwner(ctx, input.OwnerID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(workResponse(w)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "review-selection",
		Method:      http.MethodPost,
		Path:        "/works/{id}/review",
		Summary:     "Accept or reject a pending selection",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id" minimum:"1"`
		Body ReviewRequest
	}) (*bodyOutput[WorkResponse], error) {
		actor, err := authorize(ctx, h.policy, "selection.review")
		if err != nil {
			return nil, handleError(err)
		}
		out, err := h.engine.ReviewSelection(ctx, actor, input.ID, domain.PlanState(input.Body.Verdict), input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(outcomeResponse(out)), nil
	})
}

func (h handlers) registerPlan(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "upload-plan",
		Method:      http.MethodPost,
		Path:        "/works/{id}/plan",
		Summary:     "Upload the plan document",
		Description: "Multipart form with a `file` part. Requires an accepted selection (412 otherwise). Sets plan conformity to pending.",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *uploadInput) (*bodyOutput[WorkResponse], error) {
		actor, err := authorize(ctx, h.policy, "plan.upload")
		if err != nil {
			return nil, handleError(err)
		}
		up, err := formUpload(&input.RawBody, "file")
		if err != nil {
			return nil, handleError(err)
		}
		out, err := h.engine.UploadPlanDocument(ctx, actor, input.ID, up)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(outcomeResponse(out)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-plan-conformity",
		Method:      http.MethodPost,
		Path:        "/works/{id}/plan/conformity",
		Summary:     "Accept or reject the plan document",
		Errors:      append(commonErrors, http.StatusBadGateway),
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id" minimum:"1"`
		Body ConformityRequest
	}) (*bodyOutput[WorkResponse], error) {
		actor, err := authorize(ctx, h.policy, "plan.resolve")
		if err != nil {
			return nil, handleError(err)
		}
		out, err := h.engine.ResolvePlanConformity(ctx, actor, input.ID, domain.Conformity(input.Body.Verdict), input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(outcomeResponse(out)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decline-or-restore",
		Method:      http.MethodPost,
		Path:        "/works/{id}/plan/decision",
		Summary:     "Decline or restore a selection before its plan document is reviewed",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id" minimum:"1"`
		Body DecisionRequest
	}) (*bodyOutput[WorkResponse], error) {
		actor, err := authorize(ctx, h.policy, "plan.decline")
		if err != nil {
			return nil, handleError(err)
		}
		out, err := h.engine.DeclineOrRestore(ctx, actor, input.ID, domain.PlanState(input.Body.TargetState), input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(outcomeResponse(out)), nil
	})
}

func (h handlers) registerCloseOut(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "request-completion-letter",
		Method:      http.MethodPost,
		Path:        "/works/{id}/completion",
		Summary:     "Request the completion letter",
		Description: "Only once, from not_requested (409 otherwise). Requires an accepted selection (412 otherwise).",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *workPath) (*bodyOutput[WorkResponse], error) {
		actor, err := authorize(ctx, h.policy, "completion.request")
		if err != nil {
			return nil, handleError(err)
		}
		out, err := h.engine.RequestCompletionLetter(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(outcomeResponse(out)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-completion-letter",
		Method:      http.MethodPost,
		Path:        "/works/{id}/completion/resolution",
		Summary:     "Approve or reject the completion request",
		Errors:      append(commonErrors, http.StatusBadGateway),
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id" minimum:"1"`
		Body CompletionResolutionRequest
	}) (*bodyOutput[WorkResponse], error) {
		actor, err := authorize(ctx, h.policy, "completion.resolve")
		if err != nil {
			return nil, handleError(err)
		}
		out, err := h.engine.ResolveCompletionLetter(ctx, actor, input.ID, domain.TerminationState(input.Body.Verdict))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(outcomeResponse(out)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "store-letter",
		Method:      http.MethodPut,
		Path:        "/works/{id}/letters/{kind}",
		Summary:     "Replace the acceptance or completion letter",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID      int64  `path:"id" minimum:"1"`
		Kind    string `path:"kind" enum:"acceptance,completion"`
		RawBody multipart.Form
	}) (*bodyOutput[WorkResponse], error) {
		actor, err := authorize(ctx, h.policy, "letter.store")
		if err != nil {
			return nil, handleError(err)
		}
		up, err := formUpload(&input.RawBody, "file")
		if err != nil {
			return nil, handleError(err)
		}
		out, err := h.engine.StoreLetter(ctx, actor, input.ID, domain.DocumentKind(input.Kind), up)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(outcomeResponse(out)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-final-report",
		Method:      http.MethodPost,
		Path:        "/works/{id}/final-report",
		Summary:     "Submit the final report",
		Description: "Multipart form with a `file` part. Requires an approved completion request (412 otherwise).",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *uploadInput) (*bodyOutput[WorkResponse], error) {
		actor, err := authorize(ctx, h.policy, "report.submit")
		if err != nil {
			return nil, handleError(err)
		}
		up, err := formUpload(&input.RawBody, "file")
		if err != nil {
			return nil, handleError(err)
		}
		out, err := h.engine.SubmitFinalReport(ctx, actor, input.ID, up)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(outcomeResponse(out)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-final-report-state",
		Method:      http.MethodPut,
		Path:        "/works/{id}/final-report/state",
		Summary:     "Set the final report verdict",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id" minimum:"1"`
		Body ReportStateRequest
	}) (*bodyOutput[WorkResponse], error) {
		actor, err := authorize(ctx, h.policy, "report.review")
		if err != nil {
			return nil, handleError(err)
		}
		out, err := h.engine.SetFinalReportState(ctx, actor, input.ID, domain.ReportState(input.Body.State))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(outcomeResponse(out)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "issue-certificate",
		Method:      http.MethodPost,
		Path:        "/works/{id}/certificate",
		Summary:     "Issue the certificate",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *uploadInput) (*bodyOutput[WorkResponse], error) {
		actor, err := authorize(ctx, h.policy, "certificate.issue")
		if err != nil {
			return nil, handleError(err)
		}
		up, err := formUpload(&input.RawBody, "file")
		if err != nil {
			return nil, handleError(err)
		}
		out, err := h.engine.IssueCertificate(ctx, actor, input.ID, up)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(outcomeResponse(out)), nil
	})
}
