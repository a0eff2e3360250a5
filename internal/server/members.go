package server

import (
	"context"
	"mime/multipart"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"socialservice/internal/domain"
)

func (h handlers) registerMembers(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/works/{id}/members",
		Summary:     "List group members",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *workPath) (*bodyOutput[[]domain.GroupMember], error) {
		if _, err := authorize(ctx, h.policy, "work.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := h.engine.ListMembers(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNil(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-members",
		Method:        http.MethodPost,
		Path:          "/works/{id}/members",
		Summary:       "Add members to a group selection",
		DefaultStatus: http.StatusCreated,
		Errors:        commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id" minimum:"1"`
		Body AddMembersRequest
	}) (*bodyOutput[[]domain.GroupMember], error) {
		actor, err := authorize(ctx, h.policy, "members.write")
		if err != nil {
			return nil, handleError(err)
		}
		items, err := h.engine.AddMembers(ctx, actor, input.ID, input.Body.Emails)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNil(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-member-status",
		Method:      http.MethodPut,
		Path:        "/members/{id}/status",
		Summary:     "Record member attendance",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id" minimum:"1"`
		Body MemberStatusRequest
	}) (*bodyOutput[domain.GroupMember], error) {
		actor, err := authorize(ctx, h.policy, "members.status")
		if err != nil {
			return nil, handleError(err)
		}
		m, err := h.engine.SetMemberStatus(ctx, actor, input.ID, domain.AttendanceStatus(input.Body.Status))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(m), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-enriched-members",
		Method:      http.MethodGet,
		Path:        "/works/{id}/members/enriched",
		Summary:     "List group members with their directory identity",
		Description: "Members whose lookup fails are returned with a diagnostic instead of an identity.",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *workPath) (*bodyOutput[[]domain.EnrichedMember], error) {
		if _, err := authorize(ctx, h.policy, "members.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := h.engine.Enrich(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNil(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-identity",
		Method:      http.MethodGet,
		Path:        "/identities/{code}",
		Summary:     "Look up an institutional code in the academic directory",
		Errors:      append(commonErrors, http.StatusBadGateway),
	}, func(ctx context.Context, input *struct {
		Code string `path:"code" minLength:"1"`
	}) (*bodyOutput[domain.Identity], error) {
		if _, err := authorize(ctx, h.policy, "identity.read"); err != nil {
			return nil, handleError(err)
		}
		id, err := h.engine.ResolveIdentity(ctx, input.Code)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(id), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-member-document",
		Method:      http.MethodPut,
		Path:        "/works/{id}/member-documents/{kind}/{code}",
		Summary:     "Store a per-member acceptance letter or certificate",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID      int64  `path:"id" minimum:"1"`
		Kind    string `path:"kind" enum:"acceptance,certificate"`
		Code    string `path:"code" minLength:"1"`
		RawBody multipart.Form
	}) (*bodyOutput[domain.MemberDocument], error) {
		actor, err := authorize(ctx, h.policy, "member_documents.write")
		if err != nil {
			return nil, handleError(err)
		}
		up, err := formUpload(&input.RawBody, "file")
		if err != nil {
			return nil, handleError(err)
		}
		doc, err := h.engine.RecordMemberDocument(ctx, actor, input.ID, domain.MemberDocumentKind(input.Kind), input.Code, up)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(doc), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-member-documents",
		Method:      http.MethodGet,
		Path:        "/works/{id}/member-documents",
		Summary:     "List per-member documents",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64  `path:"id" minimum:"1"`
		Kind string `query:"kind" enum:"acceptance,certificate,"`
	}) (*bodyOutput[[]domain.MemberDocument], error) {
		if _, err := authorize(ctx, h.policy, "work.read"); err != nil {
			return nil, handleError(err)
		}
		items, err := h.engine.ListMemberDocuments(ctx, input.ID, domain.MemberDocumentKind(input.Kind))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNil(items)), nil
	})
}
