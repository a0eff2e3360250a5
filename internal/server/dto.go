package server

import (
	"socialservice/internal/domain"
	"socialservice/internal/engine"
)

// Request payloads

type ReviewRequest struct {
	Verdict string `json:"verdict" enum:"accepted,rejected"`
	Reason  string `json:"reason,omitempty"`
}

type ConformityRequest struct {
	Verdict string `json:"verdict" enum:"accepted,rejected"`
	Reason  string `json:"reason,omitempty"`
}

type DecisionRequest struct {
	TargetState string `json:"target_state" enum:"accepted,rejected"`
	Reason      string `json:"reason" minLength:"1"`
}

type CompletionResolutionRequest struct {
	Verdict string `json:"verdict" enum:"approved,rejected"`
}

type ReportStateRequest struct {
	State string `json:"state" enum:"pending,approved,rejected"`
}

type ScheduleRequest struct {
	Activities []engine.ActivityInput `json:"activities"`
}

type ActivityStatusRequest struct {
	Status string `json:"status" enum:"approved,observed,pending"`
}

type ActivityObservationRequest struct {
	Text string `json:"text" minLength:"1"`
}

type AddMembersRequest struct {
	Emails []string `json:"emails" minItems:"1"`
}

type MemberStatusRequest struct {
	Status string `json:"status" enum:"ATTENDED,NOT_ATTENDED"`
}

type ObservationRequest struct {
	Category string `json:"category" minLength:"1"`
	Body     string `json:"body" minLength:"1"`
}

// Responses

type WorkResponse struct {
	domain.WorkSelection
	Finished bool     `json:"finished"`
	Warnings []string `json:"warnings,omitempty"`
}

func workResponse(w domain.WorkSelection) WorkResponse {
	return WorkResponse{WorkSelection: w, Finished: w.Finished()}
}

func outcomeResponse(out engine.Outcome) WorkResponse {
	resp := workResponse(out.Work)
	resp.Warnings = out.Warnings
	return resp
}

func mapWorks(items []domain.WorkSelection) []WorkResponse {
	res := make([]WorkResponse, 0, len(items))
	for _, w := range items {
		res = append(res, workResponse(w))
	}
	return res
}

type paginatedWorks struct {
	Items      []WorkResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type EvidenceWindowResponse struct {
	From string `json:"from" format:"date"`
	To   string `json:"to" format:"date"`
}

type ActivityResponse struct {
	domain.ScheduledActivity
	Window *EvidenceWindowResponse `json:"evidence_window,omitempty"`
}

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
