package engine

import (
	"time"

	"socialservice/internal/domain"
)

const dateLayout = "2006-01-02"

type EffectKind string

const (
	EffectDeleteFile     EffectKind = "delete_file"
	EffectRenderDocument EffectKind = "render_document"
)

// Effect is a side effect requested by a transition. Effects run after the
// state change commits and never roll it back.
type Effect struct {
	Kind     EffectKind
	FileRef  string
	Document domain.DocumentKind
}

func deleteFile(ref *string) []Effect {
	if ref == nil || *ref == "" {
		return nil
	}
	return []Effect{{Kind: EffectDeleteFile, FileRef: *ref}}
}

func replaceFile(old *string, ref string) []Effect {
	if old != nil && *old == ref {
		return nil
	}
	return deleteFile(old)
}

func renderDocument(kind domain.DocumentKind) Effect {
	return Effect{Kind: EffectRenderDocument, Document: kind}
}

func workConflict(w domain.WorkSelection, field, current, reason string) ConflictError {
	return ConflictError{Entity: "work selection", ID: w.ID, Field: field, Current: current, Reason: reason}
}

func conformityPtr(c domain.Conformity) *domain.Conformity {
	return &c
}

func requireFile(ref string) error {
	if ref == "" {
		return ValidationError{Field: "file", Reason: "a file is required"}
	}
	return nil
}

// --- plan track ---

func reviewSelection(w domain.WorkSelection, verdict domain.PlanState) (domain.WorkSelection, error) {
	if verdict != domain.PlanAccepted && verdict != domain.PlanRejected {
		return w, ValidationError{Field: "verdict", Reason: "must be accepted or rejected"}
	}
	if w.PlanConformity != nil {
		return w, workConflict(w, "plan_conformity", w.ConformityValue(), "the plan state is frozen once a plan document is under review")
	}
	if w.PlanState != domain.PlanPending {
		return w, workConflict(w, "plan_state", string(w.PlanState), "the selection was already reviewed")
	}
	w.PlanState = verdict
	return w, nil
}

// guardPlanUpload opens the document gate only after the selection was accepted.
func guardPlanUpload(w domain.WorkSelection) error {
	switch w.PlanState {
	case domain.PlanRejected:
		return workConflict(w, "plan_state", string(w.PlanState), "the selection was declined")
	case domain.PlanPending:
		return PreconditionError{Stage: "plan_state", Current: string(w.PlanState), Reason: "the selection must be accepted before a plan document is uploaded"}
	}
	if w.PlanConformity != nil && *w.PlanConformity == domain.ConformityAccepted {
		return workConflict(w, "plan_conformity", w.ConformityValue(), "the plan document is already approved")
	}
	return nil
}

// uploadPlan stores ref as the plan document and opens the conformity gate.
// A document still awaiting review is replaced.
func uploadPlan(w domain.WorkSelection, ref string) (domain.WorkSelection, []Effect, error) {
	if err := requireFile(ref); err != nil {
		return w, nil, err
	}
	if err := guardPlanUpload(w); err != nil {
		return w, nil, err
	}
	effects := replaceFile(w.PlanFile, ref)
	w.PlanFile = &ref
	w.PlanConformity = conformityPtr(domain.ConformityPending)
	return w, effects, nil
}

func resolveConformity(w domain.WorkSelection, verdict domain.Conformity) (domain.WorkSelection, []Effect, error) {
	if verdict != domain.ConformityAccepted && verdict != domain.ConformityRejected {
		return w, nil, ValidationError{Field: "verdict", Reason: "must be accepted or rejected"}
	}
	if w.PlanConformity == nil || *w.PlanConformity != domain.ConformityPending || w.PlanFile == nil {
		return w, nil, workConflict(w, "plan_conformity", w.ConformityValue(), "no plan document is awaiting review")
	}
	if verdict == domain.ConformityRejected {
		effects := deleteFile(w.PlanFile)
		w.PlanFile = nil
		w.PlanConformity = nil
		return w, effects, nil
	}
	w.PlanConformity = conformityPtr(domain.ConformityAccepted)
	return w, []Effect{renderDocument(domain.DocAcceptanceLetter)}, nil
}

// declineOrRestore flips the selection verdict while the document gate is
// not engaged.
func declineOrRestore(w domain.WorkSelection, target domain.PlanState) (domain.WorkSelection, []Effect, error) {
	if target != domain.PlanAccepted && target != domain.PlanRejected {
		return w, nil, ValidationError{Field: "target_state", Reason: "must be accepted or rejected"}
	}
	if w.PlanConformity != nil {
		return w, nil, workConflict(w, "plan_conformity", w.ConformityValue(), "the plan state is frozen once a plan document is under review")
	}
	if w.PlanState == target {
		return w, nil, workConflict(w, "plan_state", string(w.PlanState), "")
	}
	var effects []Effect
	if w.PlanState == domain.PlanAccepted && target == domain.PlanRejected {
		effects = deleteFile(w.AcceptanceLetterFile)
		w.AcceptanceLetterFile = nil
	}
	w.PlanState = target
	return w, effects, nil
}

// --- completion letter track ---

func requestCompletion(w domain.WorkSelection) (domain.WorkSelection, error) {
	if w.TerminationRequest != domain.TerminationNotRequested {
		return w, workConflict(w, "termination_request", string(w.TerminationRequest), "a completion letter was already requested")
	}
	if w.PlanState != domain.PlanAccepted {
		return w, PreconditionError{Stage: "plan_state", Current: string(w.PlanState), Reason: "the selection must be accepted before requesting a completion letter"}
	}
	w.TerminationRequest = domain.TerminationRequested
	return w, nil
}

func resolveCompletion(w domain.WorkSelection, verdict domain.TerminationState) (domain.WorkSelection, []Effect, error) {
	if verdict != domain.TerminationApproved && verdict != domain.TerminationRejected {
		return w, nil, ValidationError{Field: "verdict", Reason: "must be approved or rejected"}
	}
	if w.TerminationRequest != domain.TerminationRequested {
		return w, nil, workConflict(w, "termination_request", string(w.TerminationRequest), "there is no pending completion request")
	}
	w.TerminationRequest = verdict
	if verdict == domain.TerminationApproved {
		return w, []Effect{renderDocument(domain.DocCompletionLetter)}, nil
	}
	return w, nil, nil
}

func guardLetter(w domain.WorkSelection, kind domain.DocumentKind) error {
	switch kind {
	case domain.DocAcceptanceLetter:
		if w.PlanConformity == nil || *w.PlanConformity != domain.ConformityAccepted {
			return PreconditionError{Stage: "plan_conformity", Current: w.ConformityValue(), Reason: "an acceptance letter requires an approved plan"}
		}
	case domain.DocCompletionLetter:
		if w.TerminationRequest != domain.TerminationApproved {
			return PreconditionError{Stage: "termination_request", Current: string(w.TerminationRequest), Reason: "a completion letter requires an approved completion request"}
		}
	default:
		return ValidationError{Field: "kind", Reason: "must be acceptance or completion"}
	}
	return nil
}

// storeLetter replaces a letter with a supervisor-provided file.
func storeLetter(w domain.WorkSelection, kind domain.DocumentKind, ref string) (domain.WorkSelection, []Effect, error) {
	if err := requireFile(ref); err != nil {
		return w, nil, err
	}
	if err := guardLetter(w, kind); err != nil {
		return w, nil, err
	}
	var effects []Effect
	if kind == domain.DocAcceptanceLetter {
		effects = replaceFile(w.AcceptanceLetterFile, ref)
		w.AcceptanceLetterFile = &ref
	} else {
		effects = replaceFile(w.CompletionLetterFile, ref)
		w.CompletionLetterFile = &ref
	}
	return w, effects, nil
}

// --- final report and certificate ---

func guardFinalReport(w domain.WorkSelection) error {
	if w.TerminationRequest != domain.TerminationApproved {
		return PreconditionError{Stage: "termination_request", Current: string(w.TerminationRequest), Reason: "the final report requires an approved completion request"}
	}
	return nil
}

func submitFinalReport(w domain.WorkSelection, ref string) (domain.WorkSelection, []Effect, error) {
	if err := requireFile(ref); err != nil {
		return w, nil, err
	}
	if err := guardFinalReport(w); err != nil {
		return w, nil, err
	}
	effects := replaceFile(w.FinalReportFile, ref)
	w.FinalReportFile = &ref
	w.FinalReportState = domain.ReportPending
	return w, effects, nil
}

func setFinalReportState(w domain.WorkSelection, state domain.ReportState) (domain.WorkSelection, error) {
	if !state.Valid() {
		return w, ValidationError{Field: "state", Reason: "must be pending, approved or rejected"}
	}
	w.FinalReportState = state
	return w, nil
}

func guardCertificate(w domain.WorkSelection) error {
	if w.FinalReportState != domain.ReportApproved {
		return PreconditionError{Stage: "final_report_state", Current: string(w.FinalReportState), Reason: "a certificate requires an approved final report"}
	}
	return nil
}

func issueCertificate(w domain.WorkSelection, ref string) (domain.WorkSelection, []Effect, error) {
	if err := requireFile(ref); err != nil {
		return w, nil, err
	}
	if err := guardCertificate(w); err != nil {
		return w, nil, err
	}
	effects := replaceFile(w.CertificateFile, ref)
	w.CertificateFile = &ref
	return w, effects, nil
}

// --- schedule ---

func guardScheduleWrite(w domain.WorkSelection) error {
	if w.PlanState != domain.PlanAccepted {
		return PreconditionError{Stage: "plan_state", Current: string(w.PlanState), Reason: "the schedule can only change once the selection is accepted"}
	}
	return nil
}

// evidenceWindow returns the inclusive date range around plannedEnd.
func evidenceWindow(plannedEnd string, before, after int) (time.Time, time.Time, error) {
	end, err := time.Parse(dateLayout, plannedEnd)
	if err != nil {
		return time.Time{}, time.Time{}, ValidationError{Field: "planned_end_date", Reason: "must be YYYY-MM-DD"}
	}
	return end.AddDate(0, 0, -before), end.AddDate(0, 0, after), nil
}

func guardEvidence(w domain.WorkSelection, a domain.ScheduledActivity, today time.Time, before, after int) error {
	if w.PlanState != domain.PlanAccepted {
		return workConflict(w, "plan_state", string(w.PlanState), "evidence requires an accepted selection")
	}
	if w.TerminationRequest == domain.TerminationRequested || w.TerminationRequest == domain.TerminationApproved {
		return workConflict(w, "termination_request", string(w.TerminationRequest), "no evidence is accepted once the close-out has begun")
	}
	if a.EvidenceFile != nil {
		return ConflictError{Entity: "activity", ID: a.ID, Field: "evidence", Current: "uploaded", Reason: "clear the current evidence first"}
	}
	from, to, err := evidenceWindow(a.PlannedEndDate, before, after)
	if err != nil {
		return err
	}
	if today.Before(from) || today.After(to) {
		return OutOfWindowError{Today: today.Format(dateLayout), From: from.Format(dateLayout), To: to.Format(dateLayout)}
	}
	return nil
}

func attachEvidence(a domain.ScheduledActivity, today time.Time, ref string, status *domain.ActivityStatus) (domain.ScheduledActivity, error) {
	if err := requireFile(ref); err != nil {
		return a, err
	}
	if status != nil && !status.Valid() {
		return a, ValidationError{Field: "status", Reason: "must be approved, observed or pending"}
	}
	completed := today.Format(dateLayout)
	a.CompletedOn = &completed
	a.EvidenceFile = &ref
	if status != nil {
		s := *status
		a.Status = &s
	}
	return a, nil
}

// clearEvidence resets the evidence fields together. An activity without
// evidence is returned unchanged.
func clearEvidence(a domain.ScheduledActivity) (domain.ScheduledActivity, []Effect, error) {
	if a.EvidenceFile == nil {
		return a, nil, nil
	}
	effects := deleteFile(a.EvidenceFile)
	a.EvidenceFile = nil
	a.CompletedOn = nil
	a.Status = nil
	return a, effects, nil
}

func setActivityStatus(a domain.ScheduledActivity, status domain.ActivityStatus) (domain.ScheduledActivity, error) {
	if !status.Valid() {
		return a, ValidationError{Field: "status", Reason: "must be approved, observed or pending"}
	}
	a.Status = &status
	return a, nil
}

func observeActivity(a domain.ScheduledActivity, text string) (domain.ScheduledActivity, error) {
	if text == "" {
		return a, ValidationError{Field: "observation", Reason: "text is required"}
	}
	observed := domain.ActivityObserved
	a.Status = &observed
	a.Observation = &text
	return a, nil
}
