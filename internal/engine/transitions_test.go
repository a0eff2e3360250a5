package engine

import (
	"errors"
	"testing"
	"time"

	"socialservice/internal/domain"
)

func ref(s string) *string { return &s }

func pendingWork() domain.WorkSelection {
	return domain.WorkSelection{
		ID:                 1,
		ServiceType:        domain.ServiceIndividual,
		PlanState:          domain.PlanPending,
		TerminationRequest: domain.TerminationNotRequested,
		FinalReportState:   domain.ReportPending,
	}
}

func TestResolveConformityEffects(t *testing.T) {
	w := pendingWork()
	w.PlanState = domain.PlanAccepted
	w, effects, err := uploadPlan(w, "plan-a.pdf")
	if err != nil || len(effects) != 0 {
		t.Fatalf("upload: %v %v", effects, err)
	}
	w, effects, err = uploadPlan(w, "plan-b.pdf")
	if err != nil {
		t.Fatalf("re-upload: %v", err)
	}
	if len(effects) != 1 || effects[0].Kind != EffectDeleteFile || effects[0].FileRef != "plan-a.pdf" {
		t.Fatalf("expected previous plan deleted, got %+v", effects)
	}

	rejected, effects, err := resolveConformity(w, domain.ConformityRejected)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.PlanFile != nil || rejected.PlanConformity != nil {
		t.Fatalf("expected reset, got %+v", rejected)
	}
	if len(effects) != 1 || effects[0].FileRef != "plan-b.pdf" {
		t.Fatalf("expected delete of plan-b.pdf, got %+v", effects)
	}

	accepted, effects, err := resolveConformity(w, domain.ConformityAccepted)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.PlanFile == nil || *accepted.PlanFile != "plan-b.pdf" {
		t.Fatalf("accepted plan must keep its document")
	}
	if len(effects) != 1 || effects[0].Kind != EffectRenderDocument || effects[0].Document != domain.DocAcceptanceLetter {
		t.Fatalf("expected acceptance render, got %+v", effects)
	}

	var ve ValidationError
	if _, _, err := resolveConformity(w, domain.ConformityPending); !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var ce ConflictError
	if _, _, err := resolveConformity(pendingWork(), domain.ConformityAccepted); !errors.As(err, &ce) || ce.Current != "null" {
		t.Fatalf("expected conflict on missing document, got %v", err)
	}
}

func TestDeclineDeletesAcceptanceLetter(t *testing.T) {
	w := pendingWork()
	w.PlanState = domain.PlanAccepted
	w.AcceptanceLetterFile = ref("letter.pdf")
	next, effects, err := declineOrRestore(w, domain.PlanRejected)
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if next.AcceptanceLetterFile != nil || next.PlanState != domain.PlanRejected {
		t.Fatalf("unexpected state %+v", next)
	}
	if len(effects) != 1 || effects[0].FileRef != "letter.pdf" {
		t.Fatalf("expected letter deletion, got %+v", effects)
	}
	restored, effects, err := declineOrRestore(next, domain.PlanAccepted)
	if err != nil || len(effects) != 0 || restored.PlanState != domain.PlanAccepted {
		t.Fatalf("restore: %+v %v", effects, err)
	}
}

func TestConformityFreezesPlanState(t *testing.T) {
	for _, c := range []domain.Conformity{domain.ConformityPending, domain.ConformityAccepted, domain.ConformityRejected} {
		w := pendingWork()
		w.PlanState = domain.PlanAccepted
		w.PlanConformity = conformityPtr(c)
		for _, target := range []domain.PlanState{domain.PlanAccepted, domain.PlanRejected} {
			_, _, err := declineOrRestore(w, target)
			var ce ConflictError
			if !errors.As(err, &ce) {
				t.Fatalf("conformity %s target %s: expected conflict, got %v", c, target, err)
			}
		}
	}
}

func TestPlanUploadNeedsAcceptedSelection(t *testing.T) {
	w := pendingWork()
	var pe PreconditionError
	if _, _, err := uploadPlan(w, "plan.pdf"); !errors.As(err, &pe) || pe.Stage != "plan_state" {
		t.Fatalf("expected plan_state precondition, got %v", err)
	}
	w.PlanState = domain.PlanRejected
	var ce ConflictError
	if _, _, err := uploadPlan(w, "plan.pdf"); !errors.As(err, &ce) || ce.Field != "plan_state" {
		t.Fatalf("expected plan_state conflict, got %v", err)
	}
	w.PlanState = domain.PlanAccepted
	w.PlanConformity = conformityPtr(domain.ConformityAccepted)
	if _, _, err := uploadPlan(w, "plan.pdf"); !errors.As(err, &ce) || ce.Field != "plan_conformity" {
		t.Fatalf("expected plan_conformity conflict, got %v", err)
	}
}

func TestReviewRefusedWhileConformityEngaged(t *testing.T) {
	for _, c := range []domain.Conformity{domain.ConformityPending, domain.ConformityAccepted, domain.ConformityRejected} {
		for _, state := range []domain.PlanState{domain.PlanPending, domain.PlanAccepted} {
			w := pendingWork()
			w.PlanState = state
			w.PlanConformity = conformityPtr(c)
			for _, verdict := range []domain.PlanState{domain.PlanAccepted, domain.PlanRejected} {
				next, err := reviewSelection(w, verdict)
				var ce ConflictError
				if !errors.As(err, &ce) || ce.Field != "plan_conformity" {
					t.Fatalf("conformity %s state %s verdict %s: expected plan_conformity conflict, got %v", c, state, verdict, err)
				}
				if next.PlanState != state {
					t.Fatalf("plan state moved to %s", next.PlanState)
				}
			}
		}
	}
}

func TestCompletionTrackIsOneWay(t *testing.T) {
	w := pendingWork()
	w.PlanState = domain.PlanAccepted
	for _, from := range []domain.TerminationState{domain.TerminationRequested, domain.TerminationApproved, domain.TerminationRejected} {
		w.TerminationRequest = from
		var ce ConflictError
		if _, err := requestCompletion(w); !errors.As(err, &ce) {
			t.Fatalf("request from %s: expected conflict, got %v", from, err)
		}
	}
	for _, from := range []domain.TerminationState{domain.TerminationNotRequested, domain.TerminationApproved, domain.TerminationRejected} {
		w.TerminationRequest = from
		var ce ConflictError
		if _, _, err := resolveCompletion(w, domain.TerminationApproved); !errors.As(err, &ce) {
			t.Fatalf("resolve from %s: expected conflict, got %v", from, err)
		}
	}
	w.TerminationRequest = domain.TerminationRequested
	next, effects, err := resolveCompletion(w, domain.TerminationRejected)
	if err != nil || len(effects) != 0 || next.TerminationRequest != domain.TerminationRejected {
		t.Fatalf("reject: %+v %v", effects, err)
	}
}

func TestEvidenceGuardOrder(t *testing.T) {
	today := time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)
	a := domain.ScheduledActivity{ID: 9, PlannedEndDate: "2024-06-10"}
	w := pendingWork()

	var ce ConflictError
	if err := guardEvidence(w, a, today, 5, 10); !errors.As(err, &ce) || ce.Field != "plan_state" {
		t.Fatalf("expected plan_state conflict, got %v", err)
	}
	w.PlanState = domain.PlanAccepted
	w.TerminationRequest = domain.TerminationApproved
	if err := guardEvidence(w, a, today, 5, 10); !errors.As(err, &ce) || ce.Field != "termination_request" {
		t.Fatalf("expected termination conflict, got %v", err)
	}
	w.TerminationRequest = domain.TerminationRejected
	a.EvidenceFile = ref("old.jpg")
	if err := guardEvidence(w, a, today, 5, 10); !errors.As(err, &ce) || ce.Field != "evidence" {
		t.Fatalf("expected evidence conflict, got %v", err)
	}
	a.EvidenceFile = nil
	if err := guardEvidence(w, a, today, 5, 10); err != nil {
		t.Fatalf("expected upload allowed after a rejected completion request, got %v", err)
	}
	var oow OutOfWindowError
	if err := guardEvidence(w, a, today.AddDate(0, 0, 9), 5, 10); !errors.As(err, &oow) || oow.To != "2024-06-20" {
		t.Fatalf("expected out of window, got %v", err)
	}
}

func TestClearEvidenceResetsTogether(t *testing.T) {
	status := domain.ActivityApproved
	a := domain.ScheduledActivity{ID: 3, EvidenceFile: ref("e.pdf"), CompletedOn: ref("2024-06-10"), Status: &status, Observation: ref("ok")}
	next, effects, err := clearEvidence(a)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if again, effects, err := clearEvidence(next); err != nil || len(effects) != 0 || again != next {
		t.Fatalf("clearing empty evidence should be a no-op: %+v %v", effects, err)
	}
	if next.EvidenceFile != nil || next.CompletedOn != nil || next.Status != nil {
		t.Fatalf("expected reset, got %+v", next)
	}
	if next.Observation == nil {
		t.Fatalf("observation text must survive clearing")
	}
	if len(effects) != 1 || effects[0].FileRef != "e.pdf" {
		t.Fatalf("unexpected effects %+v", effects)
	}
}

func TestCertificateGuard(t *testing.T) {
	w := pendingWork()
	var pe PreconditionError
	if _, _, err := issueCertificate(w, "c.pdf"); !errors.As(err, &pe) || pe.Current != "pending" {
		t.Fatalf("expected precondition, got %v", err)
	}
	w.FinalReportState = domain.ReportApproved
	w.CertificateFile = ref("old.pdf")
	next, effects, err := issueCertificate(w, "c.pdf")
	if err != nil || !next.Finished() {
		t.Fatalf("issue: %v", err)
	}
	if len(effects) != 1 || effects[0].FileRef != "old.pdf" {
		t.Fatalf("expected old certificate deleted, got %+v", effects)
	}
}

func TestNormalizeEmails(t *testing.T) {
	got, err := normalizeEmails([]string{" A@UDH.EDU.PE", "b@udh.edu.pe"}, "udh.edu.pe")
	if err != nil || got[0] != "a@udh.edu.pe" || got[1] != "b@udh.edu.pe" {
		t.Fatalf("normalize: %v %v", got, err)
	}
	for _, bad := range [][]string{
		{"a@udh.edu.pe", " a@UDH.edu.pe"},
		{"@udh.edu.pe"},
		{"a@evil.udh.edu.pe.com"},
		{"a@b@udh.edu.pe"},
		{""},
	} {
		var ve ValidationError
		if _, err := normalizeEmails(bad, "udh.edu.pe"); !errors.As(err, &ve) {
			t.Fatalf("%v: expected validation error, got %v", bad, err)
		}
	}
}
