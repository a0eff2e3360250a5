package socialservicesdk

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"socialservice/internal/config"
	"socialservice/internal/db"
	"socialservice/internal/engine"
	"socialservice/internal/engine/auth"
	"socialservice/internal/filestore"
	"socialservice/internal/logging"
	"socialservice/internal/migrate"
	"socialservice/internal/render"
	"socialservice/internal/server"
)

const secret = "sdk-secret"

func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	e := engine.New(conn, cfg)
	now := time.Date(2024, 6, 1, 17, 0, 0, 0, time.UTC)
	e.Now = func() time.Time { return now }
	e.Logger = logging.Discard()
	files := filestore.NewMemory()
	e.Files = files
	e.Renderer = render.PDF{Files: files}
	handler, err := server.New(server.Config{
		Engine: e,
		Policy: auth.NewPolicy(cfg),
		Files:  files,
		Auth:   server.AuthConfig{JWTSecret: secret},
		Logger: logging.Discard(),
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func clientFor(t *testing.T, srv *httptest.Server, actor, role string) *Client {
	t.Helper()
	token, err := server.SignToken(secret, actor, role, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return New(srv.URL, token)
}

func TestClientDrivesWorkflow(t *testing.T) {
	srv := newAPI(t)
	ctx := context.Background()
	student := clientFor(t, srv, "student-1", "student")
	supervisor := clientFor(t, srv, "sup-1", "supervisor")

	w, err := student.CreateWork(ctx, NewWork{OwnerID: 10, ServiceType: "individual", ProgramID: 1, FacultyID: 1, InstructorID: 1, LaborID: 1, ActionLineID: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := supervisor.ReviewSelection(ctx, w.ID, "accepted", ""); err != nil {
		t.Fatalf("review: %v", err)
	}
	w, err = student.UploadPlan(ctx, w.ID, "plan.pdf", []byte("%PDF plan"))
	if err != nil {
		t.Fatalf("upload plan: %v", err)
	}
	if w.PlanConformity == nil || *w.PlanConformity != "pending" {
		t.Fatalf("expected pending conformity, got %v", w.PlanConformity)
	}
	items, err := student.ReplaceSchedule(ctx, w.ID, []ActivityInput{{Description: "Tutoring", StartDate: "2024-05-20", PlannedEndDate: "2024-06-02"}})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(items) != 1 || items[0].EvidenceWindow == nil || items[0].EvidenceWindow.From != "2024-05-28" {
		t.Fatalf("unexpected schedule %+v", items)
	}
	act, err := student.AttachEvidence(ctx, items[0].ID, "photo.jpg", []byte("jpeg"), "")
	if err != nil {
		t.Fatalf("evidence: %v", err)
	}
	if act.EvidenceFile == nil {
		t.Fatalf("expected evidence file")
	}

	page, err := supervisor.EventsPage(ctx, w.ID, 10, "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(page.Items) == 0 || page.Items[0].Type != "evidence.attached" {
		t.Fatalf("unexpected events %+v", page.Items)
	}
}

func TestClientDecodesErrorEnvelope(t *testing.T) {
	srv := newAPI(t)
	ctx := context.Background()
	student := clientFor(t, srv, "student-1", "student")

	w, err := student.CreateWork(ctx, NewWork{OwnerID: 10, ServiceType: "individual", ProgramID: 1, FacultyID: 1, InstructorID: 1, LaborID: 1, ActionLineID: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = student.RequestCompletion(ctx, w.ID)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != 412 || apiErr.Code != "precondition_failed" {
		t.Fatalf("unexpected error %+v", apiErr)
	}

	_, err = student.ReviewSelection(ctx, w.ID, "accepted", "")
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 403 {
		t.Fatalf("expected forbidden, got %v", err)
	}
}
