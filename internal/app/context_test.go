package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"socialservice/internal/config"
	"socialservice/internal/domain"
	"socialservice/internal/engine"
	"socialservice/internal/logging"
)

func TestOpenWiresDefaults(t *testing.T) {
	workspace := t.TempDir()
	rt, err := Open(context.Background(), workspace, "", logging.Discard())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()

	if rt.Config.Institution.EmailDomain != "udh.edu.pe" {
		t.Fatalf("expected default domain, got %q", rt.Config.Institution.EmailDomain)
	}
	if rt.Engine.Files == nil || rt.Engine.Renderer == nil || rt.Engine.Directory == nil {
		t.Fatalf("expected collaborators wired")
	}
	w, err := rt.Engine.CreateWork(context.Background(), domain.Actor{ID: "cli", Role: "admin"}, engine.CreateWorkInput{
		OwnerID: 1, ServiceType: "individual", ProgramID: 1, FacultyID: 1, InstructorID: 1, LaborID: 1, ActionLineID: 1,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := rt.Engine.ReviewSelection(context.Background(), domain.Actor{ID: "cli", Role: "admin"}, w.ID, domain.PlanAccepted, ""); err != nil {
		t.Fatalf("review: %v", err)
	}
	out, err := rt.Engine.UploadPlanDocument(context.Background(), domain.Actor{ID: "cli", Role: "admin"}, w.ID, engine.Upload{Name: "plan.pdf", Data: []byte("plan")})
	if err != nil {
		t.Fatalf("upload plan: %v", err)
	}
	if out.Work.PlanFile == nil {
		t.Fatalf("expected stored plan file")
	}
	if _, err := os.Stat(filepath.Join(workspace, "uploads", *out.Work.PlanFile)); err != nil {
		t.Fatalf("expected plan on disk: %v", err)
	}
}

func TestOpenHonoursConfigFile(t *testing.T) {
	workspace := t.TempDir()
	yml := "institution:\n  email_domain: example.edu\nstorage:\n  root: docs\n"
	if err := os.WriteFile(config.Path(workspace), []byte(yml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	rt, err := Open(context.Background(), workspace, "", logging.Discard())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	if rt.Config.Institution.EmailDomain != "example.edu" {
		t.Fatalf("expected configured domain, got %q", rt.Config.Institution.EmailDomain)
	}
	if got := StorageRoot(workspace, rt.Config); got != filepath.Join(workspace, "docs") {
		t.Fatalf("unexpected storage root %s", got)
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	workspace := t.TempDir()
	path := filepath.Join(workspace, "custom.yml")
	if err := os.WriteFile(path, []byte("institution:\n  email_domain: \"a@b\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Open(context.Background(), workspace, path, logging.Discard()); err == nil {
		t.Fatalf("expected invalid config error")
	}
}

func TestStorageRootKeepsAbsolutePaths(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Root = "/srv/uploads"
	if got := StorageRoot("ws", cfg); got != "/srv/uploads" {
		t.Fatalf("unexpected root %s", got)
	}
}
