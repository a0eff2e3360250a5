package filestore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestSaveOpenDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	ref, err := s.Save(ctx, []byte("plan"), "Plan Final.PDF")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasSuffix(ref, ".pdf") {
		t.Fatalf("expected pdf extension, got %s", ref)
	}
	ok, err := s.Exists(ctx, ref)
	if err != nil || !ok {
		t.Fatalf("expected file to exist: %v", err)
	}
	rc, err := s.Open(ctx, ref)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "plan" {
		t.Fatalf("unexpected content %q", data)
	}
	deleted, err := s.Delete(ctx, ref)
	if err != nil || !deleted {
		t.Fatalf("delete: %v %v", deleted, err)
	}
	deleted, err = s.Delete(ctx, ref)
	if err != nil || deleted {
		t.Fatalf("second delete should report absent: %v %v", deleted, err)
	}
}

func TestDiskStoreKeepsFilesUnderRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "uploads")
	s := NewDisk(root)
	ctx := context.Background()
	ref, err := s.Save(ctx, []byte("letter"), "carta.pdf")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, ref))
	if err != nil || string(data) != "letter" {
		t.Fatalf("expected file under root: %q %v", data, err)
	}
	if ok, err := s.Delete(ctx, ref); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(root, ref)); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, got %v", err)
	}
}

func TestRejectsEscapingRefs(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/root")
	for _, ref := range []string{"", "..", "../etc/passwd", `a\b`} {
		if _, err := s.Delete(context.Background(), ref); err != ErrInvalidRef {
			t.Fatalf("ref %q: expected ErrInvalidRef, got %v", ref, err)
		}
	}
}

func TestCleanExt(t *testing.T) {
	if got := cleanExt("noext"); got != "" {
		t.Fatalf("expected empty ext, got %q", got)
	}
	if got := cleanExt("a.averyveryverylongext"); got != "" {
		t.Fatalf("expected long ext dropped, got %q", got)
	}
	if got := cleanExt("dir/x.Docx"); got != ".docx" {
		t.Fatalf("unexpected ext %q", got)
	}
}
