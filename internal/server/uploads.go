package server

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"socialservice/internal/engine"
	"socialservice/internal/engine/auth"
	"socialservice/internal/filestore"
)

const maxUploadBytes = 20 << 20

// formUpload reads the file part named field.
func formUpload(form *multipart.Form, field string) (engine.Upload, error) {
	if form == nil || len(form.File[field]) == 0 {
		return engine.Upload{}, engine.ValidationError{Field: field, Reason: "a file part is required"}
	}
	fh := form.File[field][0]
	if fh.Size > maxUploadBytes {
		return engine.Upload{}, engine.ValidationError{Field: field, Reason: "file exceeds 20 MiB"}
	}
	f, err := fh.Open()
	if err != nil {
		return engine.Upload{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		return engine.Upload{}, err
	}
	if len(data) > maxUploadBytes {
		return engine.Upload{}, engine.ValidationError{Field: field, Reason: "file exceeds 20 MiB"}
	}
	return engine.Upload{Name: path.Base(fh.Filename), Data: data}, nil
}

func formValue(form *multipart.Form, field string) string {
	if form == nil || len(form.Value[field]) == 0 {
		return ""
	}
	return strings.TrimSpace(form.Value[field][0])
}

// registerFiles serves stored documents by reference.
func registerFiles(r chi.Router, basePath string, files FileOpener, policy auth.Policy) {
	if files == nil {
		return
	}
	r.Get(path.Join(basePath, "files", "{ref}"), func(w http.ResponseWriter, req *http.Request) {
		if _, err := authorize(req.Context(), policy, "work.read"); err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		ref := chi.URLParam(req, "ref")
		rc, err := files.Open(req.Context(), ref)
		if err != nil {
			if errors.Is(err, filestore.ErrInvalidRef) {
				respondStatusError(w, handleError(err))
				return
			}
			respondStatusError(w, newAPIError(http.StatusNotFound, "not_found", "file "+ref+" not found", nil))
			return
		}
		defer rc.Close()
		contentType := mime.TypeByExtension(path.Ext(ref))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		if _, err := io.Copy(w, rc); err != nil {
			slog.WarnContext(req.Context(), "file download interrupted", slog.String("file", ref), slog.String("error", err.Error()))
		}
	})
}
