package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/go-chi/chi/v5"
)

// SendMedia handles POST /sessions/{tenant}/groups/{group}/media.
//
// The multipart form carries the file in "media" plus optional "caption",
// "mentionAll" and "mentionPhones" (repeated or comma separated). The upload
// is staged under its original name in a private directory that is removed
// once the send returns.
func (s *Server) SendMedia(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: err.Error()})
			return
		}
		s.writeError(w, r, domain.NewValidationError("media", "invalid multipart form: "+err.Error()))
		return
	}
	defer r.MultipartForm.RemoveAll()

	path, cleanup, err := s.stage(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer cleanup()

	opts, err := mentionForm(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	receipt, err := s.Sessions.SendMedia(r.Context(), tenantOf(r), chi.URLParam(r, "group"), path, r.FormValue("caption"), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) stage(r *http.Request) (string, func(), error) {
	file, header, err := r.FormFile("media")
	if err != nil {
		return "", nil, domain.NewValidationError("media", "file is required")
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "upload"
	}

	dir, err := os.MkdirTemp(s.uploadDir, "upload-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to stage upload: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("Failed to remove upload", "dir", dir, "err", err)
		}
	}

	path := filepath.Join(dir, name)
	out, err := os.Create(path)
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to stage upload: %w", err)
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to stage upload: %w", err)
	}
	if err := out.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to stage upload: %w", err)
	}
	return path, cleanup, nil
}

func mentionForm(r *http.Request) (domain.MentionOptions, error) {
	var opts domain.MentionOptions
	if v := r.FormValue("mentionAll"); v != "" {
		all, err := strconv.ParseBool(v)
		if err != nil {
			return opts, domain.NewValidationError("mentionAll", "must be a boolean")
		}
		opts.MentionAll = all
	}
	for _, v := range r.MultipartForm.Value["mentionPhones"] {
		for _, phone := range strings.Split(v, ",") {
			if phone = strings.TrimSpace(phone); phone != "" {
				opts.MentionPhones = append(opts.MentionPhones, phone)
			}
		}
	}
	return opts, nil
}
