package api

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dgallion1/planmark/internal/ingest"
	"github.com/dgallion1/planmark/internal/parser"
)

// handleIngest accepts a drawing set (PDF, becomes pages) or a room
// schedule (becomes entities).
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	kind := ingest.KindOutline
	if parser.IsPDF(filename) {
		kind = ingest.KindPages
	}
	if v := r.FormValue("kind"); v != "" && ingest.JobKind(v) != kind {
		jsonError(w, fmt.Sprintf("%s cannot be ingested as %s", filename, v), http.StatusBadRequest)
		return
	}
	if kind == ingest.KindOutline && !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	var drawingScale float64
	if v := r.FormValue("drawing_scale"); v != "" {
		drawingScale, err = strconv.ParseFloat(v, 64)
		if err != nil || drawingScale <= 0 {
			jsonError(w, "drawing_scale must be a positive number", http.StatusBadRequest)
			return
		}
	}

	// Read file data.
	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	job := ingest.NewJob(uuid.NewString(), kind, filename, data)
	job.Title = r.FormValue("title")
	job.DrawingScale = drawingScale
	if kind == ingest.KindPages {
		job.DocumentID = r.FormValue("document_id")
		if job.DocumentID == "" {
			job.DocumentID = ingest.DocumentIDFor(job.ContentHash)
		}
	}

	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":      job.ID,
		"kind":        job.Kind,
		"document_id": job.DocumentID,
		"status":      ingest.StatusQueued,
		"poll_url":    fmt.Sprintf("/api/ingest/%s/status", job.ID),
	})
}

func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
