package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/dharsanguruparan/efolder-express/internal/archive"
	"github.com/dharsanguruparan/efolder-express/internal/model"
	"github.com/dharsanguruparan/efolder-express/internal/orchestrator"
	"github.com/dharsanguruparan/efolder-express/internal/repository"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, "index.html", nil)
}

func (s *Server) handleBeginDownload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	requestID, err := s.deps.Starter.BeginDownload(r.Context(), r.PostForm.Get("file_number"))
	if errors.Is(err, orchestrator.ErrEmptyFileNumber) {
		http.Error(w, "file number is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.logger.Error("begin download failed", slog.String("error", err.Error()))
		http.Error(w, "failed to start download", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/download/"+requestID+"/", http.StatusFound)
}

func (s *Server) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	dl, ok := s.loadDownload(w, r)
	if !ok {
		return
	}
	s.render(w, "download.html", newStatusView(dl))
}

func (s *Server) handleStatusJSON(w http.ResponseWriter, r *http.Request) {
	dl, ok := s.loadDownload(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, newStatusView(dl))
}

func (s *Server) handleZip(w http.ResponseWriter, r *http.Request) {
	dl, ok := s.loadDownload(w, r)
	if !ok {
		return
	}
	path, err := s.deps.Archiver.BuildFile(r.Context(), dl, s.opts.ArchiveDir)
	if err != nil {
		if !errors.Is(err, archive.ErrIncomplete) {
			s.logger.Error("build archive failed",
				slog.String("request_id", dl.RequestID),
				slog.String("error", err.Error()))
		}
		http.Error(w, "archive unavailable", http.StatusInternalServerError)
		return
	}
	defer os.Remove(path)
	f, err := os.Open(path)
	if err != nil {
		http.Error(w, "archive unavailable", http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, "archive unavailable", http.StatusInternalServerError)
		return
	}
	name := archive.Filename(dl)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil && !s.deps.Ready() {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// loadDownload writes the error response itself and reports false when the
// download cannot be served.
func (s *Server) loadDownload(w http.ResponseWriter, r *http.Request) (*model.Download, bool) {
	requestID := chi.URLParam(r, "requestID")
	dl, err := s.deps.Reader.GetDownload(r.Context(), requestID)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "download not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		s.logger.Error("load download failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		http.Error(w, "failed to load download", http.StatusInternalServerError)
		return nil, false
	}
	return dl, true
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		slog.Error("encode json failed", slog.String("error", err.Error()))
	}
}
