package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/audiobooker/audiobooker/internal/config"
	"github.com/audiobooker/audiobooker/internal/dialect"
	"github.com/audiobooker/audiobooker/internal/library"
	"github.com/audiobooker/audiobooker/internal/session"
)

// Server exposes the request/response surface of the reading service: session
// creation from an upload, status queries, idempotent cancel, and generated
// audio files. The paced page stream itself goes over the bus, not HTTP.
type Server struct {
	cfg        config.Config
	library    *library.Store
	store      *session.Store
	controller *session.Controller
	timeline   session.Timeline
	dialects   *dialect.Mapper
	log        *slog.Logger
}

func NewServer(cfg config.Config, lib *library.Store, store *session.Store, controller *session.Controller, timeline session.Timeline, dialects *dialect.Mapper, log *slog.Logger) *Server {
	return &Server{
		cfg:        cfg,
		library:    lib,
		store:      store,
		controller: controller,
		timeline:   timeline,
		dialects:   dialects,
		log:        log.With(slog.String("component", "httpapi")),
	}
}

// Register mounts the API routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleStatus)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleCancel)
	mux.HandleFunc("GET /api/dialects", s.handleDialects)
	mux.Handle("GET /audio/", http.StripPrefix("/audio/", http.FileServer(http.Dir(s.library.AudioDir()))))
}

type uploadResponse struct {
	Success    bool   `json:"success"`
	SessionID  string `json:"session_id"`
	Title      string `json:"title"`
	TotalPages int    `json:"total_pages"`
	Dialect    string `json:"dialect"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Library.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()
	if header.Filename == "" {
		s.writeError(w, http.StatusBadRequest, "empty filename")
		return
	}

	dialectName := r.FormValue("dialect")
	if dialectName == "" {
		dialectName = s.cfg.Sessions.DefaultDialect
	}
	if !s.dialects.Known(dialectName) {
		s.writeError(w, http.StatusBadRequest, "invalid dialect")
		return
	}

	doc, err := s.library.Ingest(header.Filename, file)
	if err != nil {
		s.log.Warn("upload ingestion failed", slog.String("error", err.Error()))
		s.writeError(w, http.StatusUnprocessableEntity, "could not extract text from document")
		return
	}

	sess := s.store.Create(doc, dialectName)
	if s.timeline != nil {
		if err := s.timeline.RecordSession(r.Context(), sess.ID, doc.Title, dialectName); err != nil {
			s.log.Warn("failed to record session", slog.String("error", err.Error()))
		}
	}

	s.log.Info("session created",
		slog.String("session_id", sess.ID),
		slog.String("title", doc.Title),
		slog.Int("pages", doc.TotalPages()))

	s.writeJSON(w, http.StatusOK, uploadResponse{
		Success:    true,
		SessionID:  sess.ID,
		Title:      doc.Title,
		TotalPages: doc.TotalPages(),
		Dialect:    dialectName,
	})
}

type statusResponse struct {
	Success    bool   `json:"success"`
	SessionID  string `json:"session_id"`
	Title      string `json:"title"`
	TotalPages int    `json:"total_pages"`
	Page       int    `json:"page"`
	Dialect    string `json:"dialect"`
	Status     string `json:"status"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Snapshot(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "invalid session")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, statusResponse{
		Success:    true,
		SessionID:  snap.ID,
		Title:      snap.Title,
		TotalPages: snap.TotalPages,
		Page:       snap.Current,
		Dialect:    snap.Dialect,
		Status:     string(snap.Status),
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Cancel(r.PathValue("id")); err != nil {
		s.log.Warn("cancel failed", slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, "cancel failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleDialects(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"dialects": s.dialects.Dialects(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{"success": false, "error": message})
}
