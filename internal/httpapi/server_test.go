package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/audiobooker/audiobooker/internal/config"
	"github.com/audiobooker/audiobooker/internal/dialect"
	"github.com/audiobooker/audiobooker/internal/library"
	"github.com/audiobooker/audiobooker/internal/session"
	"github.com/audiobooker/audiobooker/internal/tts"
)

type nopTransport struct{}

func (nopTransport) Publish(subject string, data []byte) error { return nil }

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestServer(t *testing.T) (*Server, *session.Store, *http.ServeMux) {
	t.Helper()
	cfg := config.Default()
	cfg.Library.UploadDir = t.TempDir()
	cfg.Library.AudioDir = t.TempDir()
	cfg.Library.WordsPerPage = 10

	log := newLogger()
	lib, err := library.NewStore(cfg.Library, log)
	if err != nil {
		t.Fatalf("library store: %v", err)
	}
	store := session.NewStore()
	delivery := session.NewDelivery(nopTransport{}, log)
	controller := session.NewController(context.Background(), store, tts.NewMockSynth(), dialect.NewMapper(), delivery, nil, lib, log)
	t.Cleanup(controller.Close)

	srv := NewServer(cfg, lib, store, controller, nil, dialect.NewMapper(), log)
	mux := http.NewServeMux()
	srv.Register(mux)
	return srv, store, mux
}

func uploadRequest(t *testing.T, text, dialectName string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "fable.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte(text)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if dialectName != "" {
		if err := mw.WriteField("dialect", dialectName); err != nil {
			t.Fatalf("write dialect field: %v", err)
		}
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

const sampleText = "The quick brown fox jumps over the lazy dog. A second sentence keeps this page nicely full of words. And here is one more for good measure."

func TestUploadCreatesSession(t *testing.T) {
	_, store, mux := newTestServer(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, uploadRequest(t, sampleText, "south"))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success    bool   `json:"success"`
		SessionID  string `json:"session_id"`
		Title      string `json:"title"`
		TotalPages int    `json:"total_pages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.SessionID == "" || resp.TotalPages == 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Title != "fable" {
		t.Fatalf("unexpected title %q", resp.Title)
	}
	if _, err := store.Get(resp.SessionID); err != nil {
		t.Fatalf("session not registered: %v", err)
	}
}

func TestUploadRejectsInvalidDialect(t *testing.T) {
	_, _, mux := newTestServer(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, uploadRequest(t, sampleText, "klingon"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUploadRejectsUnreadableDocument(t *testing.T) {
	_, _, mux := newTestServer(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, uploadRequest(t, "!!", ""))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestStatusAndCancel(t *testing.T) {
	_, store, mux := newTestServer(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, uploadRequest(t, sampleText, ""))
	var created struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/"+created.SessionID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status query failed: %d", rec.Code)
	}
	var status struct {
		Status string `json:"status"`
		Page   int    `json:"page"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Status != "idle" || status.Page != 0 {
		t.Fatalf("unexpected status: %+v", status)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/sessions/"+created.SessionID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel failed: %d", rec.Code)
	}
	if _, err := store.Get(created.SessionID); err == nil {
		t.Fatal("expected session removed after cancel")
	}

	// Cancel is idempotent.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/sessions/"+created.SessionID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat cancel failed: %d", rec.Code)
	}
}

func TestStatusUnknownSession(t *testing.T) {
	_, _, mux := newTestServer(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDialectList(t *testing.T) {
	_, _, mux := newTestServer(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/dialects", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Dialects []string `json:"dialects"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Dialects) != 3 {
		t.Fatalf("expected 3 dialects, got %v", resp.Dialects)
	}
}
