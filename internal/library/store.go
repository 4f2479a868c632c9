package library

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/audiobooker/audiobooker/internal/config"
	"github.com/google/uuid"
)

// Store ingests uploads into page-split documents and keeps the raw files on
// disk under the configured upload directory.
type Store struct {
	cfg  config.LibraryConfig
	log  *slog.Logger
	mu   sync.RWMutex
	docs map[string]*Document
}

func NewStore(cfg config.LibraryConfig, log *slog.Logger) (*Store, error) {
	for _, dir := range []string{cfg.UploadDir, cfg.AudioDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create library dir: %w", err)
		}
	}
	return &Store{
		cfg:  cfg,
		log:  log.With(slog.String("component", "library")),
		docs: make(map[string]*Document),
	}, nil
}

// Ingest saves the uploaded file, extracts its text and splits it into pages.
// Only plain-text content is understood; .epub uploads are read as plain text.
func (s *Store) Ingest(filename string, r io.Reader) (*Document, error) {
	id := uuid.NewString()
	safeName := id + "_" + filepath.Base(filename)
	savePath := filepath.Join(s.cfg.UploadDir, safeName)

	f, err := os.Create(savePath)
	if err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}
	data, err := io.ReadAll(io.TeeReader(r, f))
	closeErr := f.Close()
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("save upload: %w", closeErr)
	}

	text := CleanText(string(data))
	pages := SplitPages(text, s.cfg.WordsPerPage)
	if len(pages) == 0 {
		_ = os.Remove(savePath)
		return nil, fmt.Errorf("document %q contains no readable text", filename)
	}

	doc := &Document{
		ID:    id,
		Title: strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)),
		Pages: pages,
	}

	s.mu.Lock()
	s.docs[id] = doc
	s.mu.Unlock()

	s.log.Info("document ingested",
		slog.String("document_id", id),
		slog.String("title", doc.Title),
		slog.Int("pages", len(pages)))
	return doc, nil
}

// Get returns the ingested document or nil.
func (s *Store) Get(id string) *Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs[id]
}

// Remove forgets the document and deletes its stored upload.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	delete(s.docs, id)
	s.mu.Unlock()
	s.removePrefixed(s.cfg.UploadDir, id)
}

// RemoveAudio deletes the audio artifacts synthesized for a session. Artifacts
// are named by session ID, not document ID, so cleanup needs both calls.
func (s *Store) RemoveAudio(sessionID string) {
	s.removePrefixed(s.cfg.AudioDir, sessionID)
}

func (s *Store) removePrefixed(dir, id string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), id+"_") {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				s.log.Warn("failed to remove document file",
					slog.String("path", entry.Name()),
					slog.String("error", err.Error()))
			}
		}
	}
}

// AudioDir exposes the directory generated audio artifacts are written to.
func (s *Store) AudioDir() string {
	return s.cfg.AudioDir
}
