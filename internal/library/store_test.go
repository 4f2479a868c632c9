package library

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/audiobooker/audiobooker/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.LibraryConfig{
		UploadDir:    filepath.Join(t.TempDir(), "uploads"),
		AudioDir:     filepath.Join(t.TempDir(), "audio"),
		WordsPerPage: 10,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := NewStore(cfg, log)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestStoreIngestAndRemove(t *testing.T) {
	store := newTestStore(t)
	doc, err := store.Ingest("fable.txt", strings.NewReader("Con cáo và chùm nho. Một câu chuyện ngắn."))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if store.Get(doc.ID) == nil {
		t.Fatal("expected document retrievable after ingest")
	}
	if got := dirEntries(t, store.cfg.UploadDir); len(got) != 1 {
		t.Fatalf("expected 1 stored upload, got %v", got)
	}

	store.Remove(doc.ID)
	if store.Get(doc.ID) != nil {
		t.Fatal("expected document forgotten after remove")
	}
	if got := dirEntries(t, store.cfg.UploadDir); len(got) != 0 {
		t.Fatalf("expected upload deleted, got %v", got)
	}
}

func TestRemoveAudioDeletesSessionArtifacts(t *testing.T) {
	store := newTestStore(t)
	for _, name := range []string{"sess-1_page_0.wav", "sess-1_page_1.wav", "sess-2_page_0.wav"} {
		if err := os.WriteFile(filepath.Join(store.AudioDir(), name), []byte("riff"), 0o644); err != nil {
			t.Fatalf("write artifact: %v", err)
		}
	}

	store.RemoveAudio("sess-1")

	got := dirEntries(t, store.AudioDir())
	if len(got) != 1 || got[0] != "sess-2_page_0.wav" {
		t.Fatalf("expected only the other session's artifact to remain, got %v", got)
	}
}

func TestStoreIngestRejectsEmptyDocument(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Ingest("empty.txt", strings.NewReader("   \n\t")); err == nil {
		t.Fatal("expected error for document with no readable text")
	}
	if got := dirEntries(t, store.cfg.UploadDir); len(got) != 0 {
		t.Fatalf("expected rejected upload cleaned up, got %v", got)
	}
}
