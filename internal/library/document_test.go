package library

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/audiobooker/audiobooker/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestCleanText(t *testing.T) {
	in := "Hello   world!\n\n\nThis  is\t@#$ a test."
	out := CleanText(in)
	if strings.Contains(out, "@") || strings.Contains(out, "\n") {
		t.Fatalf("expected cleaned text, got %q", out)
	}
	if strings.Contains(out, "  ") {
		t.Fatalf("expected collapsed whitespace, got %q", out)
	}
}

func TestSplitPagesRespectsWordLimit(t *testing.T) {
	sentence := "one two three four five six seven eight nine ten."
	text := strings.Repeat(sentence+" ", 12)
	pages := SplitPages(text, 30)
	if len(pages) != 4 {
		t.Fatalf("expected 4 pages, got %d", len(pages))
	}
	for i, page := range pages {
		if n := len(strings.Fields(page)); n > 30 {
			t.Fatalf("page %d exceeds limit with %d words", i, n)
		}
	}
}

func TestSplitPagesDropsShortFragments(t *testing.T) {
	pages := SplitPages("Ok. No. This sentence is long enough to keep.", 50)
	if len(pages) != 1 {
		t.Fatalf("expected single page, got %d", len(pages))
	}
	if strings.Contains(pages[0], "Ok") {
		t.Fatalf("expected short fragments dropped, got %q", pages[0])
	}
}

func TestDocumentPageBounds(t *testing.T) {
	doc := &Document{ID: "d", Pages: []string{"a b c", "d e f"}}
	if _, err := doc.Page(0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := doc.Page(2); !errors.Is(err, ErrEndOfDocument) {
		t.Fatalf("expected ErrEndOfDocument, got %v", err)
	}
	if _, err := doc.Page(-1); !errors.Is(err, ErrEndOfDocument) {
		t.Fatalf("expected ErrEndOfDocument, got %v", err)
	}
}

func TestIngestAndRemove(t *testing.T) {
	cfg := config.LibraryConfig{
		UploadDir:    t.TempDir(),
		AudioDir:     t.TempDir(),
		WordsPerPage: 10,
	}
	store, err := NewStore(cfg, newLogger())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	text := "The quick brown fox jumps over the lazy dog. A second sentence keeps the page full of words."
	doc, err := store.Ingest("fable.txt", strings.NewReader(text))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if doc.Title != "fable" {
		t.Fatalf("unexpected title %q", doc.Title)
	}
	if doc.TotalPages() == 0 {
		t.Fatal("expected at least one page")
	}
	if store.Get(doc.ID) != doc {
		t.Fatal("expected document retrievable")
	}

	store.Remove(doc.ID)
	if store.Get(doc.ID) != nil {
		t.Fatal("expected document removed")
	}
}

func TestIngestRejectsEmptyDocument(t *testing.T) {
	cfg := config.LibraryConfig{
		UploadDir:    t.TempDir(),
		AudioDir:     t.TempDir(),
		WordsPerPage: 10,
	}
	store, err := NewStore(cfg, newLogger())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.Ingest("empty.txt", strings.NewReader("!!")); err == nil {
		t.Fatal("expected error for empty document")
	}
}
