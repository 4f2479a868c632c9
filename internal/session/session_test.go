package session

import (
	"errors"
	"testing"
	"time"

	"github.com/audiobooker/audiobooker/internal/library"
)

func testDoc(pages ...string) *library.Document {
	return &library.Document{ID: "doc", Title: "t", Pages: pages}
}

func TestStoreCreateGetRemove(t *testing.T) {
	store := NewStore()
	sess := store.Create(testDoc("a a a", "b b b"), "north")

	if sess.ID == "" {
		t.Fatal("expected generated session id")
	}
	got, err := store.Get(sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != sess {
		t.Fatal("expected same session instance")
	}
	if got.TotalPages != 2 || got.Status != StatusIdle || got.Dialect != "north" {
		t.Fatalf("unexpected initial state: %+v", got)
	}

	store.Remove(sess.ID)
	if _, err := store.Get(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreUpdateUnknownSession(t *testing.T) {
	store := NewStore()
	err := store.Update("nope", func(sess *Session) error { return nil })
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreIdleSince(t *testing.T) {
	store := NewStore()
	fresh := store.Create(testDoc("a a a"), "north")
	stale := store.Create(testDoc("a a a"), "north")

	if err := store.Update(stale.ID, func(sess *Session) error {
		sess.LastActive = time.Now().Add(-time.Hour)
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	ids := store.IdleSince(time.Now().Add(-time.Minute))
	if len(ids) != 1 || ids[0] != stale.ID {
		t.Fatalf("expected only stale session, got %v", ids)
	}
	_ = fresh
}

func TestStatusTerminal(t *testing.T) {
	for _, st := range []Status{StatusIdle, StatusAwaitingAudio, StatusPlaying, StatusPaused} {
		if st.Terminal() {
			t.Fatalf("%s should not be terminal", st)
		}
	}
	for _, st := range []Status{StatusFinished, StatusCancelled} {
		if !st.Terminal() {
			t.Fatalf("%s should be terminal", st)
		}
	}
}

func TestSnapshot(t *testing.T) {
	store := NewStore()
	sess := store.Create(testDoc("a a a", "b b b", "c c c"), "south")

	snap, err := store.Snapshot(sess.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Title != "t" || snap.TotalPages != 3 || snap.Dialect != "south" || snap.Status != StatusIdle {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}
