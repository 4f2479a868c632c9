package session

import (
	"errors"
	"sync"
	"time"

	"github.com/audiobooker/audiobooker/internal/library"
	"github.com/google/uuid"
)

// Status is the lifecycle state of a reading session.
type Status string

const (
	StatusIdle          Status = "idle"
	StatusAwaitingAudio Status = "awaiting_audio"
	StatusPlaying       Status = "playing"
	StatusPaused        Status = "paused"
	StatusFinished      Status = "finished"
	StatusCancelled     Status = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

var (
	// ErrNotFound means the session id does not name a live session.
	ErrNotFound = errors.New("session not found")
	// ErrOutOfOrder means a control event arrived in a state where it is not
	// legal. The session state is unchanged.
	ErrOutOfOrder = errors.New("out-of-order control event")
	// ErrInvalidDialect means the requested narration variant is unknown.
	ErrInvalidDialect = errors.New("unknown dialect")
)

// Session is one listener's reading instance over one document. All fields
// after ID and Document are guarded by the session's own mutex; the controller
// is the single writer.
type Session struct {
	ID       string
	Document *library.Document

	mu         sync.Mutex
	TotalPages int
	Current    int
	Dialect    string
	Status     Status
	LastActive time.Time

	// epoch tags the outstanding synthesis request; a completion whose tag no
	// longer matches is discarded instead of published.
	epoch    uint64
	inflight bool

	// resumeTo remembers the pre-pause status so resume restores it.
	resumeTo Status
}

func (s *Session) touch(now time.Time) {
	s.LastActive = now
}

// Store owns the authoritative state of every active session.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	clock    func() time.Time
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		clock:    time.Now,
	}
}

// Create registers a new idle session over doc and returns it.
func (s *Store) Create(doc *library.Document, dialect string) *Session {
	sess := &Session{
		ID:         uuid.NewString(),
		Document:   doc,
		TotalPages: doc.TotalPages(),
		Dialect:    dialect,
		Status:     StatusIdle,
		LastActive: s.clock(),
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

// Get returns the live session or ErrNotFound.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Update applies fn to the session under its writer lock. The state transition
// runs to completion before the next event for the same session is applied.
func (s *Store) Update(id string, fn func(sess *Session) error) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return fn(sess)
}

// Remove forgets the session.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// IdleSince returns ids of sessions with no activity since the cutoff.
func (s *Store) IdleSince(cutoff time.Time) []string {
	s.mu.RLock()
	candidates := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		candidates = append(candidates, sess)
	}
	s.mu.RUnlock()

	var ids []string
	for _, sess := range candidates {
		sess.mu.Lock()
		idle := sess.LastActive.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			ids = append(ids, sess.ID)
		}
	}
	return ids
}

// Snapshot is a point-in-time copy of session state for status queries.
type Snapshot struct {
	ID         string
	Title      string
	TotalPages int
	Current    int
	Dialect    string
	Status     Status
}

// Snapshot returns a copy of the session's observable state.
func (s *Store) Snapshot(id string) (Snapshot, error) {
	sess, err := s.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return Snapshot{
		ID:         sess.ID,
		Title:      sess.Document.Title,
		TotalPages: sess.TotalPages,
		Current:    sess.Current,
		Dialect:    sess.Dialect,
		Status:     sess.Status,
	}, nil
}
