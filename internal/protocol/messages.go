package protocol

import "time"

// ControlEvent is a client-originated command scoped to one reading session.
type ControlEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	PageIndex int    `json:"page_index,omitempty"`
	Dialect   string `json:"dialect,omitempty"`
	// Reply is the client's inbox subject, set on join; session events are
	// delivered there until another listener takes over or the client leaves.
	Reply string `json:"reply,omitempty"`
}

// SessionEvent is a server-originated event delivered to the session's bound listener.
type SessionEvent struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	PageIndex int       `json:"page_index,omitempty"`
	Text      string    `json:"text,omitempty"`
	AudioRef  string    `json:"audio_ref,omitempty"`
	Dialect   string    `json:"dialect,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	ControlJoin          = "join"
	ControlLeave         = "leave"
	ControlStart         = "start"
	ControlPageFinished  = "page_finished"
	ControlChangeDialect = "change_dialect"
	ControlPause         = "pause"
	ControlResume        = "resume"
	ControlCancel        = "cancel"
)

const (
	EventPageReady        = "page_ready"
	EventError            = "error"
	EventDocumentComplete = "document_complete"
	EventDialectChanged   = "dialect_changed"
)

const (
	SubjectControlPrefix   = "reader.control"
	SubjectControlWildcard = "reader.control.>"
)

// ControlSubject returns the control subject for one session.
func ControlSubject(sessionID string) string {
	return SubjectControlPrefix + "." + sessionID
}
