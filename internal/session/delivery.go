package session

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/audiobooker/audiobooker/internal/protocol"
)

// Transport publishes raw payloads to a subject. *nats.Conn satisfies it.
type Transport interface {
	Publish(subject string, data []byte) error
}

// Delivery is the per-session, ordered, at-most-one-listener event pipe.
// Events published for a session with no bound listener are dropped; there is
// no buffering or replay.
type Delivery struct {
	mu        sync.Mutex
	transport Transport
	listeners map[string]string
	log       *slog.Logger
}

func NewDelivery(transport Transport, log *slog.Logger) *Delivery {
	return &Delivery{
		transport: transport,
		listeners: make(map[string]string),
		log:       log.With(slog.String("component", "delivery")),
	}
}

// Subscribe binds inbox as the session's listener. A second subscribe evicts
// the prior listener; only one client plays a session at a time.
func (d *Delivery) Subscribe(sessionID, inbox string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if prior, ok := d.listeners[sessionID]; ok && prior != inbox {
		d.log.Info("evicting prior listener",
			slog.String("session_id", sessionID),
			slog.String("inbox", prior))
	}
	d.listeners[sessionID] = inbox
}

// Unsubscribe releases the session's listener binding.
func (d *Delivery) Unsubscribe(sessionID string) {
	d.mu.Lock()
	delete(d.listeners, sessionID)
	d.mu.Unlock()
}

// Subscriber returns the bound listener inbox, if any.
func (d *Delivery) Subscriber(sessionID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	inbox, ok := d.listeners[sessionID]
	return inbox, ok
}

// Publish delivers evt to the session's bound listener, or drops it when none
// is bound. Callers serialize per session, which preserves event order.
func (d *Delivery) Publish(sessionID string, evt protocol.SessionEvent) error {
	d.mu.Lock()
	inbox, ok := d.listeners[sessionID]
	d.mu.Unlock()
	if !ok {
		d.log.Debug("dropping event for unsubscribed session",
			slog.String("session_id", sessionID),
			slog.String("type", evt.Type))
		return nil
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return d.transport.Publish(inbox, data)
}
