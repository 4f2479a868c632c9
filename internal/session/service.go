package session

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/audiobooker/audiobooker/internal/bus"
	"github.com/audiobooker/audiobooker/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Service is the bus ingress for session control events. It decodes client
// commands and feeds them to the controller one at a time per session.
type Service struct {
	bus        *bus.Client
	store      *Store
	controller *Controller
	delivery   *Delivery
	logger     *slog.Logger
	sub        *nats.Subscription
}

func NewService(busClient *bus.Client, store *Store, controller *Controller, delivery *Delivery, log *slog.Logger) *Service {
	return &Service{
		bus:        busClient,
		store:      store,
		controller: controller,
		delivery:   delivery,
		logger:     log.With(slog.String("component", "session-service")),
	}
}

func (s *Service) Start() error {
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectControlWildcard, s.handleControl)
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

func (s *Service) Close() {
	if s.sub != nil {
		_ = s.sub.Drain()
	}
}

func (s *Service) Healthy() bool { return s.sub != nil }

func (s *Service) handleControl(msg *nats.Msg) {
	var evt protocol.ControlEvent
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		s.logger.Warn("failed to decode control event", slogError(err))
		return
	}
	if evt.SessionID == "" {
		s.logger.Warn("control event without session id", slog.String("type", evt.Type))
		return
	}

	switch evt.Type {
	case protocol.ControlJoin:
		s.handleJoin(evt)
	case protocol.ControlLeave:
		s.delivery.Unsubscribe(evt.SessionID)
	case protocol.ControlStart:
		s.dispatch(evt, func() error { return s.controller.Start(evt.SessionID) })
	case protocol.ControlPageFinished:
		s.dispatch(evt, func() error { return s.controller.PageFinished(evt.SessionID, evt.PageIndex) })
	case protocol.ControlChangeDialect:
		s.dispatch(evt, func() error { return s.controller.ChangeDialect(evt.SessionID, evt.Dialect) })
	case protocol.ControlPause:
		s.dispatch(evt, func() error { return s.controller.Pause(evt.SessionID) })
	case protocol.ControlResume:
		s.dispatch(evt, func() error { return s.controller.Resume(evt.SessionID) })
	case protocol.ControlCancel:
		s.dispatch(evt, func() error { return s.controller.Cancel(evt.SessionID) })
	default:
		s.logger.Warn("unknown control event",
			slog.String("type", evt.Type),
			slog.String("session_id", evt.SessionID))
	}
}

func (s *Service) handleJoin(evt protocol.ControlEvent) {
	if evt.Reply == "" {
		s.logger.Warn("join without reply inbox", slog.String("session_id", evt.SessionID))
		return
	}
	if _, err := s.store.Get(evt.SessionID); err != nil {
		s.respondError(evt, "invalid session")
		return
	}
	s.delivery.Subscribe(evt.SessionID, evt.Reply)
	_ = s.store.Update(evt.SessionID, func(sess *Session) error {
		sess.touch(time.Now())
		return nil
	})
	s.logger.Info("listener joined",
		slog.String("session_id", evt.SessionID),
		slog.String("inbox", evt.Reply))
}

// dispatch runs a controller operation and maps its failure to the protocol's
// fault taxonomy: unknown session and invalid arguments surface as error
// events, out-of-order events are logged and otherwise ignored.
func (s *Service) dispatch(evt protocol.ControlEvent, op func() error) {
	err := op()
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		s.respondError(evt, "invalid session")
	case errors.Is(err, ErrInvalidDialect):
		s.respondError(evt, "invalid dialect")
	case errors.Is(err, ErrOutOfOrder):
		s.logger.Info("ignoring out-of-order control event",
			slog.String("type", evt.Type),
			slog.String("session_id", evt.SessionID),
			slogError(err))
	default:
		s.logger.Warn("control event failed",
			slog.String("type", evt.Type),
			slog.String("session_id", evt.SessionID),
			slogError(err))
	}
}

func (s *Service) respondError(evt protocol.ControlEvent, message string) {
	payload := protocol.SessionEvent{
		Type:      protocol.EventError,
		SessionID: evt.SessionID,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if err := s.delivery.Publish(evt.SessionID, payload); err != nil {
		s.logger.Warn("failed to publish error event",
			slog.String("session_id", evt.SessionID),
			slogError(err))
		return
	}
	if _, bound := s.delivery.Subscriber(evt.SessionID); bound {
		return
	}
	// No bound listener; fall back to the join reply inbox when present.
	if evt.Reply != "" {
		data, err := json.Marshal(payload)
		if err != nil {
			return
		}
		if err := s.bus.Conn().Publish(evt.Reply, data); err != nil {
			s.logger.Warn("failed to publish error to reply inbox", slogError(err))
		}
	}
}
