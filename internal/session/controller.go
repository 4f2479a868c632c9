package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/audiobooker/audiobooker/internal/library"
	"github.com/audiobooker/audiobooker/internal/protocol"
	"github.com/audiobooker/audiobooker/internal/tts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Timeline records session lifecycle events for later inspection. The
// in-memory store stays authoritative; recording failures are logged and
// otherwise ignored.
type Timeline interface {
	RecordSession(ctx context.Context, sessionID, title, dialect string) error
	RecordEvent(ctx context.Context, sessionID, eventType string, pageIndex int, detail string) error
}

// DialectMapper rewrites page text for a narration variant.
type DialectMapper interface {
	Known(dialect string) bool
	Transform(text, dialect string) string
}

// Controller drives each session's state machine: paced page delivery, one
// outstanding synthesis at a time, dialect changes on the next advance, and
// clean termination. All transitions for one session run under that session's
// writer lock.
type Controller struct {
	store    *Store
	synth    tts.Synthesizer
	dialects DialectMapper
	delivery *Delivery
	timeline Timeline
	docs     *library.Store
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	synthTimeout time.Duration

	pagesDelivered metric.Int64Counter
	synthFailures  metric.Int64Counter
}

func NewController(parent context.Context, store *Store, synth tts.Synthesizer, dialects DialectMapper, delivery *Delivery, timeline Timeline, docs *library.Store, log *slog.Logger) *Controller {
	ctx, cancel := context.WithCancel(parent)
	c := &Controller{
		store:        store,
		synth:        synth,
		dialects:     dialects,
		delivery:     delivery,
		timeline:     timeline,
		docs:         docs,
		log:          log.With(slog.String("component", "session-controller")),
		ctx:          ctx,
		cancel:       cancel,
		synthTimeout: 45 * time.Second,
	}
	if err := c.initMetrics(); err != nil {
		c.log.Warn("failed to initialize metrics", slogError(err))
	}
	return c
}

func (c *Controller) initMetrics() error {
	meter := otel.Meter("github.com/audiobooker/audiobooker/internal/session")
	var err error
	c.pagesDelivered, err = meter.Int64Counter("audiobooker.pages.delivered",
		metric.WithDescription("Page units published to listeners"))
	if err != nil {
		return err
	}
	c.synthFailures, err = meter.Int64Counter("audiobooker.synthesis.failures",
		metric.WithDescription("Synthesis attempts that failed"))
	if err != nil {
		return err
	}
	gauge, err := meter.Int64ObservableGauge("audiobooker.sessions.active",
		metric.WithDescription("Live reading sessions"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(gauge, int64(c.store.Len()))
		return nil
	}, gauge)
	return err
}

// Close stops the controller and waits for in-flight synthesis goroutines.
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()
}

// Start begins delivery of the session's current page. Valid only from Idle;
// anything else is a soft error with no state change.
func (c *Controller) Start(sessionID string) error {
	sess, err := c.store.Get(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.Status != StatusIdle {
		return fmt.Errorf("%w: start while %s", ErrOutOfOrder, sess.Status)
	}
	if sess.inflight {
		return fmt.Errorf("%w: synthesis already in flight", ErrOutOfOrder)
	}
	sess.touch(time.Now())
	c.beginSynthesisLocked(sess)
	return nil
}

// PageFinished is the playback-completion signal that paces the session.
// The reported index must match the current page; stale or duplicate reports
// are rejected with no state change.
func (c *Controller) PageFinished(sessionID string, pageIndex int) error {
	sess, err := c.store.Get(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	switch sess.Status {
	case StatusPlaying, StatusAwaitingAudio:
	default:
		return fmt.Errorf("%w: page finished while %s", ErrOutOfOrder, sess.Status)
	}
	if sess.inflight {
		return fmt.Errorf("%w: page finished during synthesis", ErrOutOfOrder)
	}
	if pageIndex != sess.Current {
		return fmt.Errorf("%w: reported page %d, current %d", ErrOutOfOrder, pageIndex, sess.Current)
	}

	sess.touch(time.Now())
	if sess.Current+1 >= sess.TotalPages {
		c.finishLocked(sess)
		return nil
	}

	sess.Current++
	sess.Status = StatusAwaitingAudio
	c.beginSynthesisLocked(sess)
	return nil
}

// ChangeDialect updates the narration variant. It takes effect on the next
// advance; the page already delivered is never re-synthesized.
func (c *Controller) ChangeDialect(sessionID, dialect string) error {
	if !c.dialects.Known(dialect) {
		return fmt.Errorf("%w: %q", ErrInvalidDialect, dialect)
	}
	sess, err := c.store.Get(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.Status.Terminal() {
		return fmt.Errorf("%w: dialect change while %s", ErrOutOfOrder, sess.Status)
	}
	sess.Dialect = dialect
	sess.touch(time.Now())
	c.publishLocked(sess.ID, protocol.SessionEvent{
		Type:      protocol.EventDialectChanged,
		SessionID: sess.ID,
		Dialect:   dialect,
	})
	c.record(sess.ID, "dialect_changed", sess.Current, dialect)
	return nil
}

// Pause suspends the session. Playback control stays with the client; the
// server-side flip only blocks advances while paused.
func (c *Controller) Pause(sessionID string) error {
	sess, err := c.store.Get(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	switch sess.Status {
	case StatusPlaying:
		sess.resumeTo = StatusPlaying
	case StatusAwaitingAudio:
		// Audio already delivered means the client was playing it; synthesis
		// still in flight means we are genuinely awaiting audio.
		if sess.inflight {
			sess.resumeTo = StatusAwaitingAudio
		} else {
			sess.resumeTo = StatusPlaying
		}
	default:
		return fmt.Errorf("%w: pause while %s", ErrOutOfOrder, sess.Status)
	}
	sess.Status = StatusPaused
	sess.touch(time.Now())
	c.record(sess.ID, "paused", sess.Current, "")
	return nil
}

// Resume returns a paused session to its pre-pause status.
func (c *Controller) Resume(sessionID string) error {
	sess, err := c.store.Get(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.Status != StatusPaused {
		return fmt.Errorf("%w: resume while %s", ErrOutOfOrder, sess.Status)
	}
	sess.Status = sess.resumeTo
	if sess.Status == "" {
		sess.Status = StatusPlaying
	}
	sess.touch(time.Now())
	c.record(sess.ID, "resumed", sess.Current, "")
	return nil
}

// Cancel terminates the session from any state. It is idempotent; a late
// synthesis result for a cancelled session is discarded, never published.
func (c *Controller) Cancel(sessionID string) error {
	sess, err := c.store.Get(sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	sess.mu.Lock()
	if sess.Status.Terminal() {
		sess.mu.Unlock()
		return nil
	}
	sess.Status = StatusCancelled
	sess.epoch++ // renders any in-flight synthesis result inert
	sess.inflight = false
	sess.mu.Unlock()

	c.delivery.Unsubscribe(sessionID)
	c.record(sessionID, "cancelled", 0, "")
	c.release(sess)
	c.log.Info("session cancelled", slog.String("session_id", sessionID))
	return nil
}

// RunSweeper cancels orphaned sessions that have been idle past ttl.
func (c *Controller) RunSweeper(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(ttl)
		}
	}
}

func (c *Controller) sweep(ttl time.Duration) {
	cutoff := time.Now().Add(-ttl)
	for _, id := range c.store.IdleSince(cutoff) {
		if _, bound := c.delivery.Subscriber(id); bound {
			continue
		}
		c.log.Info("cancelling idle session", slog.String("session_id", id))
		if err := c.Cancel(id); err != nil {
			c.log.Warn("idle session cancel failed", slog.String("session_id", id), slogError(err))
		}
	}
}

// beginSynthesisLocked tags and launches the session's single outstanding
// synthesis request. Caller holds sess.mu.
func (c *Controller) beginSynthesisLocked(sess *Session) {
	sess.inflight = true
	sess.epoch++
	epoch := sess.epoch
	page := sess.Current
	dialect := sess.Dialect

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.synthesize(sess, page, epoch, dialect)
	}()
}

// synthesize runs outside the critical section; its completion re-enters the
// state machine through applyResult with the (page, epoch) tag it was given.
func (c *Controller) synthesize(sess *Session, page int, epoch uint64, dialect string) {
	raw, err := sess.Document.Page(page)
	if err != nil {
		if errors.Is(err, library.ErrEndOfDocument) {
			// Fewer pages than announced; finish defensively.
			c.applyExhausted(sess, epoch)
			return
		}
		c.applyResult(sess, page, epoch, "", dialect, tts.Artifact{}, err)
		return
	}
	text := c.dialects.Transform(raw, dialect)

	ctx, cancel := context.WithTimeout(c.ctx, c.synthTimeout)
	defer cancel()
	artifact, synthErr := c.synth.Synthesize(ctx, tts.Request{
		SessionID: sess.ID,
		PageIndex: page,
		Text:      text,
		Dialect:   dialect,
	})
	c.applyResult(sess, page, epoch, text, dialect, artifact, synthErr)
}

func (c *Controller) applyResult(sess *Session, page int, epoch uint64, text, dialect string, artifact tts.Artifact, synthErr error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.epoch != epoch || sess.Status.Terminal() {
		c.log.Debug("discarding stale synthesis result",
			slog.String("session_id", sess.ID),
			slog.Int("page", page))
		return
	}
	sess.inflight = false

	if synthErr != nil {
		if c.synthFailures != nil {
			c.synthFailures.Add(c.ctx, 1)
		}
		// Back to Idle so the client can retry with another start.
		sess.Status = StatusIdle
		c.publishLocked(sess.ID, protocol.SessionEvent{
			Type:      protocol.EventError,
			SessionID: sess.ID,
			PageIndex: page,
			Message:   "failed to generate audio",
		})
		c.record(sess.ID, "synthesis_failed", page, synthErr.Error())
		c.log.Warn("synthesis failed",
			slog.String("session_id", sess.ID),
			slog.Int("page", page),
			slogError(synthErr))
		return
	}

	if sess.Status == StatusPaused {
		sess.resumeTo = StatusAwaitingAudio
	} else {
		sess.Status = StatusAwaitingAudio
	}
	c.publishLocked(sess.ID, protocol.SessionEvent{
		Type:      protocol.EventPageReady,
		SessionID: sess.ID,
		PageIndex: page,
		Text:      text,
		AudioRef:  artifact.Ref,
		Dialect:   dialect,
	})
	if c.pagesDelivered != nil {
		c.pagesDelivered.Add(c.ctx, 1)
	}
	c.record(sess.ID, "page_ready", page, artifact.Ref)
}

func (c *Controller) applyExhausted(sess *Session, epoch uint64) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.epoch != epoch || sess.Status.Terminal() {
		return
	}
	sess.inflight = false
	c.log.Warn("page source exhausted before announced total",
		slog.String("session_id", sess.ID),
		slog.Int("page", sess.Current),
		slog.Int("total", sess.TotalPages))
	c.finishLocked(sess)
}

// finishLocked completes the session: exactly one document_complete event,
// listener released, resources reclaimed. Caller holds sess.mu.
func (c *Controller) finishLocked(sess *Session) {
	sess.Status = StatusFinished
	sess.epoch++
	sess.inflight = false
	c.publishLocked(sess.ID, protocol.SessionEvent{
		Type:      protocol.EventDocumentComplete,
		SessionID: sess.ID,
	})
	c.delivery.Unsubscribe(sess.ID)
	c.record(sess.ID, "completed", sess.Current, "")
	c.release(sess)
	c.log.Info("session finished",
		slog.String("session_id", sess.ID),
		slog.Int("pages", sess.TotalPages))
}

func (c *Controller) release(sess *Session) {
	c.store.Remove(sess.ID)
	if c.docs != nil {
		c.docs.Remove(sess.Document.ID)
		c.docs.RemoveAudio(sess.ID)
	}
}

func (c *Controller) publishLocked(sessionID string, evt protocol.SessionEvent) {
	evt.Timestamp = time.Now().UTC()
	if err := c.delivery.Publish(sessionID, evt); err != nil {
		c.log.Warn("failed to publish session event",
			slog.String("session_id", sessionID),
			slog.String("type", evt.Type),
			slogError(err))
	}
}

func (c *Controller) record(sessionID, eventType string, pageIndex int, detail string) {
	if c.timeline == nil {
		return
	}
	if err := c.timeline.RecordEvent(c.ctx, sessionID, eventType, pageIndex, detail); err != nil {
		c.log.Warn("failed to record timeline event",
			slog.String("session_id", sessionID),
			slog.String("type", eventType),
			slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
