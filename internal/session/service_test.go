package session

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/audiobooker/audiobooker/internal/library"
	"github.com/audiobooker/audiobooker/internal/protocol"
	"github.com/nats-io/nats.go"
)

func newServiceFixture(t *testing.T) (*Service, *fixture) {
	t.Helper()
	transport := newFakeTransport()
	delivery := NewDelivery(transport, newLogger())
	store := NewStore()
	synth := &stubSynth{}
	controller := NewController(context.Background(), store, synth, stubDialects{}, delivery, nil, nil, newLogger())
	t.Cleanup(controller.Close)

	doc := &library.Document{ID: "doc-1", Title: "fable", Pages: []string{"only page"}}
	sess := store.Create(doc, "north")

	svc := NewService(nil, store, controller, delivery, newLogger())
	return svc, &fixture{
		store:      store,
		controller: controller,
		delivery:   delivery,
		transport:  transport,
		synth:      synth,
		sess:       sess,
	}
}

func controlMsg(t *testing.T, evt protocol.ControlEvent) *nats.Msg {
	t.Helper()
	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal control event: %v", err)
	}
	return &nats.Msg{Subject: protocol.ControlSubject(evt.SessionID), Data: data}
}

func TestServiceJoinBindsListener(t *testing.T) {
	svc, f := newServiceFixture(t)

	svc.handleControl(controlMsg(t, protocol.ControlEvent{
		Type:      protocol.ControlJoin,
		SessionID: f.sess.ID,
		Reply:     "inbox.client",
	}))

	inbox, bound := f.delivery.Subscriber(f.sess.ID)
	if !bound || inbox != "inbox.client" {
		t.Fatalf("expected listener bound to inbox.client, got %q %v", inbox, bound)
	}
}

func TestServiceStartThroughControlEvent(t *testing.T) {
	svc, f := newServiceFixture(t)
	f.delivery.Subscribe(f.sess.ID, "inbox.client")

	svc.handleControl(controlMsg(t, protocol.ControlEvent{
		Type:      protocol.ControlStart,
		SessionID: f.sess.ID,
	}))
	evt := waitEvent(t, f.transport, protocol.EventPageReady)
	if evt.PageIndex != 0 {
		t.Fatalf("expected page 0, got %d", evt.PageIndex)
	}

	svc.handleControl(controlMsg(t, protocol.ControlEvent{
		Type:      protocol.ControlPageFinished,
		SessionID: f.sess.ID,
		PageIndex: 0,
	}))
	waitEvent(t, f.transport, protocol.EventDocumentComplete)
}

func TestServiceOutOfOrderEventIsIgnored(t *testing.T) {
	svc, f := newServiceFixture(t)
	f.delivery.Subscribe(f.sess.ID, "inbox.client")

	svc.handleControl(controlMsg(t, protocol.ControlEvent{
		Type:      protocol.ControlPageFinished,
		SessionID: f.sess.ID,
		PageIndex: 0,
	}))

	assertNoEvent(t, f.transport, protocol.EventError)
	snap, err := f.store.Snapshot(f.sess.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Status != StatusIdle || snap.Current != 0 {
		t.Fatalf("state changed by ignored event: %+v", snap)
	}
}

func TestServiceInvalidDialectSurfacesError(t *testing.T) {
	svc, f := newServiceFixture(t)
	f.delivery.Subscribe(f.sess.ID, "inbox.client")

	svc.handleControl(controlMsg(t, protocol.ControlEvent{
		Type:      protocol.ControlChangeDialect,
		SessionID: f.sess.ID,
		Dialect:   "klingon",
	}))
	evt := waitEvent(t, f.transport, protocol.EventError)
	if evt.Message != "invalid dialect" {
		t.Fatalf("unexpected error message %q", evt.Message)
	}
}

func TestServiceLeaveUnbindsListener(t *testing.T) {
	svc, f := newServiceFixture(t)
	f.delivery.Subscribe(f.sess.ID, "inbox.client")

	svc.handleControl(controlMsg(t, protocol.ControlEvent{
		Type:      protocol.ControlLeave,
		SessionID: f.sess.ID,
	}))
	if _, bound := f.delivery.Subscriber(f.sess.ID); bound {
		t.Fatal("expected listener unbound after leave")
	}
}

func TestServiceIgnoresMalformedPayloads(t *testing.T) {
	svc, _ := newServiceFixture(t)
	svc.handleControl(&nats.Msg{Subject: "reader.control.x", Data: []byte("{not json")})
	svc.handleControl(controlMsg(t, protocol.ControlEvent{Type: protocol.ControlStart}))
}
