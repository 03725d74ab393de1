// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"errors"
	"testing"

	"github.com/syncsketch/syncsketch/wire"
)

func identity(id string) wire.Identity {
	return wire.Identity{ID: id, DisplayName: id, Role: wire.RoleParticipant}
}

func collect(t *testing.T, m *Memory, topic wire.Topic) *[]wire.Envelope {
	t.Helper()
	var got []wire.Envelope
	cancel := m.Subscribe(topic, func(env wire.Envelope) {
		got = append(got, env)
	})
	t.Cleanup(cancel)
	return &got
}

func TestBroadcastExcludesSender(t *testing.T) {
	hub := NewHub()
	a, b, c := hub.Connect("a"), hub.Connect("b"), hub.Connect("c")
	for _, m := range []*Memory{a, b, c} {
		if err := m.JoinRoom(context.Background(), "room-1", identity(m.id)); err != nil {
			t.Fatalf("JoinRoom(%s): %v", m.id, err)
		}
	}

	atA := collect(t, a, wire.TopicNewMessage)
	atB := collect(t, b, wire.TopicNewMessage)
	atC := collect(t, c, wire.TopicNewMessage)

	if err := a.Publish(wire.TopicNewMessage, wire.ChatMessage{ID: "m1", UserID: "a", Text: "hi"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(*atA) != 0 {
		t.Error("broadcast echoed to the sender")
	}
	if len(*atB) != 1 || len(*atC) != 1 {
		t.Errorf("deliveries b=%d c=%d, want 1 each", len(*atB), len(*atC))
	}
	msg, err := wire.Payload[wire.ChatMessage]((*atB)[0])
	if err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if msg.Text != "hi" {
		t.Errorf("payload text = %q, want %q", msg.Text, "hi")
	}
}

func TestTargetedDelivery(t *testing.T) {
	hub := NewHub()
	a, b, c := hub.Connect("a"), hub.Connect("b"), hub.Connect("c")
	for _, m := range []*Memory{a, b, c} {
		if err := m.JoinRoom(context.Background(), "room-1", identity(m.id)); err != nil {
			t.Fatalf("JoinRoom(%s): %v", m.id, err)
		}
	}

	atB := collect(t, b, wire.TopicOffer)
	atC := collect(t, c, wire.TopicOffer)

	if err := a.PublishTo(wire.TopicOffer, "b", wire.Offer{SDP: "v=0"}); err != nil {
		t.Fatalf("PublishTo: %v", err)
	}

	if len(*atB) != 1 {
		t.Errorf("target received %d, want 1", len(*atB))
	}
	if len(*atC) != 0 {
		t.Error("non-target received a unicast message")
	}
}

func TestRoomsAreIsolated(t *testing.T) {
	hub := NewHub()
	a, b := hub.Connect("a"), hub.Connect("b")
	if err := a.JoinRoom(context.Background(), "room-1", identity("a")); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	if err := b.JoinRoom(context.Background(), "room-2", identity("b")); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	atB := collect(t, b, wire.TopicBoardOp)
	if err := a.Publish(wire.TopicBoardOp, wire.Operation{ID: "op-1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(*atB) != 0 {
		t.Error("message leaked across rooms")
	}
}

func TestJoinNotifiesExistingMembers(t *testing.T) {
	hub := NewHub()
	a := hub.Connect("a")
	if err := a.JoinRoom(context.Background(), "room-1", identity("a")); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	connected := collect(t, a, wire.TopicUserConnected)

	b := hub.Connect("b")
	if err := b.JoinRoom(context.Background(), "room-1", identity("b")); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	if len(*connected) != 1 {
		t.Fatalf("user-connected notifications = %d, want 1", len(*connected))
	}
	payload, err := wire.Payload[wire.UserConnected]((*connected)[0])
	if err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if payload.Identity.ID != "b" {
		t.Errorf("announced joiner = %s, want b", payload.Identity.ID)
	}
}

func TestCloseNotifiesRoom(t *testing.T) {
	hub := NewHub()
	a, b := hub.Connect("a"), hub.Connect("b")
	for _, m := range []*Memory{a, b} {
		if err := m.JoinRoom(context.Background(), "room-1", identity(m.id)); err != nil {
			t.Fatalf("JoinRoom(%s): %v", m.id, err)
		}
	}
	disconnected := collect(t, a, wire.TopicUserDisconnected)

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(*disconnected) != 1 {
		t.Fatalf("user-disconnected notifications = %d, want 1", len(*disconnected))
	}
	payload, err := wire.Payload[wire.UserDisconnected]((*disconnected)[0])
	if err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if payload.UserID != "b" {
		t.Errorf("departed id = %s, want b", payload.UserID)
	}
}

func TestEndMeetingRejectsLaterJoins(t *testing.T) {
	hub := NewHub()
	host, b := hub.Connect("host"), hub.Connect("b")
	for _, m := range []*Memory{host, b} {
		if err := m.JoinRoom(context.Background(), "room-1", identity(m.id)); err != nil {
			t.Fatalf("JoinRoom(%s): %v", m.id, err)
		}
	}
	endedAtB := collect(t, b, wire.TopicMeetingEnded)

	if err := host.Publish(wire.TopicEndMeeting, wire.EndMeeting{RoomID: "room-1"}); err != nil {
		t.Fatalf("Publish end_meeting: %v", err)
	}
	if len(*endedAtB) != 1 {
		t.Fatalf("meeting_ended_globally deliveries = %d, want 1", len(*endedAtB))
	}

	late := hub.Connect("late")
	err := late.JoinRoom(context.Background(), "room-1", identity("late"))
	if !errors.Is(err, ErrRoomEnded) {
		t.Errorf("late join error = %v, want ErrRoomEnded", err)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	a, b := hub.Connect("a"), hub.Connect("b")
	for _, m := range []*Memory{a, b} {
		if err := m.JoinRoom(context.Background(), "room-1", identity(m.id)); err != nil {
			t.Fatalf("JoinRoom(%s): %v", m.id, err)
		}
	}

	var got int
	cancel := b.Subscribe(wire.TopicNewMessage, func(wire.Envelope) { got++ })
	if err := a.Publish(wire.TopicNewMessage, wire.ChatMessage{ID: "m1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	cancel()
	if err := a.Publish(wire.TopicNewMessage, wire.ChatMessage{ID: "m2"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if got != 1 {
		t.Errorf("deliveries after cancel = %d, want 1", got)
	}
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	hub := NewHub()
	a, b := hub.Connect("a"), hub.Connect("b")
	for _, m := range []*Memory{a, b} {
		if err := m.JoinRoom(context.Background(), "room-1", identity(m.id)); err != nil {
			t.Fatalf("JoinRoom(%s): %v", m.id, err)
		}
	}
	atB := collect(t, b, wire.TopicNewMessage)

	a.Close()
	if err := a.Publish(wire.TopicNewMessage, wire.ChatMessage{ID: "m1"}); err != nil {
		t.Errorf("Publish after close returned %v, want silent drop", err)
	}
	if len(*atB) != 0 {
		t.Error("message delivered after transport close")
	}
}
