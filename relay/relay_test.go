// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/syncsketch/syncsketch/channel"
	"github.com/syncsketch/syncsketch/lib/clock"
	"github.com/syncsketch/syncsketch/lib/testutil"
	"github.com/syncsketch/syncsketch/wire"
)

const receiveTimeout = 5 * time.Second

func startRelay(t *testing.T, clk clock.Clock) string {
	t.Helper()
	cfg := DefaultConfig()
	srv := New(cfg, clk, slog.New(slog.DiscardHandler))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func connect(t *testing.T, url, roomID, userID string) *channel.Client {
	t.Helper()
	self := wire.Identity{ID: userID, DisplayName: userID, Role: wire.RoleParticipant}
	c := channel.NewClient(url, self, slog.New(slog.DiscardHandler))
	ctx, cancel := context.WithTimeout(context.Background(), receiveTimeout)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect(%s): %v", userID, err)
	}
	t.Cleanup(func() { c.Close() })
	if err := c.JoinRoom(ctx, roomID, self); err != nil {
		t.Fatalf("JoinRoom(%s): %v", userID, err)
	}
	return c
}

func watch(t *testing.T, c *channel.Client, topic wire.Topic) <-chan wire.Envelope {
	t.Helper()
	ch := make(chan wire.Envelope, 16)
	cancel := c.Subscribe(topic, func(env wire.Envelope) { ch <- env })
	t.Cleanup(cancel)
	return ch
}

func TestBroadcastReachesRoomExceptSender(t *testing.T) {
	url := startRelay(t, clock.Real())
	a := connect(t, url, "room-1", "a")
	b := connect(t, url, "room-2", "b")
	c := connect(t, url, "room-1", "c")

	atA := watch(t, a, wire.TopicNewMessage)
	atB := watch(t, b, wire.TopicNewMessage)
	atC := watch(t, c, wire.TopicNewMessage)

	if err := a.Publish(wire.TopicNewMessage, wire.ChatMessage{ID: "m1", UserID: "a", Text: "hello"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	env := testutil.RequireReceive(t, atC, receiveTimeout, "room member missed broadcast")
	if env.Sender != "a" {
		t.Errorf("sender = %q, want %q", env.Sender, "a")
	}
	msg, err := wire.Payload[wire.ChatMessage](env)
	if err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if msg.Text != "hello" {
		t.Errorf("text = %q, want %q", msg.Text, "hello")
	}

	testutil.RequireNoReceive(t, atA, 100*time.Millisecond, "broadcast echoed to sender")
	testutil.RequireNoReceive(t, atB, 100*time.Millisecond, "broadcast leaked across rooms")
}

func TestTargetedDeliveryReachesOnlyTarget(t *testing.T) {
	url := startRelay(t, clock.Real())
	a := connect(t, url, "room-1", "a")
	b := connect(t, url, "room-1", "b")
	c := connect(t, url, "room-1", "c")

	atB := watch(t, b, wire.TopicOffer)
	atC := watch(t, c, wire.TopicOffer)

	if err := a.PublishTo(wire.TopicOffer, "b", wire.Offer{SDP: "v=0"}); err != nil {
		t.Fatalf("PublishTo: %v", err)
	}

	env := testutil.RequireReceive(t, atB, receiveTimeout, "target missed unicast")
	if env.Target != "b" || env.Sender != "a" {
		t.Errorf("routing fields sender=%q target=%q, want a/b", env.Sender, env.Target)
	}
	testutil.RequireNoReceive(t, atC, 100*time.Millisecond, "unicast leaked to non-target")
}

func TestSenderIsStamped(t *testing.T) {
	url := startRelay(t, clock.Real())
	a := connect(t, url, "room-1", "a")
	b := connect(t, url, "room-1", "b")

	atB := watch(t, b, wire.TopicCursorMoved)
	if err := a.Publish(wire.TopicCursorMoved, wire.CursorMoved{UserID: "a", X: 1, Y: 2}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	env := testutil.RequireReceive(t, atB, receiveTimeout)
	if env.Sender != "a" {
		t.Errorf("relay forwarded sender %q, want joined id %q", env.Sender, "a")
	}
}

func TestJoinNotifiesExistingMembers(t *testing.T) {
	url := startRelay(t, clock.Real())
	a := connect(t, url, "room-1", "a")
	atA := watch(t, a, wire.TopicUserConnected)

	connect(t, url, "room-1", "b")

	env := testutil.RequireReceive(t, atA, receiveTimeout, "existing member missed user-connected")
	joined, err := wire.Payload[wire.UserConnected](env)
	if err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if joined.Identity.ID != "b" {
		t.Errorf("announced id = %q, want %q", joined.Identity.ID, "b")
	}
}

func TestDisconnectNotifiesRoom(t *testing.T) {
	url := startRelay(t, clock.Real())
	a := connect(t, url, "room-1", "a")
	b := connect(t, url, "room-1", "b")
	atA := watch(t, a, wire.TopicUserDisconnected)

	b.Close()

	env := testutil.RequireReceive(t, atA, receiveTimeout, "room missed user-disconnected")
	left, err := wire.Payload[wire.UserDisconnected](env)
	if err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if left.UserID != "b" {
		t.Errorf("departed id = %q, want %q", left.UserID, "b")
	}
}

func TestEndMeetingNotifiesRoomAndRejectsLaterJoins(t *testing.T) {
	url := startRelay(t, clock.Real())
	a := connect(t, url, "room-1", "a")
	b := connect(t, url, "room-1", "b")

	atB := watch(t, b, wire.TopicMeetingEnded)
	if err := a.Publish(wire.TopicEndMeeting, nil); err != nil {
		t.Fatalf("Publish(end_meeting): %v", err)
	}
	testutil.RequireReceive(t, atB, receiveTimeout, "member missed end-of-meeting notice")

	self := wire.Identity{ID: "late", DisplayName: "late", Role: wire.RoleParticipant}
	late := channel.NewClient(url, self, slog.New(slog.DiscardHandler))
	ctx, cancel := context.WithTimeout(context.Background(), receiveTimeout)
	defer cancel()
	if err := late.Connect(ctx); err != nil {
		t.Fatalf("Connect(late): %v", err)
	}
	defer late.Close()

	err := late.JoinRoom(ctx, "room-1", self)
	if !errors.Is(err, channel.ErrRoomEnded) {
		t.Fatalf("JoinRoom after end = %v, want ErrRoomEnded", err)
	}
}

func TestEndedRoomRecordIsEvicted(t *testing.T) {
	clk := clock.Fake(time.Unix(1_700_000_000, 0))
	url := startRelay(t, clk)

	a := connect(t, url, "room-1", "a")
	if err := a.Publish(wire.TopicEndMeeting, nil); err != nil {
		t.Fatalf("Publish(end_meeting): %v", err)
	}
	clk.WaitForWaiters(1)
	clk.Advance(DefaultConfig().EndedRoomRetention)

	// A deadline-driven poll: the eviction callback runs on another
	// goroutine, so the room may briefly still reject joins.
	ctx, cancel := context.WithTimeout(context.Background(), receiveTimeout)
	defer cancel()
	deadline := time.Now().Add(receiveTimeout)
	for {
		self := wire.Identity{ID: "again", DisplayName: "again", Role: wire.RoleParticipant}
		c := channel.NewClient(url, self, slog.New(slog.DiscardHandler))
		if err := c.Connect(ctx); err != nil {
			t.Fatalf("Connect: %v", err)
		}
		err := c.JoinRoom(ctx, "room-1", self)
		c.Close()
		if err == nil {
			return
		}
		if !errors.Is(err, channel.ErrRoomEnded) {
			t.Fatalf("JoinRoom = %v, want nil or ErrRoomEnded", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("room still rejecting joins after retention elapsed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRejoinReplacesStaleConnection(t *testing.T) {
	url := startRelay(t, clock.Real())
	connect(t, url, "room-1", "a")
	b := connect(t, url, "room-1", "b")

	// Same participant id on a new connection, as after a reconnect.
	a2 := connect(t, url, "room-1", "a")

	atA2 := watch(t, a2, wire.TopicNewMessage)
	if err := b.Publish(wire.TopicNewMessage, wire.ChatMessage{ID: "m1", UserID: "b", Text: "again"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	testutil.RequireReceive(t, atA2, receiveTimeout, "replacement connection missed broadcast")
}

func TestClientReconnectsAndRejoins(t *testing.T) {
	url := startRelay(t, clock.Real())
	a := connect(t, url, "room-1", "a")
	b := connect(t, url, "room-1", "b")
	atB := watch(t, b, wire.TopicNewMessage)

	// A bare join under b's id makes the relay close b's current
	// connection, the same disruption a network drop causes.
	raw, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing: %v", err)
	}
	defer raw.Close()
	join, err := wire.NewEnvelope(wire.TopicJoinRoom, "b", "", wire.Join{
		RoomID:   "room-1",
		Identity: wire.Identity{ID: "b", DisplayName: "b", Role: wire.RoleParticipant},
	})
	if err != nil {
		t.Fatalf("building join: %v", err)
	}
	data, err := join.Encode()
	if err != nil {
		t.Fatalf("encoding join: %v", err)
	}
	if err := raw.WriteMessage(websocket.BinaryMessage, data); err != nil {
		t.Fatalf("writing join: %v", err)
	}

	// b's client redials and re-joins on its own. Publish until the
	// re-join lands and room traffic reaches b again.
	deadline := time.Now().Add(receiveTimeout)
	for {
		if err := a.Publish(wire.TopicNewMessage, wire.ChatMessage{ID: "m1", UserID: "a", Text: "still here?"}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		select {
		case env := <-atB:
			if env.Sender != "a" {
				t.Fatalf("sender = %q, want %q", env.Sender, "a")
			}
			return
		case <-time.After(50 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("b never resumed receiving after reconnect")
		}
	}
}

func TestConfigValidation(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	bad := DefaultConfig()
	bad.EndedRoomRetention = 0
	if err := bad.validate(); err == nil {
		t.Error("zero retention accepted")
	}

	bad = DefaultConfig()
	bad.Listen = ""
	if err := bad.validate(); err == nil {
		t.Error("empty listen address accepted")
	}
}
