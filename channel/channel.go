// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"errors"

	"github.com/syncsketch/syncsketch/wire"
)

// ErrRoomEnded reports that the relay refused admission because the
// room's meeting has ended. Not retried: the caller surfaces it.
var ErrRoomEnded = errors.New("channel: room has ended")

// ErrClosed reports use of a transport after Close.
var ErrClosed = errors.New("channel: transport closed")

// Handler receives one inbound envelope. Handlers run on the
// transport's dispatch goroutine and must not block.
type Handler func(env wire.Envelope)

// Transport is the persistent, bidirectional message channel between a
// participant and the relay. Instances are explicitly constructed and
// injected — there is no package-level singleton — so sessions under
// test substitute the in-memory implementation.
//
// Delivery is fire-and-forget, at-most-once: publishes during a
// disconnect are dropped, not queued, and loss self-heals through the
// presence protocol rather than per-message retry. No ordering is
// guaranteed across topics or across participants.
type Transport interface {
	// JoinRoom associates this transport with a room. Returns
	// ErrRoomEnded when the relay has marked the room ended.
	JoinRoom(ctx context.Context, roomID string, identity wire.Identity) error

	// Publish sends to the rest of the room.
	Publish(topic wire.Topic, payload any) error

	// PublishTo sends to one addressed participant.
	PublishTo(topic wire.Topic, target string, payload any) error

	// Subscribe registers a handler for a topic. Multiple handlers
	// per topic are allowed; the returned cancel removes this one.
	Subscribe(topic wire.Topic, handler Handler) (cancel func())

	// Close tears the transport down.
	Close() error
}

// subscriptions multiplexes inbound envelopes by topic. Shared by the
// websocket client and the in-memory transport.
type subscriptions struct {
	nextID   int
	handlers map[wire.Topic]map[int]Handler
}

func newSubscriptions() *subscriptions {
	return &subscriptions{handlers: make(map[wire.Topic]map[int]Handler)}
}

func (s *subscriptions) add(topic wire.Topic, handler Handler) (topicKey wire.Topic, id int) {
	s.nextID++
	if s.handlers[topic] == nil {
		s.handlers[topic] = make(map[int]Handler)
	}
	s.handlers[topic][s.nextID] = handler
	return topic, s.nextID
}

func (s *subscriptions) remove(topic wire.Topic, id int) {
	delete(s.handlers[topic], id)
}

// snapshot returns the handlers for topic so dispatch can run without
// holding the subscription lock.
func (s *subscriptions) snapshot(topic wire.Topic) []Handler {
	out := make([]Handler, 0, len(s.handlers[topic]))
	for _, h := range s.handlers[topic] {
		out = append(out, h)
	}
	return out
}
