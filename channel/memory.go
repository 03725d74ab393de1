// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/syncsketch/syncsketch/wire"
)

// Hub is an in-process relay for tests. It mirrors the relay's
// admission and routing rules — ended-room rejection, unicast by
// target, room-scoped broadcast, user-connected/-disconnected
// notifications — so multi-participant scenarios run without a
// network. Delivery is synchronous in the publisher's goroutine, which
// makes test assertions deterministic.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[string]*Memory
	ended mapset.Set[string]
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[string]*Memory),
		ended: mapset.NewSet[string](),
	}
}

// Connect returns a Transport for the participant with the given id.
func (h *Hub) Connect(id string) *Memory {
	return &Memory{hub: h, id: id, subs: newSubscriptions()}
}

// EndedRooms exposes the ended set for test assertions.
func (h *Hub) EndedRooms() []string {
	return h.ended.ToSlice()
}

func (h *Hub) join(m *Memory, roomID string, identity wire.Identity) error {
	h.mu.Lock()
	if h.ended.Contains(roomID) {
		h.mu.Unlock()
		return ErrRoomEnded
	}
	members := h.rooms[roomID]
	if members == nil {
		members = make(map[string]*Memory)
		h.rooms[roomID] = members
	}
	others := membersExcept(members, m.id)
	members[m.id] = m
	h.mu.Unlock()

	notify(others, mustEnvelope(wire.TopicUserConnected, m.id, "", wire.UserConnected{Identity: identity}))
	return nil
}

func (h *Hub) leave(m *Memory) {
	h.mu.Lock()
	var others []*Memory
	roomID := m.room
	if members, ok := h.rooms[roomID]; ok {
		delete(members, m.id)
		others = membersExcept(members, "")
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	h.mu.Unlock()

	notify(others, mustEnvelope(wire.TopicUserDisconnected, m.id, "", wire.UserDisconnected{UserID: m.id}))
}

func (h *Hub) route(m *Memory, env wire.Envelope) {
	if env.Topic == wire.TopicEndMeeting {
		h.end(m)
		return
	}

	h.mu.Lock()
	members := h.rooms[m.room]
	var recipients []*Memory
	if env.Target != "" {
		if target, ok := members[env.Target]; ok {
			recipients = []*Memory{target}
		}
	} else {
		recipients = membersExcept(members, m.id)
	}
	h.mu.Unlock()

	notify(recipients, env)
}

func (h *Hub) end(m *Memory) {
	h.mu.Lock()
	roomID := m.room
	h.ended.Add(roomID)
	// The notice reaches every member, the ender included, matching
	// the relay.
	all := membersExcept(h.rooms[roomID], "")
	h.mu.Unlock()

	notify(all, mustEnvelope(wire.TopicMeetingEnded, m.id, "", nil))
}

func membersExcept(members map[string]*Memory, excludeID string) []*Memory {
	out := make([]*Memory, 0, len(members))
	for id, member := range members {
		if id != excludeID {
			out = append(out, member)
		}
	}
	return out
}

func notify(recipients []*Memory, env wire.Envelope) {
	for _, r := range recipients {
		r.dispatch(env)
	}
}

func mustEnvelope(topic wire.Topic, sender, target string, payload any) wire.Envelope {
	env, err := wire.NewEnvelope(topic, sender, target, payload)
	if err != nil {
		panic("channel: encoding hub notification: " + err.Error())
	}
	return env
}

// Compile-time interface check.
var _ Transport = (*Memory)(nil)

// Memory is one participant's Transport on a Hub.
type Memory struct {
	hub *Hub
	id  string

	mu     sync.Mutex
	room   string
	subs   *subscriptions
	closed bool
}

// JoinRoom admits this transport to a room, synchronously: admission
// rejection surfaces as ErrRoomEnded without any timeout plumbing.
func (m *Memory) JoinRoom(_ context.Context, roomID string, identity wire.Identity) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.room = roomID
	m.mu.Unlock()

	if err := m.hub.join(m, roomID, identity); err != nil {
		m.mu.Lock()
		m.room = ""
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Memory) Publish(topic wire.Topic, payload any) error {
	return m.publish(topic, "", payload)
}

func (m *Memory) PublishTo(topic wire.Topic, target string, payload any) error {
	return m.publish(topic, target, payload)
}

func (m *Memory) publish(topic wire.Topic, target string, payload any) error {
	env, err := wire.NewEnvelope(topic, m.id, target, payload)
	if err != nil {
		return err
	}
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil // dropped, matching the disconnected Client
	}
	m.hub.route(m, env)
	return nil
}

func (m *Memory) Subscribe(topic wire.Topic, handler Handler) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, id := m.subs.add(topic, handler)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.subs.remove(key, id)
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	joined := m.room != ""
	m.mu.Unlock()

	if joined {
		m.hub.leave(m)
	}
	return nil
}

func (m *Memory) dispatch(env wire.Envelope) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	handlers := m.subs.snapshot(env.Topic)
	m.mu.Unlock()
	for _, handler := range handlers {
		handler(env)
	}
}
