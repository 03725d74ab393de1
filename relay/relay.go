// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorilla/websocket"

	"github.com/syncsketch/syncsketch/lib/clock"
	"github.com/syncsketch/syncsketch/wire"
)

// Server is the stateless-per-room fan-out relay. Its only state is
// the room-membership table and a bounded set of ended-room ids; it
// never decodes message payloads. The two control topics (join-room,
// end_meeting) are handled here; everything else is forwarded — to the
// envelope's target when present, otherwise to the rest of the
// sender's room.
//
// Rooms are independent: handling is fully parallel across rooms, with
// the membership and ended tables as the only synchronized state.
type Server struct {
	clk       clock.Clock
	logger    *slog.Logger
	retention time.Duration
	readLimit int64
	upgrader  websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]*room

	// ended remembers rooms whose meetings have ended so later joins
	// are rejected. Entries are evicted after the retention horizon —
	// bounded memory, not permanent history.
	ended mapset.Set[string]
}

type room struct {
	members map[string]*member
}

type member struct {
	id       string
	identity wire.Identity
	roomID   string
	conn     *websocket.Conn
	writeMu  sync.Mutex
}

// New creates a relay server. Ended-room ids are forgotten after
// retention.
func New(cfg Config, clk clock.Clock, logger *slog.Logger) *Server {
	return &Server{
		clk:       clk,
		logger:    logger,
		retention: cfg.EndedRoomRetention,
		readLimit: cfg.ReadLimitBytes,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(cfg.AllowedOrigins),
		},
		rooms: make(map[string]*room),
		ended: mapset.NewSet[string](),
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := mapset.NewSet(allowed...)
	return func(r *http.Request) bool {
		return set.Contains(r.Header.Get("Origin"))
	}
}

// Handler returns the websocket endpoint.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.serveWS)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	if s.readLimit > 0 {
		conn.SetReadLimit(s.readLimit)
	}

	m := &member{conn: conn}
	defer s.drop(m)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := wire.DecodeEnvelope(data)
		if err != nil {
			s.logger.Warn("skipping undecodable frame", "remote", r.RemoteAddr, "error", err)
			continue
		}

		switch env.Topic {
		case wire.TopicJoinRoom:
			s.handleJoin(m, env)
		case wire.TopicEndMeeting:
			s.handleEnd(m)
		default:
			s.forward(m, env)
		}
	}
}

// handleJoin admits the connection to a room, or rejects it when the
// room's meeting has ended. Existing members learn of the newcomer; a
// stale connection with the same participant id is replaced.
func (s *Server) handleJoin(m *member, env wire.Envelope) {
	join, err := wire.Payload[wire.Join](env)
	if err != nil {
		s.logger.Warn("malformed join", "error", err)
		return
	}

	s.mu.Lock()
	if s.ended.Contains(join.RoomID) {
		s.mu.Unlock()
		s.logger.Info("rejecting join of ended room",
			"room", join.RoomID,
			"user", join.Identity.ID,
		)
		s.write(m, mustEnvelope(wire.TopicMeetingEndedError, "", join.Identity.ID, nil))
		return
	}

	// A reconnecting client re-joins on a fresh connection; evict the
	// stale one so the id maps to exactly one connection.
	rm := s.rooms[join.RoomID]
	if rm == nil {
		rm = &room{members: make(map[string]*member)}
		s.rooms[join.RoomID] = rm
	}
	stale := rm.members[join.Identity.ID]
	m.id = join.Identity.ID
	m.identity = join.Identity
	m.roomID = join.RoomID
	rm.members[m.id] = m
	others := rm.othersLocked(m.id)
	s.mu.Unlock()

	if stale != nil && stale != m {
		stale.conn.Close()
	}

	s.logger.Info("participant joined", "room", join.RoomID, "user", m.id)
	s.write(m, mustEnvelope(wire.TopicRoomJoined, "", m.id, wire.RoomJoined{RoomID: join.RoomID}))
	s.broadcast(others, mustEnvelope(wire.TopicUserConnected, m.id, "", wire.UserConnected{Identity: join.Identity}))
}

// handleEnd marks the sender's room ended, notifies every member, and
// schedules the ended-room record's eviction.
func (s *Server) handleEnd(m *member) {
	if m.roomID == "" {
		return
	}
	roomID := m.roomID

	s.mu.Lock()
	s.ended.Add(roomID)
	var all []*member
	if rm, ok := s.rooms[roomID]; ok {
		all = rm.othersLocked("")
	}
	s.mu.Unlock()

	s.logger.Info("meeting ended", "room", roomID, "by", m.id)
	s.broadcast(all, mustEnvelope(wire.TopicMeetingEnded, m.id, "", nil))

	s.clk.AfterFunc(s.retention, func() {
		s.ended.Remove(roomID)
		s.logger.Debug("ended-room record evicted", "room", roomID)
	})
}

// forward routes a data message: unicast when the envelope carries a
// target, otherwise fan-out to the rest of the sender's room. The
// sender field is stamped with the joined identity so members cannot
// spoof each other; the payload is passed through untouched.
func (s *Server) forward(m *member, env wire.Envelope) {
	if m.roomID == "" {
		s.logger.Debug("dropping message from unjoined connection", "topic", env.Topic)
		return
	}
	env.Sender = m.id

	s.mu.Lock()
	rm := s.rooms[m.roomID]
	var recipients []*member
	if rm != nil {
		if env.Target != "" {
			if target, ok := rm.members[env.Target]; ok {
				recipients = []*member{target}
			}
		} else {
			recipients = rm.othersLocked(m.id)
		}
	}
	s.mu.Unlock()

	s.broadcast(recipients, env)
}

// drop removes a disconnected member and notifies the remaining room.
func (s *Server) drop(m *member) {
	m.conn.Close()
	if m.roomID == "" {
		return
	}

	s.mu.Lock()
	var others []*member
	if rm, ok := s.rooms[m.roomID]; ok {
		// A reconnect may have already replaced this entry.
		if rm.members[m.id] == m {
			delete(rm.members, m.id)
			others = rm.othersLocked("")
			if len(rm.members) == 0 {
				delete(s.rooms, m.roomID)
			}
		}
	}
	s.mu.Unlock()

	if others != nil {
		s.logger.Info("participant disconnected", "room", m.roomID, "user", m.id)
		s.broadcast(others, mustEnvelope(wire.TopicUserDisconnected, m.id, "", wire.UserDisconnected{UserID: m.id}))
	}
}

func (r *room) othersLocked(excludeID string) []*member {
	out := make([]*member, 0, len(r.members))
	for id, m := range r.members {
		if id != excludeID {
			out = append(out, m)
		}
	}
	return out
}

func (s *Server) broadcast(recipients []*member, env wire.Envelope) {
	for _, m := range recipients {
		s.write(m, env)
	}
}

// write sends one envelope on a member's connection. A write failure
// is non-fatal to the room: the member's own read loop notices the
// dead connection and cleans up.
func (s *Server) write(m *member, env wire.Envelope) {
	data, err := env.Encode()
	if err != nil {
		s.logger.Error("encoding outbound envelope", "topic", env.Topic, "error", err)
		return
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := m.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		s.logger.Debug("write to member failed", "user", m.id, "error", err)
	}
}

func mustEnvelope(topic wire.Topic, sender, target string, payload any) wire.Envelope {
	env, err := wire.NewEnvelope(topic, sender, target, payload)
	if err != nil {
		panic("relay: encoding notification: " + err.Error())
	}
	return env
}
