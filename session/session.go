// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/syncsketch/syncsketch/board"
	"github.com/syncsketch/syncsketch/channel"
	"github.com/syncsketch/syncsketch/lib/clock"
	"github.com/syncsketch/syncsketch/peerlink"
	"github.com/syncsketch/syncsketch/presence"
	"github.com/syncsketch/syncsketch/store"
	"github.com/syncsketch/syncsketch/wire"
)

// ErrLeft reports an operation on a session that already left its
// room.
var ErrLeft = errors.New("session: left the room")

// defaultCursorInterval throttles outgoing cursor updates.
const defaultCursorInterval = 50 * time.Millisecond

// loopBuffer sizes the event queue feeding the session goroutine.
const loopBuffer = 256

// Events carries the session's outbound callbacks. All of them except
// OnPeerLeft and OnRemoteTrack run on the session's event loop and
// must not call back into the session.
type Events struct {
	OnBoardChanged func(board.Document)
	OnChat         func(wire.ChatMessage)
	OnCursor       func(wire.CursorMoved)
	OnFile         func(wire.FileRecord)
	OnSummary      func(text string)
	OnPeerJoined   func(wire.Identity)
	OnPeerLeft     func(userID string)
	OnRemoteTrack  func(userID string, track *webrtc.TrackRemote)
	OnMuted        func()
	OnKicked       func()
	OnMeetingEnded func()
}

// Config assembles a participant's dependencies.
type Config struct {
	RoomID string
	// Title names the meeting; used only when this participant hosts a
	// room with no persisted metadata yet.
	Title string
	Self  wire.Identity

	Transport  channel.Transport
	Store      store.Store
	Media      peerlink.MediaSource
	Summarizer Summarizer
	Clock      clock.Clock
	Logger     *slog.Logger
	Events     Events

	// CursorInterval defaults to defaultCursorInterval.
	CursorInterval time.Duration

	// ICEServers and IncludeLoopback pass through to the peer link
	// manager.
	ICEServers      []webrtc.ICEServer
	IncludeLoopback bool
}

// Session is one participant's composition root: it owns the channel
// subscriptions, the operation log and undo history, the peer link
// manager, the roster, and the scoped store.
//
// Every inbound message and every state-mutating method funnels
// through a single event loop goroutine, so session state needs no
// locking beyond what the owned components carry themselves.
type Session struct {
	self        wire.Identity
	roomID      string
	title       string
	transport   channel.Transport
	st          store.Store
	media       peerlink.MediaSource
	summarizer  Summarizer
	clk         clock.Clock
	logger      *slog.Logger
	events      Events
	cursorEvery time.Duration

	log     *board.Log
	history *board.History
	peers   *peerlink.Manager
	roster  *presence.Roster

	loop chan func()
	done chan struct{}

	// Loop-confined state below.
	meeting      wire.Meeting
	chat         []wire.ChatMessage
	files        []wire.FileRecord
	summary      string
	releases     map[peerlink.TrackKind]func()
	lastCursorAt time.Time
	cancels      []func()
	left         bool
}

// New assembles a session. Call [Session.Join] to enter the room.
func New(cfg Config) *Session {
	cursorEvery := cfg.CursorInterval
	if cursorEvery <= 0 {
		cursorEvery = defaultCursorInterval
	}

	s := &Session{
		self:        cfg.Self,
		roomID:      cfg.RoomID,
		title:       cfg.Title,
		transport:   cfg.Transport,
		st:          cfg.Store,
		media:       cfg.Media,
		summarizer:  cfg.Summarizer,
		clk:         cfg.Clock,
		logger:      cfg.Logger,
		events:      cfg.Events,
		cursorEvery: cursorEvery,
		loop:        make(chan func(), loopBuffer),
		done:        make(chan struct{}),
		releases:    make(map[peerlink.TrackKind]func()),
	}

	s.peers = peerlink.New(peerlink.Config{
		SelfID:          cfg.Self.ID,
		Publisher:       cfg.Transport,
		Logger:          cfg.Logger,
		ICEServers:      cfg.ICEServers,
		IncludeLoopback: cfg.IncludeLoopback,
		OnRemoteTrack:   cfg.Events.OnRemoteTrack,
	})

	s.roster = presence.New(presence.Config{
		Self:      cfg.Self,
		Transport: cfg.Transport,
		Clock:     cfg.Clock,
		Logger:    cfg.Logger,
		OnJoin:    s.peerJoined,
		OnLeave:   s.peerLeft,
	})

	return s
}

// Join connects the transport, enters the room, restores persisted
// state, and starts the event loop. ErrRoomEnded surfaces unchanged
// when the room's meeting is over.
func (s *Session) Join(ctx context.Context) error {
	if c, ok := s.transport.(interface{ Connect(context.Context) error }); ok {
		if err := c.Connect(ctx); err != nil {
			return fmt.Errorf("connecting channel: %w", err)
		}
	}
	if err := s.restore(); err != nil {
		return err
	}

	// Subscriptions go live before admission so nothing sent to a
	// fresh member slips past its handlers.
	go s.run()
	s.subscribe()

	if err := s.transport.JoinRoom(ctx, s.roomID, s.self); err != nil {
		s.Leave()
		return fmt.Errorf("joining room %s: %w", s.roomID, err)
	}
	s.roster.Start()
	s.logger.Info("joined room", "room", s.roomID, "user", s.self.ID, "ops", s.log.Len())
	return nil
}

// restore loads this room's persisted state from the scoped store.
func (s *Session) restore() error {
	log, err := board.LoadLog(s.st, s.key("ops"))
	if err != nil {
		return fmt.Errorf("restoring operation log: %w", err)
	}
	s.log = log
	s.history = board.NewHistory(log, s.self.ID)

	if _, err := s.st.Load(s.key("chat"), &s.chat); err != nil {
		return fmt.Errorf("restoring chat: %w", err)
	}
	if _, err := s.st.Load(s.key("files"), &s.files); err != nil {
		return fmt.Errorf("restoring files: %w", err)
	}
	if _, err := s.st.Load(s.key("summary"), &s.summary); err != nil {
		return fmt.Errorf("restoring summary: %w", err)
	}

	found, err := s.st.Load(s.key("meeting"), &s.meeting)
	if err != nil {
		return fmt.Errorf("restoring meeting metadata: %w", err)
	}
	if !found && s.self.Role == wire.RoleHost {
		now := s.clk.Now().UnixMilli()
		s.meeting = wire.Meeting{
			ID:           s.roomID,
			Title:        s.title,
			HostID:       s.self.ID,
			CreatedAt:    now,
			LastModified: now,
		}
		if err := s.st.Save(s.key("meeting"), s.meeting); err != nil {
			return fmt.Errorf("persisting meeting metadata: %w", err)
		}
	}
	return nil
}

// key namespaces a store key to this room, so two meetings on one
// machine never mix state.
func (s *Session) key(prefix string) string {
	return prefix + "_" + s.roomID
}

func (s *Session) subscribe() {
	type route struct {
		topic   wire.Topic
		handler func(wire.Envelope)
	}
	for _, r := range []route{
		{wire.TopicBoardOp, s.handleBoardOp},
		{wire.TopicBoardUndo, s.handleBoardUndo},
		{wire.TopicNewMessage, s.handleChat},
		{wire.TopicCursorMoved, s.handleCursor},
		{wire.TopicNewFile, s.handleFile},
		{wire.TopicNewSummary, s.handleSummary},
		{wire.TopicMeetingStateSync, s.handleStateSync},
		{wire.TopicPresencePing, s.handlePing},
		{wire.TopicPresencePong, s.handlePong},
		{wire.TopicUserConnected, s.handleUserConnected},
		{wire.TopicUserDisconnected, s.handleUserDisconnected},
		{wire.TopicOffer, s.handleOffer},
		{wire.TopicAnswer, s.handleAnswer},
		{wire.TopicICECandidate, s.handleCandidate},
		{wire.TopicAdminAction, s.handleAdmin},
		{wire.TopicMeetingEnded, s.handleMeetingEnded},
		{wire.TopicMeetingEndedError, s.handleEndedRejection},
	} {
		handler := r.handler
		cancel := s.transport.Subscribe(r.topic, func(env wire.Envelope) {
			select {
			case s.loop <- func() { handler(env) }:
			case <-s.done:
			}
		})
		s.cancels = append(s.cancels, cancel)
	}
}

func (s *Session) run() {
	for {
		select {
		case f := <-s.loop:
			f()
		case <-s.done:
			return
		}
	}
}

// do runs f on the event loop and waits for its result.
func (s *Session) do(f func() error) error {
	errc := make(chan error, 1)
	select {
	case s.loop <- func() { errc <- f() }:
	case <-s.done:
		return ErrLeft
	}
	select {
	case err := <-errc:
		return err
	case <-s.done:
		return ErrLeft
	}
}

// Leave closes the session: subscriptions are cancelled, peer links
// closed, acquired devices released, and the transport shut down.
func (s *Session) Leave() {
	// ErrLeft here means a second Leave; nothing to do.
	_ = s.do(func() error {
		s.leaveNow()
		return nil
	})
}

// leaveNow runs on the event loop (or during a failed Join, before the
// loop starts). Idempotent.
func (s *Session) leaveNow() {
	if s.left {
		return
	}
	s.left = true

	for _, cancel := range s.cancels {
		cancel()
	}
	s.cancels = nil
	s.roster.Stop()
	s.peers.Close()
	for kind, release := range s.releases {
		release()
		delete(s.releases, kind)
	}
	if err := s.transport.Close(); err != nil {
		s.logger.Debug("closing transport", "error", err)
	}
	s.logger.Info("left room", "room", s.roomID, "user", s.self.ID)
	close(s.done)
}

// Document returns the board's current projection.
func (s *Session) Document() board.Document {
	return s.log.Project()
}

// Roster returns the known room members sorted by id.
func (s *Session) Roster() []presence.Entry {
	return s.roster.Snapshot()
}

// Meeting returns the current meeting metadata.
func (s *Session) Meeting() wire.Meeting {
	var m wire.Meeting
	s.do(func() error {
		m = s.meeting
		return nil
	})
	return m
}

// Chat returns the accumulated chat history.
func (s *Session) Chat() []wire.ChatMessage {
	var out []wire.ChatMessage
	s.do(func() error {
		out = append(out, s.chat...)
		return nil
	})
	return out
}

// Files returns the shared file records.
func (s *Session) Files() []wire.FileRecord {
	var out []wire.FileRecord
	s.do(func() error {
		out = append(out, s.files...)
		return nil
	})
	return out
}

// Summary returns the latest meeting summary, empty when none exists.
func (s *Session) Summary() string {
	var out string
	s.do(func() error {
		out = s.summary
		return nil
	})
	return out
}

// peerJoined runs on the event loop via the roster's discovery path.
// The host answers every newcomer with the shared meeting state so a
// late joiner converges on metadata, files, and summary.
func (s *Session) peerJoined(identity wire.Identity) {
	if s.self.Role == wire.RoleHost {
		state := wire.MeetingState{Meeting: s.meeting, Files: s.files, Summary: s.summary}
		if err := s.transport.PublishTo(wire.TopicMeetingStateSync, identity.ID, state); err != nil {
			s.logger.Warn("syncing state to newcomer", "user", identity.ID, "error", err)
		}
	}
	if s.events.OnPeerJoined != nil {
		s.events.OnPeerJoined(identity)
	}
}

// peerLeft may fire from the roster's eviction goroutine; it touches
// only components that carry their own locks.
func (s *Session) peerLeft(userID string) {
	s.peers.HandleUserDisconnected(userID)
	if s.events.OnPeerLeft != nil {
		s.events.OnPeerLeft(userID)
	}
}
