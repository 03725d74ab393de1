// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

package peerlink

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/syncsketch/syncsketch/wire"
)

// Publisher sends targeted signaling messages to one room member.
// Satisfied by channel.Transport.
type Publisher interface {
	PublishTo(topic wire.Topic, target string, payload any) error
}

// Config carries the dependencies of a [Manager].
type Config struct {
	SelfID    string
	Publisher Publisher
	Logger    *slog.Logger

	// ICEServers defaults to a public STUN server when empty.
	ICEServers []webrtc.ICEServer

	// IncludeLoopback admits loopback ICE candidates, for in-process
	// tests.
	IncludeLoopback bool

	// OnRemoteTrack is invoked from pion's goroutines whenever a remote
	// participant's media arrives.
	OnRemoteTrack func(userID string, track *webrtc.TrackRemote)
}

// Manager owns at most one media link per remote participant and runs
// the offer/answer protocol over the room channel. Glare resolves
// deterministically: when both sides have a pending local offer, the
// peer with the greater id rolls its offer back and accepts the
// incoming one.
type Manager struct {
	selfID        string
	publisher     Publisher
	logger        *slog.Logger
	api           *webrtc.API
	rtcConfig     webrtc.Configuration
	onRemoteTrack func(string, *webrtc.TrackRemote)

	mu         sync.Mutex
	links      map[string]*link
	generation uint64
	active     map[TrackKind]webrtc.TrackLocal
}

// New creates a Manager. It holds no goroutines of its own; all work
// happens inside the Handle* methods and pion callbacks.
func New(cfg Config) *Manager {
	servers := cfg.ICEServers
	if len(servers) == 0 {
		servers = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}

	se := webrtc.SettingEngine{}
	if cfg.IncludeLoopback {
		se.SetIncludeLoopbackCandidate(true)
	}

	return &Manager{
		selfID:        cfg.SelfID,
		publisher:     cfg.Publisher,
		logger:        cfg.Logger,
		api:           webrtc.NewAPI(webrtc.WithSettingEngine(se)),
		rtcConfig:     webrtc.Configuration{ICEServers: servers},
		onRemoteTrack: cfg.OnRemoteTrack,
		links:         make(map[string]*link),
		active:        make(map[TrackKind]webrtc.TrackLocal),
	}
}

// HandleUserConnected opens a link to a newly announced participant
// and sends it an offer. An existing link for the same id is torn down
// first so the id never maps to two connections.
func (m *Manager) HandleUserConnected(identity wire.Identity) {
	userID := identity.ID
	if userID == m.selfID {
		return
	}

	m.mu.Lock()
	if old, ok := m.links[userID]; ok {
		m.logger.Warn("duplicate announcement, replacing link", "user", userID)
		old.close()
		delete(m.links, userID)
	}
	l, err := m.newLink(userID)
	if err != nil {
		m.mu.Unlock()
		m.logger.Error("opening link", "user", userID, "error", err)
		return
	}
	m.links[userID] = l

	offer, err := l.pc.CreateOffer(nil)
	if err == nil {
		err = l.pc.SetLocalDescription(offer)
	}
	m.mu.Unlock()
	if err != nil {
		m.logger.Error("creating offer", "user", userID, "error", err)
		return
	}

	m.publish(wire.TopicOffer, userID, wire.Offer{SDP: offer.SDP})
}

// HandleOffer accepts a remote offer and replies with an answer. When
// the link already has a pending local offer, the lower-id peer's
// offer wins: the higher-id side rolls back and answers.
func (m *Manager) HandleOffer(from string, offer wire.Offer) {
	m.mu.Lock()
	l, ok := m.links[from]
	if !ok {
		var err error
		if l, err = m.newLink(from); err != nil {
			m.mu.Unlock()
			m.logger.Error("opening link for offer", "user", from, "error", err)
			return
		}
		m.links[from] = l
	}

	if l.pc.SignalingState() == webrtc.SignalingStateHaveLocalOffer {
		if m.selfID < from {
			// Our offer stands; the remote rolls back and answers it.
			m.mu.Unlock()
			m.logger.Debug("ignoring crossing offer", "user", from)
			return
		}
		if err := l.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}); err != nil {
			m.mu.Unlock()
			m.logger.Error("rolling back local offer", "user", from, "error", err)
			return
		}
		m.logger.Debug("rolled back local offer", "user", from)
	}

	err := l.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offer.SDP,
	})
	var answer webrtc.SessionDescription
	if err == nil {
		answer, err = l.pc.CreateAnswer(nil)
	}
	if err == nil {
		err = l.pc.SetLocalDescription(answer)
	}
	m.mu.Unlock()
	if err != nil {
		m.logger.Error("answering offer", "user", from, "error", err)
		return
	}

	m.publish(wire.TopicAnswer, from, wire.Answer{SDP: answer.SDP})
}

// HandleAnswer applies a remote answer to the pending local offer.
// Answers with no matching pending offer are stale and dropped.
func (m *Manager) HandleAnswer(from string, answer wire.Answer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.links[from]
	if !ok || l.pc.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		m.logger.Debug("dropping stale answer", "user", from)
		return
	}
	err := l.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer.SDP,
	})
	if err != nil {
		m.logger.Error("applying answer", "user", from, "error", err)
	}
}

// HandleCandidate applies a trickled ICE candidate. Candidates for
// unknown links are dropped; the eventual renegotiation supplies fresh
// ones.
func (m *Manager) HandleCandidate(from string, cand wire.ICECandidate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.links[from]
	if !ok {
		m.logger.Debug("dropping candidate for unknown link", "user", from)
		return
	}
	sdpMid := cand.SDPMid
	sdpMLineIndex := cand.SDPMLineIndex
	err := l.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     cand.Candidate,
		SDPMid:        &sdpMid,
		SDPMLineIndex: &sdpMLineIndex,
	})
	if err != nil {
		m.logger.Warn("applying candidate", "user", from, "error", err)
	}
}

// HandleUserDisconnected tears down the departed participant's link.
func (m *Manager) HandleUserDisconnected(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.links[userID]; ok {
		l.close()
		delete(m.links, userID)
	}
}

// SetTrack makes track the outgoing feed of its kind on every link.
// Screen and Camera share the video slot with Screen taking
// precedence, so enabling a screen share suspends an active camera
// until the share ends. Swaps go through ReplaceTrack and never
// renegotiate.
func (m *Manager) SetTrack(kind TrackKind, track webrtc.TrackLocal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[kind] = track
	return m.applySlotLocked(kind.slot())
}

// ClearTrack stops sending the feed of the given kind. The sender slot
// stays allocated; remote peers observe a muted track.
func (m *Manager) ClearTrack(kind TrackKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, kind)
	return m.applySlotLocked(kind.slot())
}

// outgoingLocked resolves the per-slot outgoing tracks from the active
// feeds.
func (m *Manager) outgoingLocked() map[trackSlot]webrtc.TrackLocal {
	out := map[trackSlot]webrtc.TrackLocal{
		slotAudio: m.active[Audio],
		slotVideo: m.active[Camera],
	}
	if screen, ok := m.active[Screen]; ok {
		out[slotVideo] = screen
	}
	return out
}

func (m *Manager) applySlotLocked(slot trackSlot) error {
	track := m.outgoingLocked()[slot]
	var firstErr error
	for _, l := range m.links {
		if err := l.senders[slot].ReplaceTrack(track); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("replacing %s track for %s: %w", slot, l.userID, err)
		}
	}
	return firstErr
}

// State reports the lifecycle state of the link to userID.
func (m *Manager) State(userID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[userID]
	if !ok {
		return StateNone
	}
	return l.state()
}

// Generation returns the link instance counter for userID, zero when
// no link exists. It is stable across track swaps and increments only
// when the link is rebuilt.
func (m *Manager) Generation(userID string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.links[userID]; ok {
		return l.generation
	}
	return 0
}

// Links returns the ids of all current remote links.
func (m *Manager) Links() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.links))
	for id := range m.links {
		ids = append(ids, id)
	}
	return ids
}

// Close tears down every link.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, l := range m.links {
		l.close()
		delete(m.links, id)
	}
}

func (m *Manager) publish(topic wire.Topic, target string, payload any) {
	if err := m.publisher.PublishTo(topic, target, payload); err != nil {
		m.logger.Warn("publishing signaling message", "topic", topic, "target", target, "error", err)
	}
}

func (m *Manager) publishCandidate(userID string, init webrtc.ICECandidateInit) {
	cand := wire.ICECandidate{Candidate: init.Candidate}
	if init.SDPMid != nil {
		cand.SDPMid = *init.SDPMid
	}
	if init.SDPMLineIndex != nil {
		cand.SDPMLineIndex = *init.SDPMLineIndex
	}
	m.publish(wire.TopicICECandidate, userID, cand)
}
