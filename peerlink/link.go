// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

package peerlink

import (
	"fmt"

	"github.com/pion/webrtc/v4"
)

// State describes where a link is in its lifecycle.
type State int

const (
	StateNone State = iota
	StateNegotiating
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// link is one peer connection to a remote participant. Both sender
// slots are allocated as transceivers at creation, so track swaps are
// always ReplaceTrack calls and never trigger renegotiation. The
// generation number identifies this link instance; it survives every
// track swap and changes only when the link is torn down and rebuilt.
type link struct {
	userID     string
	generation uint64
	pc         *webrtc.PeerConnection
	senders    map[trackSlot]*webrtc.RTPSender
	closed     bool
}

func (m *Manager) newLink(userID string) (*link, error) {
	pc, err := m.api.NewPeerConnection(m.rtcConfig)
	if err != nil {
		return nil, fmt.Errorf("creating peer connection for %s: %w", userID, err)
	}

	l := &link{
		userID:  userID,
		pc:      pc,
		senders: make(map[trackSlot]*webrtc.RTPSender),
	}
	m.generation++
	l.generation = m.generation

	for slot, kind := range map[trackSlot]webrtc.RTPCodecType{
		slotAudio: webrtc.RTPCodecTypeAudio,
		slotVideo: webrtc.RTPCodecTypeVideo,
	} {
		tr, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionSendrecv,
		})
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("adding %s transceiver for %s: %w", kind, userID, err)
		}
		l.senders[slot] = tr.Sender()
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		m.publishCandidate(userID, c.ToJSON())
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if m.onRemoteTrack != nil {
			m.onRemoteTrack(userID, track)
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		m.logger.Debug("link state changed", "user", userID, "state", s.String())
	})

	if err := l.applyLocalTracks(m.outgoingLocked()); err != nil {
		pc.Close()
		return nil, err
	}
	return l, nil
}

// applyLocalTracks installs the current outgoing track for each slot.
func (l *link) applyLocalTracks(outgoing map[trackSlot]webrtc.TrackLocal) error {
	for slot, sender := range l.senders {
		if err := sender.ReplaceTrack(outgoing[slot]); err != nil {
			return fmt.Errorf("installing %v track for %s: %w", slot, l.userID, err)
		}
	}
	return nil
}

func (l *link) state() State {
	if l.closed {
		return StateClosed
	}
	switch l.pc.ConnectionState() {
	case webrtc.PeerConnectionStateConnected:
		return StateConnected
	case webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateFailed:
		return StateClosed
	default:
		return StateNegotiating
	}
}

func (l *link) close() {
	if l.closed {
		return
	}
	l.closed = true
	l.pc.Close()
}
