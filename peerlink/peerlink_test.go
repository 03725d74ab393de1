// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

package peerlink

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/syncsketch/syncsketch/wire"
)

// pipe is an in-memory signaling fabric. Messages queue up and move
// only when pump runs, so tests control interleaving precisely enough
// to provoke glare.
type pipe struct {
	mu       sync.Mutex
	queue    []signal
	managers map[string]*Manager
}

type signal struct {
	topic   wire.Topic
	from    string
	to      string
	payload any
}

func newPipe() *pipe {
	return &pipe{managers: make(map[string]*Manager)}
}

func (p *pipe) endpoint(id string) *pipeEnd {
	return &pipeEnd{pipe: p, selfID: id}
}

func (p *pipe) pump(t *testing.T) {
	t.Helper()
	for {
		p.mu.Lock()
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		s := p.queue[0]
		p.queue = p.queue[1:]
		m := p.managers[s.to]
		p.mu.Unlock()

		if m == nil {
			continue
		}
		switch payload := s.payload.(type) {
		case wire.Offer:
			m.HandleOffer(s.from, payload)
		case wire.Answer:
			m.HandleAnswer(s.from, payload)
		case wire.ICECandidate:
			m.HandleCandidate(s.from, payload)
		default:
			t.Fatalf("unexpected signal payload %T", s.payload)
		}
	}
}

type pipeEnd struct {
	pipe   *pipe
	selfID string
}

func (e *pipeEnd) PublishTo(topic wire.Topic, target string, payload any) error {
	e.pipe.mu.Lock()
	defer e.pipe.mu.Unlock()
	e.pipe.queue = append(e.pipe.queue, signal{topic: topic, from: e.selfID, to: target, payload: payload})
	return nil
}

func newManager(t *testing.T, p *pipe, id string) *Manager {
	t.Helper()
	m := New(Config{
		SelfID:          id,
		Publisher:       p.endpoint(id),
		Logger:          slog.New(slog.DiscardHandler),
		IncludeLoopback: true,
	})
	p.mu.Lock()
	p.managers[id] = m
	p.mu.Unlock()
	t.Cleanup(m.Close)
	return m
}

func identity(id string) wire.Identity {
	return wire.Identity{ID: id, DisplayName: id, Role: wire.RoleParticipant}
}

func TestOfferAnswerEstablishesLink(t *testing.T) {
	p := newPipe()
	a := newManager(t, p, "a")
	b := newManager(t, p, "b")

	a.HandleUserConnected(identity("b"))
	p.pump(t)

	if got := a.Links(); len(got) != 1 || got[0] != "b" {
		t.Fatalf("a.Links() = %v, want [b]", got)
	}
	if got := b.Links(); len(got) != 1 || got[0] != "a" {
		t.Fatalf("b.Links() = %v, want [a]", got)
	}
	if s := a.State("b"); s == StateNone || s == StateClosed {
		t.Errorf("a's link state = %v after negotiation", s)
	}
	if s := b.State("a"); s == StateNone || s == StateClosed {
		t.Errorf("b's link state = %v after negotiation", s)
	}
}

func TestGlareResolvesToOneLinkPerSide(t *testing.T) {
	p := newPipe()
	a := newManager(t, p, "a")
	b := newManager(t, p, "b")

	// Both sides announce each other before any signaling moves, so
	// both hold a pending local offer when the crossing offer lands.
	a.HandleUserConnected(identity("b"))
	b.HandleUserConnected(identity("a"))
	p.pump(t)

	if got := a.Links(); len(got) != 1 {
		t.Fatalf("a.Links() = %v, want exactly one", got)
	}
	if got := b.Links(); len(got) != 1 {
		t.Fatalf("b.Links() = %v, want exactly one", got)
	}
	if s := a.State("b"); s == StateNone || s == StateClosed {
		t.Errorf("a's link state = %v after glare", s)
	}
	if s := b.State("a"); s == StateNone || s == StateClosed {
		t.Errorf("b's link state = %v after glare", s)
	}
}

func TestDuplicateAnnouncementReplacesLink(t *testing.T) {
	p := newPipe()
	a := newManager(t, p, "a")
	newManager(t, p, "b")

	a.HandleUserConnected(identity("b"))
	first := a.Generation("b")

	a.HandleUserConnected(identity("b"))
	second := a.Generation("b")

	if len(a.Links()) != 1 {
		t.Fatalf("a.Links() = %v, want exactly one", a.Links())
	}
	if second <= first {
		t.Errorf("replacement generation %d not above original %d", second, first)
	}
}

func TestGenerationStableAcrossTrackSwaps(t *testing.T) {
	p := newPipe()
	a := newManager(t, p, "a")
	newManager(t, p, "b")

	a.HandleUserConnected(identity("b"))
	p.pump(t)
	gen := a.Generation("b")
	if gen == 0 {
		t.Fatal("no link established")
	}

	cam, _, err := StaticSource{}.AcquireTrack(context.Background(), Camera)
	if err != nil {
		t.Fatalf("acquiring camera track: %v", err)
	}
	for range 2 {
		if err := a.SetTrack(Camera, cam); err != nil {
			t.Fatalf("SetTrack(Camera): %v", err)
		}
		if err := a.ClearTrack(Camera); err != nil {
			t.Fatalf("ClearTrack(Camera): %v", err)
		}
	}

	if got := a.Generation("b"); got != gen {
		t.Errorf("generation changed across track swaps: %d -> %d", gen, got)
	}
}

func TestScreenShareSuspendsCamera(t *testing.T) {
	p := newPipe()
	a := newManager(t, p, "a")
	newManager(t, p, "b")
	a.HandleUserConnected(identity("b"))
	p.pump(t)

	ctx := context.Background()
	cam, _, err := StaticSource{}.AcquireTrack(ctx, Camera)
	if err != nil {
		t.Fatalf("acquiring camera track: %v", err)
	}
	scr, _, err := StaticSource{}.AcquireTrack(ctx, Screen)
	if err != nil {
		t.Fatalf("acquiring screen track: %v", err)
	}

	videoSender := func() *webrtc.RTPSender {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.links["b"].senders[slotVideo]
	}

	if err := a.SetTrack(Camera, cam); err != nil {
		t.Fatalf("SetTrack(Camera): %v", err)
	}
	if got := videoSender().Track(); got != cam {
		t.Fatal("video slot does not carry the camera track")
	}

	if err := a.SetTrack(Screen, scr); err != nil {
		t.Fatalf("SetTrack(Screen): %v", err)
	}
	if got := videoSender().Track(); got != scr {
		t.Fatal("screen share did not take over the video slot")
	}

	if err := a.ClearTrack(Screen); err != nil {
		t.Fatalf("ClearTrack(Screen): %v", err)
	}
	if got := videoSender().Track(); got != cam {
		t.Fatal("camera track not restored after screen share ended")
	}

	if err := a.ClearTrack(Camera); err != nil {
		t.Fatalf("ClearTrack(Camera): %v", err)
	}
	if got := videoSender().Track(); got != nil {
		t.Fatalf("video slot still carries %v after clearing", got)
	}
}

func TestStaleAnswerDropped(t *testing.T) {
	p := newPipe()
	a := newManager(t, p, "a")
	newManager(t, p, "b")

	// No link at all.
	a.HandleAnswer("b", wire.Answer{SDP: "v=0"})
	if got := a.Links(); len(got) != 0 {
		t.Fatalf("stale answer created a link: %v", got)
	}

	// Settled link: a second answer has no pending offer to match.
	a.HandleUserConnected(identity("b"))
	p.pump(t)
	gen := a.Generation("b")
	a.HandleAnswer("b", wire.Answer{SDP: "v=0"})
	if got := a.Generation("b"); got != gen {
		t.Errorf("stale answer disturbed the link: generation %d -> %d", gen, got)
	}
}

func TestOrphanCandidateDropped(t *testing.T) {
	p := newPipe()
	a := newManager(t, p, "a")

	a.HandleCandidate("ghost", wire.ICECandidate{Candidate: "candidate:0 1 udp 1 127.0.0.1 9 typ host"})
	if got := a.Links(); len(got) != 0 {
		t.Fatalf("orphan candidate created a link: %v", got)
	}
}

func TestDisconnectClosesLink(t *testing.T) {
	p := newPipe()
	a := newManager(t, p, "a")
	newManager(t, p, "b")

	a.HandleUserConnected(identity("b"))
	p.pump(t)
	a.HandleUserDisconnected("b")

	if got := a.Links(); len(got) != 0 {
		t.Fatalf("a.Links() = %v after disconnect, want none", got)
	}
	if s := a.State("b"); s != StateNone {
		t.Errorf("State(b) = %v after disconnect, want none", s)
	}
}

func TestDeniedSourceSurfacesError(t *testing.T) {
	_, _, err := DeniedSource{}.AcquireTrack(context.Background(), Audio)
	if !errors.Is(err, ErrDeviceDenied) {
		t.Fatalf("AcquireTrack error = %v, want ErrDeviceDenied", err)
	}
}

func TestSelfAnnouncementIgnored(t *testing.T) {
	p := newPipe()
	a := newManager(t, p, "a")
	a.HandleUserConnected(identity("a"))
	if got := a.Links(); len(got) != 0 {
		t.Fatalf("a linked to itself: %v", got)
	}
}
