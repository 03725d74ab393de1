// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

package presence

import (
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/syncsketch/syncsketch/lib/clock"
	"github.com/syncsketch/syncsketch/wire"
)

const (
	// defaultAnnounceInterval is how often the roster re-broadcasts its
	// own presence.
	defaultAnnounceInterval = 15 * time.Second

	// evictMultiple sets the liveness horizon: an entry not heard from
	// for evictMultiple announce intervals is dropped.
	evictMultiple = 3

	// maxPongDelay bounds the random wait before answering a ping, so
	// a newcomer is not hit by every member at once.
	maxPongDelay = 500 * time.Millisecond
)

// Transport is the slice of the channel the roster needs.
type Transport interface {
	Publish(topic wire.Topic, payload any) error
	PublishTo(topic wire.Topic, target string, payload any) error
}

// Entry is one known participant.
type Entry struct {
	Identity wire.Identity
	LastSeen time.Time
}

// Config carries the dependencies of a [Roster].
type Config struct {
	Self      wire.Identity
	Transport Transport
	Clock     clock.Clock
	Logger    *slog.Logger

	// AnnounceInterval defaults to defaultAnnounceInterval.
	AnnounceInterval time.Duration

	// OnJoin fires when a participant becomes known; OnLeave when one
	// disconnects or goes silent past the liveness horizon.
	OnJoin  func(wire.Identity)
	OnLeave func(userID string)
}

// Roster tracks who is in the room. Any member can answer a newcomer's
// ping, so the roster converges without a central membership
// authority; periodic re-announcement plus liveness eviction clears
// entries whose owner vanished without a disconnect notice.
type Roster struct {
	self      wire.Identity
	transport Transport
	clk       clock.Clock
	logger    *slog.Logger
	interval  time.Duration
	onJoin    func(wire.Identity)
	onLeave   func(string)

	mu      sync.Mutex
	entries map[string]*Entry
	timer   *clock.Timer
	stopped bool
}

// New creates a Roster. Call [Roster.Start] after the room is joined.
func New(cfg Config) *Roster {
	interval := cfg.AnnounceInterval
	if interval <= 0 {
		interval = defaultAnnounceInterval
	}
	return &Roster{
		self:      cfg.Self,
		transport: cfg.Transport,
		clk:       cfg.Clock,
		logger:    cfg.Logger,
		interval:  interval,
		onJoin:    cfg.OnJoin,
		onLeave:   cfg.OnLeave,
		entries:   make(map[string]*Entry),
	}
}

// Start broadcasts the initial presence ping and arms the re-announce
// and eviction schedule.
func (r *Roster) Start() {
	r.announce()

	r.mu.Lock()
	r.stopped = false
	r.mu.Unlock()
	r.schedule()
}

// Stop disarms the announce schedule. The entry table stays readable.
func (r *Roster) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// schedule arms the next announce tick. The callback re-arms itself,
// so each tick runs to completion before the next is due.
func (r *Roster) schedule() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.timer = r.clk.AfterFunc(r.interval, func() {
		r.announce()
		r.evictStale()
		r.schedule()
	})
}

func (r *Roster) announce() {
	if err := r.transport.Publish(wire.TopicPresencePing, wire.PresencePing{Identity: r.self}); err != nil {
		r.logger.Warn("announcing presence", "error", err)
	}
}

// HandlePing learns the sender and, when it was previously unknown,
// schedules a targeted pong after a random delay. Only the asker gets
// the reply; the room is spared the crossfire.
func (r *Roster) HandlePing(ping wire.PresencePing) {
	asker := ping.Identity.ID
	if asker == r.self.ID {
		return
	}
	known := r.observe(ping.Identity)
	if known {
		return
	}

	delay := time.Duration(rand.Int64N(int64(maxPongDelay)))
	r.clk.AfterFunc(delay, func() {
		err := r.transport.PublishTo(wire.TopicPresencePong, asker, wire.PresencePong{Identity: r.self})
		if err != nil {
			r.logger.Warn("answering presence ping", "asker", asker, "error", err)
		}
	})
}

// HandlePong learns the answering participant.
func (r *Roster) HandlePong(pong wire.PresencePong) {
	if pong.Identity.ID == r.self.ID {
		return
	}
	r.observe(pong.Identity)
}

// HandleUserConnected feeds a relay admission notice into the roster.
func (r *Roster) HandleUserConnected(identity wire.Identity) {
	if identity.ID == r.self.ID {
		return
	}
	r.observe(identity)
}

// HandleUserDisconnected removes a departed participant.
func (r *Roster) HandleUserDisconnected(userID string) {
	r.mu.Lock()
	_, ok := r.entries[userID]
	delete(r.entries, userID)
	r.mu.Unlock()

	if ok && r.onLeave != nil {
		r.onLeave(userID)
	}
}

// observe records a sighting, reporting whether the participant was
// already known.
func (r *Roster) observe(identity wire.Identity) (known bool) {
	r.mu.Lock()
	e, known := r.entries[identity.ID]
	if known {
		e.Identity = identity
		e.LastSeen = r.clk.Now()
	} else {
		r.entries[identity.ID] = &Entry{Identity: identity, LastSeen: r.clk.Now()}
	}
	r.mu.Unlock()

	if !known && r.onJoin != nil {
		r.logger.Debug("participant discovered", "user", identity.ID)
		r.onJoin(identity)
	}
	return known
}

func (r *Roster) evictStale() {
	horizon := r.clk.Now().Add(-evictMultiple * r.interval)

	r.mu.Lock()
	var evicted []string
	for id, e := range r.entries {
		if e.LastSeen.Before(horizon) {
			delete(r.entries, id)
			evicted = append(evicted, id)
		}
	}
	r.mu.Unlock()

	for _, id := range evicted {
		r.logger.Info("evicting silent participant", "user", id)
		if r.onLeave != nil {
			r.onLeave(id)
		}
	}
}

// Snapshot returns the known participants sorted by id.
func (r *Roster) Snapshot() []Entry {
	r.mu.Lock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b Entry) int {
		return strings.Compare(a.Identity.ID, b.Identity.ID)
	})
	return out
}
