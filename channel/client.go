// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/syncsketch/syncsketch/wire"
)

// joinTimeout bounds the wait for the relay's admission reply.
const joinTimeout = 10 * time.Second

// Compile-time interface check.
var _ Transport = (*Client)(nil)

// Client is the websocket Transport. It reconnects automatically with
// jittered exponential backoff; reconnection is transparent to
// callers, except that publishes issued while disconnected are dropped
// (at-most-once delivery). After a reconnect the client re-issues its
// join so room membership survives the drop.
type Client struct {
	url    string
	self   wire.Identity
	logger *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	room      string // non-empty once joined; re-sent after reconnect
	subs      *subscriptions

	closed    chan struct{}
	closeOnce sync.Once
}

// NewClient creates a Client for the relay at url (ws:// or wss://).
// The identity is attached as the sender of every envelope.
func NewClient(url string, self wire.Identity, logger *slog.Logger) *Client {
	return &Client{
		url:    url,
		self:   self,
		logger: logger,
		subs:   newSubscriptions(),
		closed: make(chan struct{}),
	}
}

// Connect dials the relay and starts the read loop. Subsequent drops
// reconnect automatically until Close.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dialing relay at %s: %w", c.url, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

// JoinRoom sends the join request and waits for the relay's admission
// reply: room-joined on success, meeting-ended-error when the room has
// ended.
func (c *Client) JoinRoom(ctx context.Context, roomID string, identity wire.Identity) error {
	admitted := make(chan struct{}, 1)
	rejected := make(chan struct{}, 1)
	cancelOK := c.Subscribe(wire.TopicRoomJoined, func(wire.Envelope) {
		select {
		case admitted <- struct{}{}:
		default:
		}
	})
	defer cancelOK()
	cancelErr := c.Subscribe(wire.TopicMeetingEndedError, func(wire.Envelope) {
		select {
		case rejected <- struct{}{}:
		default:
		}
	})
	defer cancelErr()

	err := c.send(wire.TopicJoinRoom, "", wire.Join{RoomID: roomID, Identity: identity})
	if err != nil {
		return err
	}

	timer := time.NewTimer(joinTimeout)
	defer timer.Stop()
	select {
	case <-admitted:
		c.mu.Lock()
		c.room = roomID
		c.mu.Unlock()
		return nil
	case <-rejected:
		return ErrRoomEnded
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return ErrClosed
	case <-timer.C:
		return fmt.Errorf("joining room %s: no admission reply within %s", roomID, joinTimeout)
	}
}

func (c *Client) Publish(topic wire.Topic, payload any) error {
	return c.send(topic, "", payload)
}

func (c *Client) PublishTo(topic wire.Topic, target string, payload any) error {
	return c.send(topic, target, payload)
}

// send encodes and writes one envelope. While disconnected the message
// is dropped with a debug log: delivery here is fire-and-forget, and
// recovery belongs to the presence protocol, not a send queue.
func (c *Client) send(topic wire.Topic, target string, payload any) error {
	env, err := wire.NewEnvelope(topic, c.self.ID, target, payload)
	if err != nil {
		return err
	}
	data, err := env.Encode()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.conn == nil {
		c.logger.Debug("dropping publish while disconnected", "topic", topic)
		return nil
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		c.logger.Debug("write failed, message dropped", "topic", topic, "error", err)
		return nil
	}
	return nil
}

func (c *Client) Subscribe(topic wire.Topic, handler Handler) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, id := c.subs.add(topic, handler)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.subs.remove(key, id)
	}
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// readLoop dispatches inbound envelopes until the connection drops,
// then hands off to the reconnect loop.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return
			default:
			}
			c.logger.Warn("relay connection lost, reconnecting", "error", err)
			c.mu.Lock()
			c.connected = false
			c.mu.Unlock()
			c.reconnectLoop()
			return
		}

		env, err := wire.DecodeEnvelope(data)
		if err != nil {
			c.logger.Warn("skipping undecodable frame", "error", err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env wire.Envelope) {
	c.mu.Lock()
	handlers := c.subs.snapshot(env.Topic)
	c.mu.Unlock()
	if len(handlers) == 0 {
		c.logger.Debug("no subscriber for topic", "topic", env.Topic)
		return
	}
	for _, handler := range handlers {
		handler(env)
	}
}

// reconnectLoop redials with exponential backoff until it succeeds or
// the client is closed, then re-issues the join for the current room.
func (c *Client) reconnectLoop() {
	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = 250 * time.Millisecond
	schedule.MaxInterval = 15 * time.Second
	schedule.MaxElapsedTime = 0 // retry until Close

	for {
		wait := schedule.NextBackOff()
		select {
		case <-c.closed:
			return
		case <-time.After(wait):
		}

		conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
		if err != nil {
			c.logger.Debug("reconnect attempt failed", "error", err)
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.connected = true
		room := c.room
		c.mu.Unlock()

		c.logger.Info("relay connection re-established")
		if room != "" {
			// Re-join so membership survives the drop. A rejection
			// (room ended meanwhile) arrives as a meeting-ended-error
			// event for subscribers.
			if err := c.send(wire.TopicJoinRoom, "", wire.Join{RoomID: room, Identity: c.self}); err != nil {
				c.logger.Warn("re-join after reconnect failed", "room", room, "error", err)
			}
		}

		go c.readLoop(conn)
		return
	}
}
