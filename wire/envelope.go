// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"fmt"

	"github.com/syncsketch/syncsketch/lib/codec"
)

// Envelope frames every message on the channel. The relay reads Topic,
// Sender, and Target for routing; Payload stays opaque until a
// subscriber decodes it against the topic's variant type.
type Envelope struct {
	Topic  Topic  `cbor:"topic"`
	Sender string `cbor:"sender,omitempty"`
	// Target, when set, addresses the message to one participant;
	// otherwise the relay fans it out to the rest of the room.
	Target  string           `cbor:"target,omitempty"`
	Payload codec.RawMessage `cbor:"payload,omitempty"`
}

// NewEnvelope encodes payload into a frame. A nil payload produces an
// empty-payload envelope (used by notice topics with no body).
func NewEnvelope(topic Topic, sender, target string, payload any) (Envelope, error) {
	env := Envelope{Topic: topic, Sender: sender, Target: target}
	if payload == nil {
		return env, nil
	}
	data, err := codec.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %s payload: %w", topic, err)
	}
	env.Payload = data
	return env, nil
}

// Encode serializes the envelope for the wire.
func (e Envelope) Encode() ([]byte, error) {
	data, err := codec.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope parses a wire frame. The payload is left raw.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decoding envelope: %w", err)
	}
	if env.Topic == "" {
		return Envelope{}, fmt.Errorf("decoding envelope: missing topic")
	}
	return env, nil
}

// Payload decodes an envelope's payload into the topic's variant type.
// Validation happens here, at the channel boundary, rather than inside
// handlers.
func Payload[T any](env Envelope) (T, error) {
	var v T
	if len(env.Payload) == 0 {
		return v, fmt.Errorf("decoding %s payload: empty payload", env.Topic)
	}
	if err := codec.Unmarshal(env.Payload, &v); err != nil {
		return v, fmt.Errorf("decoding %s payload: %w", env.Topic, err)
	}
	return v, nil
}
