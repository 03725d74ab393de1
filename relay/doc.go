// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay implements the websocket fan-out server that carries
// all room traffic: signaling, drawing operations, chat, presence, and
// moderation.
//
// The relay is deliberately thin. It keeps a room-membership table and
// a retention-bounded set of ended-room ids, and nothing else; message
// payloads are never decoded. Two topics are control traffic handled
// in-place — join-room admits or rejects a connection, end_meeting
// marks the room ended and notifies it — and every other envelope is
// forwarded as-is: to its target member when addressed, otherwise to
// the rest of the sender's room.
//
// Clients connect with [github.com/syncsketch/syncsketch/channel.Client].
package relay
