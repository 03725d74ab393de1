// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/syncsketch/syncsketch/board"
	"github.com/syncsketch/syncsketch/peerlink"
	"github.com/syncsketch/syncsketch/wire"
)

// Apply records a local edit: the operation enters the log, interrupts
// any redo sequence, goes out to the room, and is persisted.
func (s *Session) Apply(op board.Operation) error {
	return s.do(func() error {
		if !s.history.Apply(op) {
			return nil
		}
		if err := s.transport.Publish(wire.TopicBoardOp, op); err != nil {
			s.logger.Warn("broadcasting operation", "op", op.ID, "error", err)
		}
		return s.commitBoard()
	})
}

// NewOperation builds an edit operation stamped with this
// participant's identity and the current time.
func (s *Session) NewOperation(kind board.OpKind, element *board.Element, elementID string) board.Operation {
	return board.Operation{
		ID:           board.NewID(s.self.ID),
		OriginUserID: s.self.ID,
		Timestamp:    s.clk.Now().UnixMilli(),
		Kind:         kind,
		Element:      element,
		ElementID:    elementID,
	}
}

// Undo retracts this participant's most recent operation everywhere.
// A no-op when the log holds none of their operations.
func (s *Session) Undo() error {
	return s.do(func() error {
		op, ok := s.history.Undo()
		if !ok {
			return nil
		}
		retraction := wire.BoardUndo{UserID: s.self.ID, OpID: op.ID}
		if err := s.transport.Publish(wire.TopicBoardUndo, retraction); err != nil {
			s.logger.Warn("broadcasting retraction", "op", op.ID, "error", err)
		}
		return s.commitBoard()
	})
}

// Redo re-applies the most recently undone operation as a fresh
// broadcast.
func (s *Session) Redo() error {
	return s.do(func() error {
		op, ok := s.history.Redo()
		if !ok {
			return nil
		}
		if err := s.transport.Publish(wire.TopicBoardOp, op); err != nil {
			s.logger.Warn("broadcasting redo", "op", op.ID, "error", err)
		}
		return s.commitBoard()
	})
}

// commitBoard persists the log and reports the new projection. Runs on
// the event loop.
func (s *Session) commitBoard() error {
	if err := s.log.Save(s.st, s.key("ops")); err != nil {
		return fmt.Errorf("persisting operation log: %w", err)
	}
	if s.events.OnBoardChanged != nil {
		s.events.OnBoardChanged(s.log.Project())
	}
	return nil
}

// SendChat broadcasts and persists a chat line.
func (s *Session) SendChat(text string) error {
	return s.do(func() error {
		msg := wire.ChatMessage{
			ID:        uuid.NewString(),
			UserID:    s.self.ID,
			UserName:  s.self.DisplayName,
			Text:      text,
			Timestamp: s.clk.Now().UnixMilli(),
		}
		s.chat = append(s.chat, msg)
		if err := s.transport.Publish(wire.TopicNewMessage, msg); err != nil {
			s.logger.Warn("broadcasting chat", "error", err)
		}
		if err := s.st.Save(s.key("chat"), s.chat); err != nil {
			return fmt.Errorf("persisting chat: %w", err)
		}
		if s.events.OnChat != nil {
			s.events.OnChat(msg)
		}
		return nil
	})
}

// MoveCursor broadcasts the local cursor position, throttled so a busy
// pointer does not flood the room. Drops are silent; the next update
// supersedes anyway.
func (s *Session) MoveCursor(x, y float64) error {
	return s.do(func() error {
		now := s.clk.Now()
		if now.Sub(s.lastCursorAt) < s.cursorEvery {
			return nil
		}
		s.lastCursorAt = now
		update := wire.CursorMoved{UserID: s.self.ID, UserName: s.self.DisplayName, X: x, Y: y}
		if err := s.transport.Publish(wire.TopicCursorMoved, update); err != nil {
			s.logger.Warn("broadcasting cursor", "error", err)
		}
		return nil
	})
}

// ShareFile records a shared file and announces it to the room. A
// missing id or timestamp is filled in.
func (s *Session) ShareFile(record wire.FileRecord) error {
	return s.do(func() error {
		if record.ID == "" {
			record.ID = uuid.NewString()
		}
		if record.UploadedBy == "" {
			record.UploadedBy = s.self.ID
		}
		if record.Timestamp == 0 {
			record.Timestamp = s.clk.Now().UnixMilli()
		}
		s.files = append(s.files, record)
		if err := s.transport.Publish(wire.TopicNewFile, record); err != nil {
			s.logger.Warn("broadcasting file", "file", record.ID, "error", err)
		}
		if err := s.st.Save(s.key("files"), s.files); err != nil {
			return fmt.Errorf("persisting files: %w", err)
		}
		if s.events.OnFile != nil {
			s.events.OnFile(record)
		}
		return nil
	})
}

// EnableMic acquires the microphone and sends it on every link.
func (s *Session) EnableMic(ctx context.Context) error {
	return s.enableTrack(ctx, peerlink.Audio)
}

// DisableMic stops the outgoing audio feed and releases the device.
func (s *Session) DisableMic() error {
	return s.disableTrack(peerlink.Audio)
}

// EnableCamera acquires the camera and sends it on every link. While a
// screen share is active the camera stays suspended until it ends.
func (s *Session) EnableCamera(ctx context.Context) error {
	return s.enableTrack(ctx, peerlink.Camera)
}

// DisableCamera stops the outgoing camera feed and releases the
// device.
func (s *Session) DisableCamera() error {
	return s.disableTrack(peerlink.Camera)
}

// StartScreenShare acquires the screen and takes over the video slot,
// suspending an active camera.
func (s *Session) StartScreenShare(ctx context.Context) error {
	return s.enableTrack(ctx, peerlink.Screen)
}

// StopScreenShare ends the share; a suspended camera resumes.
func (s *Session) StopScreenShare() error {
	return s.disableTrack(peerlink.Screen)
}

func (s *Session) enableTrack(ctx context.Context, kind peerlink.TrackKind) error {
	// Device acquisition can block on the platform; keep it off the
	// event loop.
	track, release, err := s.media.AcquireTrack(ctx, kind)
	if err != nil {
		return fmt.Errorf("acquiring %s: %w", kind, err)
	}
	return s.do(func() error {
		if old, ok := s.releases[kind]; ok {
			old()
		}
		s.releases[kind] = release
		if err := s.peers.SetTrack(kind, track); err != nil {
			return fmt.Errorf("sending %s track: %w", kind, err)
		}
		return nil
	})
}

func (s *Session) disableTrack(kind peerlink.TrackKind) error {
	return s.do(func() error {
		return s.stopTrack(kind)
	})
}

// stopTrack runs on the event loop.
func (s *Session) stopTrack(kind peerlink.TrackKind) error {
	if release, ok := s.releases[kind]; ok {
		release()
		delete(s.releases, kind)
	}
	if err := s.peers.ClearTrack(kind); err != nil {
		return fmt.Errorf("clearing %s track: %w", kind, err)
	}
	return nil
}

// Mute orders a participant to stop sending audio. Enforcement happens
// at the target; the room trusts its host.
func (s *Session) Mute(target string) error {
	return s.transport.PublishTo(wire.TopicAdminAction, target, wire.AdminAction{Kind: wire.AdminMute})
}

// Kick orders a participant out of the room.
func (s *Session) Kick(target string) error {
	return s.transport.PublishTo(wire.TopicAdminAction, target, wire.AdminAction{Kind: wire.AdminKick})
}

// End ends the meeting for everyone. The relay rejects future joins of
// this room and notifies every member, this session included.
func (s *Session) End() error {
	return s.do(func() error {
		if err := s.transport.Publish(wire.TopicEndMeeting, wire.EndMeeting{RoomID: s.roomID}); err != nil {
			return fmt.Errorf("ending meeting: %w", err)
		}
		s.meeting.Ended = true
		s.meeting.LastModified = s.clk.Now().UnixMilli()
		if err := s.st.Save(s.key("meeting"), s.meeting); err != nil {
			return fmt.Errorf("persisting meeting metadata: %w", err)
		}
		return nil
	})
}
