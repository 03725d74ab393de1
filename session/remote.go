// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"github.com/syncsketch/syncsketch/board"
	"github.com/syncsketch/syncsketch/peerlink"
	"github.com/syncsketch/syncsketch/wire"
)

// All handlers in this file run on the session's event loop.

func (s *Session) handleBoardOp(env wire.Envelope) {
	op, err := wire.Payload[board.Operation](env)
	if err != nil {
		s.logger.Warn("malformed board operation", "from", env.Sender, "error", err)
		return
	}
	if !s.log.Append(op) {
		return
	}
	if err := s.commitBoard(); err != nil {
		s.logger.Error("committing remote operation", "op", op.ID, "error", err)
	}
}

func (s *Session) handleBoardUndo(env wire.Envelope) {
	retraction, err := wire.Payload[wire.BoardUndo](env)
	if err != nil {
		s.logger.Warn("malformed retraction", "from", env.Sender, "error", err)
		return
	}
	if _, ok := s.log.Remove(retraction.OpID); !ok {
		return
	}
	if err := s.commitBoard(); err != nil {
		s.logger.Error("committing retraction", "op", retraction.OpID, "error", err)
	}
}

func (s *Session) handleChat(env wire.Envelope) {
	msg, err := wire.Payload[wire.ChatMessage](env)
	if err != nil {
		s.logger.Warn("malformed chat message", "from", env.Sender, "error", err)
		return
	}
	s.chat = append(s.chat, msg)
	if err := s.st.Save(s.key("chat"), s.chat); err != nil {
		s.logger.Error("persisting chat", "error", err)
	}
	if s.events.OnChat != nil {
		s.events.OnChat(msg)
	}
}

func (s *Session) handleCursor(env wire.Envelope) {
	update, err := wire.Payload[wire.CursorMoved](env)
	if err != nil {
		return
	}
	if s.events.OnCursor != nil {
		s.events.OnCursor(update)
	}
}

func (s *Session) handleFile(env wire.Envelope) {
	record, err := wire.Payload[wire.FileRecord](env)
	if err != nil {
		s.logger.Warn("malformed file record", "from", env.Sender, "error", err)
		return
	}
	if s.mergeFile(record) {
		if err := s.st.Save(s.key("files"), s.files); err != nil {
			s.logger.Error("persisting files", "error", err)
		}
		if s.events.OnFile != nil {
			s.events.OnFile(record)
		}
	}
}

// mergeFile adds a record unless one with the same id is already
// known. Reports whether the table changed.
func (s *Session) mergeFile(record wire.FileRecord) bool {
	for _, f := range s.files {
		if f.ID == record.ID {
			return false
		}
	}
	s.files = append(s.files, record)
	return true
}

func (s *Session) handleSummary(env wire.Envelope) {
	summary, err := wire.Payload[wire.NewSummary](env)
	if err != nil {
		s.logger.Warn("malformed summary", "from", env.Sender, "error", err)
		return
	}
	s.summary = summary.Text
	if err := s.st.Save(s.key("summary"), s.summary); err != nil {
		s.logger.Error("persisting summary", "error", err)
	}
	if s.events.OnSummary != nil {
		s.events.OnSummary(summary.Text)
	}
}

// handleStateSync merges the host's view of shared session state.
// Meeting metadata is last-writer-wins by its modification stamp;
// files union by id; a summary overwrites only an empty local one.
func (s *Session) handleStateSync(env wire.Envelope) {
	state, err := wire.Payload[wire.MeetingState](env)
	if err != nil {
		s.logger.Warn("malformed state sync", "from", env.Sender, "error", err)
		return
	}

	if state.Meeting.LastModified > s.meeting.LastModified {
		s.meeting = state.Meeting
		if err := s.st.Save(s.key("meeting"), s.meeting); err != nil {
			s.logger.Error("persisting meeting metadata", "error", err)
		}
	}

	changed := false
	for _, f := range state.Files {
		changed = s.mergeFile(f) || changed
	}
	if changed {
		if err := s.st.Save(s.key("files"), s.files); err != nil {
			s.logger.Error("persisting files", "error", err)
		}
	}

	if s.summary == "" && state.Summary != "" {
		s.summary = state.Summary
		if err := s.st.Save(s.key("summary"), s.summary); err != nil {
			s.logger.Error("persisting summary", "error", err)
		}
		if s.events.OnSummary != nil {
			s.events.OnSummary(state.Summary)
		}
	}
}

func (s *Session) handlePing(env wire.Envelope) {
	ping, err := wire.Payload[wire.PresencePing](env)
	if err != nil {
		return
	}
	s.roster.HandlePing(ping)
}

func (s *Session) handlePong(env wire.Envelope) {
	pong, err := wire.Payload[wire.PresencePong](env)
	if err != nil {
		return
	}
	s.roster.HandlePong(pong)
}

func (s *Session) handleUserConnected(env wire.Envelope) {
	notice, err := wire.Payload[wire.UserConnected](env)
	if err != nil {
		s.logger.Warn("malformed admission notice", "error", err)
		return
	}
	s.roster.HandleUserConnected(notice.Identity)
	s.peers.HandleUserConnected(notice.Identity)
}

func (s *Session) handleUserDisconnected(env wire.Envelope) {
	notice, err := wire.Payload[wire.UserDisconnected](env)
	if err != nil {
		return
	}
	s.roster.HandleUserDisconnected(notice.UserID)
	s.peers.HandleUserDisconnected(notice.UserID)
}

func (s *Session) handleOffer(env wire.Envelope) {
	offer, err := wire.Payload[wire.Offer](env)
	if err != nil {
		s.logger.Warn("malformed offer", "from", env.Sender, "error", err)
		return
	}
	s.peers.HandleOffer(env.Sender, offer)
}

func (s *Session) handleAnswer(env wire.Envelope) {
	answer, err := wire.Payload[wire.Answer](env)
	if err != nil {
		s.logger.Warn("malformed answer", "from", env.Sender, "error", err)
		return
	}
	s.peers.HandleAnswer(env.Sender, answer)
}

func (s *Session) handleCandidate(env wire.Envelope) {
	cand, err := wire.Payload[wire.ICECandidate](env)
	if err != nil {
		return
	}
	s.peers.HandleCandidate(env.Sender, cand)
}

// handleAdmin enforces a host's moderation order locally. The protocol
// carries no authority proof; the room trusts its host.
func (s *Session) handleAdmin(env wire.Envelope) {
	action, err := wire.Payload[wire.AdminAction](env)
	if err != nil {
		s.logger.Warn("malformed admin action", "from", env.Sender, "error", err)
		return
	}
	switch action.Kind {
	case wire.AdminMute:
		s.logger.Info("muted by host", "by", env.Sender)
		if err := s.stopTrack(peerlink.Audio); err != nil {
			s.logger.Warn("enforcing mute", "error", err)
		}
		if s.events.OnMuted != nil {
			s.events.OnMuted()
		}
	case wire.AdminKick:
		s.logger.Info("kicked by host", "by", env.Sender)
		if s.events.OnKicked != nil {
			s.events.OnKicked()
		}
		s.leaveNow()
	default:
		s.logger.Warn("unknown admin action", "kind", action.Kind)
	}
}

// handleEndedRejection covers the relay refusing admission because
// the room has ended. After a mid-meeting reconnect this rejection is
// the only notice the client receives, so it closes the session the
// same way a live end broadcast does.
func (s *Session) handleEndedRejection(env wire.Envelope) {
	s.logger.Info("admission refused, room already ended", "room", s.roomID)
	s.handleMeetingEnded(env)
}

func (s *Session) handleMeetingEnded(env wire.Envelope) {
	s.logger.Info("meeting ended", "room", s.roomID)
	s.meeting.Ended = true
	if err := s.st.Save(s.key("meeting"), s.meeting); err != nil {
		s.logger.Error("persisting meeting metadata", "error", err)
	}
	if s.events.OnMeetingEnded != nil {
		s.events.OnMeetingEnded()
	}
	s.leaveNow()
}
