// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/syncsketch/syncsketch/board"
	"github.com/syncsketch/syncsketch/wire"
)

// ErrNoSummarizer reports an AI request on a session configured
// without a summarizer backend.
var ErrNoSummarizer = errors.New("session: no summarizer configured")

// Summarizer is the AI collaborator backend. Both calls may be slow;
// the session invokes them off the event loop and a failure produces
// no state change.
type Summarizer interface {
	// Summarize condenses the chat transcript into a short summary.
	Summarize(ctx context.Context, chat []wire.ChatMessage) (string, error)

	// Beautify proposes cleaned-up replacements for the sketched
	// elements in a board snapshot image.
	Beautify(ctx context.Context, imagePNG []byte) ([]board.Element, error)
}

// Summarize asks the AI collaborator for a meeting summary of the chat
// so far. The result is persisted, broadcast, and reported through
// Events.OnSummary when it arrives; a backend failure is logged and
// changes nothing.
func (s *Session) Summarize(ctx context.Context) error {
	if s.summarizer == nil {
		return ErrNoSummarizer
	}
	var lines []wire.ChatMessage
	if err := s.do(func() error {
		lines = slices.Clone(s.chat)
		return nil
	}); err != nil {
		return err
	}

	go func() {
		text, err := s.summarizer.Summarize(ctx, lines)
		if err != nil {
			s.logger.Warn("summarizing chat", "error", err)
			return
		}
		err = s.do(func() error {
			s.summary = text
			if err := s.transport.Publish(wire.TopicNewSummary, wire.NewSummary{Text: text}); err != nil {
				s.logger.Warn("broadcasting summary", "error", err)
			}
			if err := s.st.Save(s.key("summary"), s.summary); err != nil {
				return fmt.Errorf("persisting summary: %w", err)
			}
			if s.events.OnSummary != nil {
				s.events.OnSummary(text)
			}
			return nil
		})
		if err != nil {
			s.logger.Error("recording summary", "error", err)
		}
	}()
	return nil
}

// Beautify sends a board snapshot to the AI collaborator and applies
// its suggestions as ordinary edits: a suggestion for a known element
// becomes an update, anything else an add. Suggestions replicate and
// undo exactly like hand-drawn strokes.
func (s *Session) Beautify(ctx context.Context, imagePNG []byte) error {
	if s.summarizer == nil {
		return ErrNoSummarizer
	}

	go func() {
		elements, err := s.summarizer.Beautify(ctx, imagePNG)
		if err != nil {
			s.logger.Warn("beautifying board", "error", err)
			return
		}
		err = s.do(func() error {
			current := s.log.Project()
			for _, element := range elements {
				el := element
				if el.ID == "" {
					el.ID = board.NewID(s.self.ID)
				}
				kind := board.OpAdd
				if _, exists := current[el.ID]; exists {
					kind = board.OpUpdate
				}
				op := s.NewOperation(kind, &el, "")
				if !s.history.Apply(op) {
					continue
				}
				if err := s.transport.Publish(wire.TopicBoardOp, op); err != nil {
					s.logger.Warn("broadcasting suggestion", "op", op.ID, "error", err)
				}
			}
			return s.commitBoard()
		})
		if err != nil {
			s.logger.Error("applying suggestions", "error", err)
		}
	}()
	return nil
}
