// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

package board

// History provides the per-user undo/redo discipline on top of a Log.
// Undo retracts the user's most recent operation from the log (the
// caller broadcasts the retraction so every replica rewrites history
// the same way); redo re-appends the retracted operation as a fresh
// append (fresh broadcast). Any new local edit interrupts the sequence
// and clears the redo stack, giving a single linear history per user.
//
// History holds only the redo stack as auxiliary state; everything
// else derives from the log.
type History struct {
	log    *Log
	userID string
	redo   []Operation
}

// NewHistory creates a History for the local user's operations on log.
func NewHistory(log *Log, userID string) *History {
	return &History{log: log, userID: userID}
}

// Apply records a new local edit: the operation is appended to the log
// and the redo stack is cleared. Reports whether the log changed.
func (h *History) Apply(op Operation) bool {
	if !h.log.Append(op) {
		return false
	}
	h.redo = h.redo[:0]
	return true
}

// Undo retracts the local user's most recent operation from the log
// and pushes it onto the redo stack. Returns the retracted operation
// for broadcast. A no-op when the log holds nothing from this user.
func (h *History) Undo() (Operation, bool) {
	last, ok := h.log.LastBy(h.userID)
	if !ok {
		return Operation{}, false
	}
	op, ok := h.log.Remove(last.ID)
	if !ok {
		return Operation{}, false
	}
	h.redo = append(h.redo, op)
	return op, true
}

// Redo re-appends the most recently undone operation. Returns the
// operation for a fresh broadcast. Does not clear the remaining redo
// stack: only a new edit interrupts the sequence.
func (h *History) Redo() (Operation, bool) {
	if len(h.redo) == 0 {
		return Operation{}, false
	}
	op := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.log.Append(op)
	return op, true
}

// CanRedo reports whether a redo is available.
func (h *History) CanRedo() bool {
	return len(h.redo) > 0
}
