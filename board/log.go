// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

package board

import (
	"fmt"
	"sort"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/syncsketch/syncsketch/store"
)

// OpKind enumerates the edit intents an operation can carry.
type OpKind string

const (
	OpAdd    OpKind = "add"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
	OpReset  OpKind = "reset"
)

// Operation is one atomic, timestamped, replicated edit intent.
// Immutable once created; identity is ID.
type Operation struct {
	ID           string   `cbor:"id" json:"id"`
	OriginUserID string   `cbor:"origin_user_id" json:"origin_user_id"`
	Timestamp    int64    `cbor:"timestamp" json:"timestamp"` // milliseconds since epoch
	Kind         OpKind   `cbor:"kind" json:"kind"`
	Element      *Element `cbor:"element,omitempty" json:"element,omitempty"`
	ElementID    string   `cbor:"element_id,omitempty" json:"element_id,omitempty"`
}

// Document is the materialized current set of visible elements,
// derived by folding the operation log. Never stored; always a pure
// function of the log's contents.
type Document map[string]Element

// Log is an append-only, replicated sequence of drawing operations.
// Append is idempotent by operation id and order-insensitive once the
// fold sorts by timestamp, so replicas that received the same set of
// operations in any order project identical Documents.
//
// The log is the one resource mutated by more than one logical actor
// (local edits and the channel dispatch goroutine), so it carries its
// own lock.
type Log struct {
	mu   sync.Mutex
	ops  []Operation
	have map[string]struct{}

	// Projection memo, keyed on log length plus a blake3 digest of
	// the op ids in log order. Invalidated structurally: any append or
	// retraction changes the digest.
	memoLen int
	memoSum [32]byte
	memoDoc Document
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{have: make(map[string]struct{})}
}

// Append stores op durably in the log. Re-appending an id already
// present is a no-op; Append reports whether the log changed. Local
// and remote operations go through this same path, so duplicate relay
// delivery cannot corrupt state.
func (l *Log) Append(op Operation) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.have[op.ID]; ok {
		return false
	}
	l.ops = append(l.ops, op)
	l.have[op.ID] = struct{}{}
	return true
}

// Remove retracts the operation with the given id from the log,
// returning it. Used by undo: unlike a DELETE operation, this rewrites
// history on every replica.
func (l *Log) Remove(opID string) (Operation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.have[opID]; !ok {
		return Operation{}, false
	}
	for i, op := range l.ops {
		if op.ID == opID {
			l.ops = append(l.ops[:i], l.ops[i+1:]...)
			delete(l.have, opID)
			return op, true
		}
	}
	return Operation{}, false
}

// Ops returns a copy of the log in insertion order.
func (l *Log) Ops() []Operation {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Operation, len(l.ops))
	copy(out, l.ops)
	return out
}

// Len returns the number of operations in the log.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ops)
}

// LastBy returns the most recent operation whose origin matches
// userID, scanning from the newest end of the log.
func (l *Log) LastBy(userID string) (Operation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.ops) - 1; i >= 0; i-- {
		if l.ops[i].OriginUserID == userID {
			return l.ops[i], true
		}
	}
	return Operation{}, false
}

// Project folds the log into the current Document: operations sorted
// by timestamp (stable, so arrival order breaks ties), ADD/UPDATE
// upsert by element id, DELETE removes, RESET clears. Deterministic
// and safe to call after every append; the fold is memoized on the
// log's structure.
func (l *Log) Project() Document {
	l.mu.Lock()
	defer l.mu.Unlock()

	sum := l.digest()
	if l.memoDoc != nil && l.memoLen == len(l.ops) && l.memoSum == sum {
		return l.memoDoc.clone()
	}

	sorted := make([]Operation, len(l.ops))
	copy(sorted, l.ops)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	doc := make(Document)
	for _, op := range sorted {
		switch op.Kind {
		case OpAdd, OpUpdate:
			if op.Element != nil {
				doc[op.Element.ID] = *op.Element
			}
		case OpDelete:
			delete(doc, op.ElementID)
		case OpReset:
			clear(doc)
		}
	}

	l.memoLen = len(l.ops)
	l.memoSum = sum
	l.memoDoc = doc
	return doc.clone()
}

// digest hashes the op ids in log order. Operations are immutable, so
// the id sequence fully identifies the log's contents.
func (l *Log) digest() [32]byte {
	h := blake3.New()
	for _, op := range l.ops {
		h.Write([]byte(op.ID))
		h.Write([]byte{0})
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

func (d Document) clone() Document {
	out := make(Document, len(d))
	for id, el := range d {
		out[id] = el
	}
	return out
}

// Save persists the log under key. Keys are scoped to a session
// identifier by the caller so logs from different sessions never mix.
func (l *Log) Save(st store.Store, key string) error {
	if err := st.Save(key, l.Ops()); err != nil {
		return fmt.Errorf("persisting operation log: %w", err)
	}
	return nil
}

// LoadLog restores a log persisted under key. A missing key yields an
// empty log.
func LoadLog(st store.Store, key string) (*Log, error) {
	var ops []Operation
	ok, err := st.Load(key, &ops)
	if err != nil {
		return nil, fmt.Errorf("loading operation log: %w", err)
	}
	log := NewLog()
	if !ok {
		return log, nil
	}
	for _, op := range ops {
		log.Append(op)
	}
	return log, nil
}
