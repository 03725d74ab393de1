// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

package board

import "github.com/google/uuid"

// ElementType enumerates the drawable element kinds.
type ElementType string

const (
	ElementPath   ElementType = "path"
	ElementRect   ElementType = "rect"
	ElementCircle ElementType = "circle"
	ElementText   ElementType = "text"
	ElementSticky ElementType = "sticky"
)

// EraserColor marks an element as a destructive mask rather than a
// visible stroke. Rendering draws it with inverse compositing; the log
// carries it as ordinary element data.
const EraserColor = "eraser"

// Point is one vertex of a path element.
type Point struct {
	X float64 `cbor:"x" json:"x"`
	Y float64 `cbor:"y" json:"y"`
}

// Element is one visible item on the shared surface. Elements are
// immutable in the log: an edit is a fresh UPDATE operation carrying
// the whole new value.
type Element struct {
	ID           string      `cbor:"id" json:"id"`
	Type         ElementType `cbor:"type" json:"type"`
	X            float64     `cbor:"x" json:"x"`
	Y            float64     `cbor:"y" json:"y"`
	Width        float64     `cbor:"width,omitempty" json:"width,omitempty"`
	Height       float64     `cbor:"height,omitempty" json:"height,omitempty"`
	Points       []Point     `cbor:"points,omitempty" json:"points,omitempty"`
	Content      string      `cbor:"content,omitempty" json:"content,omitempty"`
	Color        string      `cbor:"color" json:"color"`
	StrokeWidth  float64     `cbor:"stroke_width,omitempty" json:"stroke_width,omitempty"`
	OriginUserID string      `cbor:"origin_user_id" json:"origin_user_id"`
	LastModified int64       `cbor:"last_modified" json:"last_modified"` // milliseconds since epoch
}

// NewID generates a cluster-unique identifier namespaced by its
// origin. The uuid suffix makes collision a non-issue; the origin
// prefix keeps ids attributable when reading a log.
func NewID(originUserID string) string {
	return originUserID + "-" + uuid.NewString()
}
