// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

package peerlink

import (
	"context"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// ErrDeviceDenied reports that the platform refused access to a
// capture device. Callers surface it to the user; nothing else in the
// session is affected.
var ErrDeviceDenied = errors.New("peerlink: media device access denied")

// TrackKind identifies one of the three local media feeds. Camera and
// Screen share the single outgoing video slot; Screen takes precedence
// while both are enabled.
type TrackKind int

const (
	Audio TrackKind = iota
	Camera
	Screen
)

func (k TrackKind) String() string {
	switch k {
	case Audio:
		return "audio"
	case Camera:
		return "camera"
	case Screen:
		return "screen"
	default:
		return fmt.Sprintf("TrackKind(%d)", int(k))
	}
}

// slot maps a kind onto the sender it occupies on each link.
func (k TrackKind) slot() trackSlot {
	if k == Audio {
		return slotAudio
	}
	return slotVideo
}

type trackSlot int

const (
	slotAudio trackSlot = iota
	slotVideo
)

func (s trackSlot) String() string {
	if s == slotAudio {
		return "audio"
	}
	return "video"
}

// MediaSource abstracts capture-device acquisition. The release
// function stops the underlying device once the track is no longer
// sent anywhere.
type MediaSource interface {
	AcquireTrack(ctx context.Context, kind TrackKind) (track webrtc.TrackLocal, release func(), err error)
}

// StaticSource is a MediaSource backed by silent sample tracks. Used
// in tests and headless runs.
type StaticSource struct{}

var _ MediaSource = StaticSource{}

func (StaticSource) AcquireTrack(_ context.Context, kind TrackKind) (webrtc.TrackLocal, func(), error) {
	capability := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}
	if kind == Audio {
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}
	}
	track, err := webrtc.NewTrackLocalStaticSample(capability, kind.String(), "static-"+kind.String())
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s sample track: %w", kind, err)
	}
	return track, func() {}, nil
}

// DeniedSource is a MediaSource whose every acquisition fails with
// [ErrDeviceDenied].
type DeniedSource struct{}

var _ MediaSource = DeniedSource{}

func (DeniedSource) AcquireTrack(context.Context, TrackKind) (webrtc.TrackLocal, func(), error) {
	return nil, nil, ErrDeviceDenied
}
