// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/syncsketch/syncsketch/lib/codec"
)

// Blob encoding shared by the bolt and memory implementations: values
// serialize through deterministic CBOR and compress with zstd.
// Operation logs are highly repetitive (ids, field names), so they
// compress well at the default level.

var blobEncoder *zstd.Encoder
var blobDecoder *zstd.Decoder

func init() {
	var err error
	blobEncoder, err = zstd.NewWriter(nil)
	if err != nil {
		panic("store: zstd encoder initialization failed: " + err.Error())
	}
	blobDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("store: zstd decoder initialization failed: " + err.Error())
	}
}

func encodeBlob(value any) ([]byte, error) {
	raw, err := codec.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encoding value: %w", err)
	}
	return blobEncoder.EncodeAll(raw, nil), nil
}

func decodeBlob(data []byte, out any) error {
	raw, err := blobDecoder.DecodeAll(data, nil)
	if err != nil {
		return fmt.Errorf("decompressing value: %w", err)
	}
	if err := codec.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding value: %w", err)
	}
	return nil
}
