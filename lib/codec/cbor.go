// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode encodes with Core Deterministic Encoding (RFC 8949 §4.2):
// sorted map keys, smallest integer widths, no indefinite-length
// items. The same logical value always produces identical bytes, which
// keeps persisted blobs and wire frames stable across replicas.
var encMode cbor.EncMode

// decMode accepts standard CBOR. Unknown fields are ignored so old
// clients can decode frames from newer ones.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Message payloads decoded into any-typed targets must come
		// out as map[string]any, not CBOR's default
		// map[interface{}]interface{}; wire keys are always strings.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v deterministically.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// RawMessage is a raw encoded CBOR value, used to defer payload
// decoding until the topic is known. Alias so consumers import only
// this package, not fxamacker/cbor.
type RawMessage = cbor.RawMessage
