// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"path/filepath"
	"testing"
)

type fixture struct {
	Name  string `cbor:"name"`
	Count int    `cbor:"count"`
}

// stores returns both implementations so every test runs against the
// durable path and the test fake.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	boltStore, err := OpenBolt(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	t.Cleanup(func() { boltStore.Close() })
	return map[string]Store{"bolt": boltStore, "memory": NewMemory()}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			in := fixture{Name: "ops_meeting-1", Count: 7}
			if err := st.Save("ops_meeting-1", in); err != nil {
				t.Fatalf("Save: %v", err)
			}

			var out fixture
			ok, err := st.Load("ops_meeting-1", &out)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if !ok {
				t.Fatal("Load reported absent after Save")
			}
			if out != in {
				t.Errorf("roundtrip = %+v, want %+v", out, in)
			}
		})
	}
}

func TestLoadAbsentKey(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var out fixture
			ok, err := st.Load("never-written", &out)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if ok {
				t.Error("Load reported present for an absent key")
			}
		})
	}
}

func TestLastWriteWins(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := st.Save("k", fixture{Count: 1}); err != nil {
				t.Fatalf("first Save: %v", err)
			}
			if err := st.Save("k", fixture{Count: 2}); err != nil {
				t.Fatalf("second Save: %v", err)
			}
			var out fixture
			if _, err := st.Load("k", &out); err != nil {
				t.Fatalf("Load: %v", err)
			}
			if out.Count != 2 {
				t.Errorf("Count = %d, want 2 (last write)", out.Count)
			}
		})
	}
}

func TestClear(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := st.Save("k", fixture{Count: 1}); err != nil {
				t.Fatalf("Save: %v", err)
			}
			if err := st.Clear("k"); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			var out fixture
			ok, err := st.Load("k", &out)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if ok {
				t.Error("key still present after Clear")
			}
			if err := st.Clear("k"); err != nil {
				t.Errorf("Clear of absent key: %v", err)
			}
		})
	}
}

func TestScopedKeysDoNotMix(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := st.Save("ops_room-a", fixture{Count: 1}); err != nil {
				t.Fatalf("Save: %v", err)
			}
			if err := st.Save("ops_room-b", fixture{Count: 2}); err != nil {
				t.Fatalf("Save: %v", err)
			}
			var a, b fixture
			if _, err := st.Load("ops_room-a", &a); err != nil {
				t.Fatalf("Load a: %v", err)
			}
			if _, err := st.Load("ops_room-b", &b); err != nil {
				t.Fatalf("Load b: %v", err)
			}
			if a.Count != 1 || b.Count != 2 {
				t.Errorf("scoped values = %d/%d, want 1/2", a.Count, b.Count)
			}
		})
	}
}

func TestBoltSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	st, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	if err := st.Save("k", fixture{Name: "durable", Count: 3}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer reopened.Close()

	var out fixture
	ok, err := reopened.Load("k", &out)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok || out.Name != "durable" || out.Count != 3 {
		t.Errorf("after reopen = %+v ok=%v, want {durable 3} true", out, ok)
	}
}
