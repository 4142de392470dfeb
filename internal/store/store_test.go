package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEnsureGroupStableID(t *testing.T) {
	s := openTestStore(t)

	id1, err := s.EnsureGroup("garage", "switch")
	if err != nil {
		t.Fatalf("EnsureGroup() error = %v", err)
	}
	if id1 == "" {
		t.Fatal("EnsureGroup() returned empty id")
	}

	id2, err := s.EnsureGroup("garage", "switch")
	if err != nil {
		t.Fatalf("EnsureGroup() second call error = %v", err)
	}
	if id2 != id1 {
		t.Errorf("id changed across calls: %q != %q", id2, id1)
	}

	// Same label under a different type is a different group
	id3, err := s.EnsureGroup("garage", "light")
	if err != nil {
		t.Fatalf("EnsureGroup() error = %v", err)
	}
	if id3 == id1 {
		t.Error("distinct (label, type) pairs share an id")
	}
}

func TestStateRoundtrip(t *testing.T) {
	s := openTestStore(t)

	type payload struct {
		IsOn        bool `json:"is_on"`
		ActiveCount int  `json:"active_count"`
	}

	var out payload
	found, err := s.LoadState("g-1", &out)
	if err != nil {
		t.Fatalf("LoadState() error = %v", err)
	}
	if found {
		t.Error("LoadState() found state before any save")
	}

	if err := s.SaveState("g-1", payload{IsOn: true, ActiveCount: 2}); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}
	if err := s.SaveState("g-1", payload{IsOn: false, ActiveCount: 0}); err != nil {
		t.Fatalf("SaveState() upsert error = %v", err)
	}

	found, err = s.LoadState("g-1", &out)
	if err != nil {
		t.Fatalf("LoadState() error = %v", err)
	}
	if !found {
		t.Fatal("LoadState() found nothing after save")
	}
	if out.IsOn || out.ActiveCount != 0 {
		t.Errorf("loaded %+v, want latest save", out)
	}

	if err := s.ClearStates(); err != nil {
		t.Fatalf("ClearStates() error = %v", err)
	}
	found, _ = s.LoadState("g-1", &out)
	if found {
		t.Error("state survived ClearStates()")
	}
}

func TestCommandLedger(t *testing.T) {
	s := openTestStore(t)

	if err := s.LogCommand("g-1", "turn_on", "scene.evening", true, nil); err != nil {
		t.Fatalf("LogCommand() error = %v", err)
	}
	if err := s.LogCommand("g-1", "turn_off", "switch.heater", false, errTest); err != nil {
		t.Fatalf("LogCommand() error = %v", err)
	}
	if err := s.LogCommand("g-2", "turn_on", "light.desk", true, nil); err != nil {
		t.Fatalf("LogCommand() error = %v", err)
	}

	entries, err := s.RecentCommands("g-1", 10)
	if err != nil {
		t.Fatalf("RecentCommands() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	// Newest first
	if entries[0].Action != "turn_off" || entries[0].OK {
		t.Errorf("newest entry = %+v, want failed turn_off", entries[0])
	}
	if entries[0].Error == "" {
		t.Error("failed entry lost its error text")
	}

	// A day of retention keeps everything written just now
	if _, err := s.PruneLedger(24 * time.Hour); err != nil {
		t.Fatalf("PruneLedger() error = %v", err)
	}
	entries, _ = s.RecentCommands("g-2", 10)
	if len(entries) != 1 {
		t.Errorf("got %d entries for g-2, want 1", len(entries))
	}
}

var errTest = errors.New("service call failed")
