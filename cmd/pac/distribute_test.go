package main

import (
	"path/filepath"
	"testing"
)

func TestCheckpointRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")

	cp, err := loadCheckpoint(path, 100)
	if err != nil {
		t.Fatalf("fresh checkpoint failed: %v", err)
	}
	if len(cp.DoneBatches) != 0 {
		t.Fatalf("fresh checkpoint should be empty: %+v", cp)
	}

	cp.DoneBatches["m1"] = 3
	cp.DoneBatches["m2"] = 1
	if err := cp.save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := loadCheckpoint(path, 100)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if loaded.DoneBatches["m1"] != 3 || loaded.DoneBatches["m2"] != 1 {
		t.Errorf("unexpected checkpoint after reload: %+v", loaded)
	}
}

func TestCheckpointBatchSizeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")

	cp, err := loadCheckpoint(path, 100)
	if err != nil {
		t.Fatal(err)
	}
	if err := cp.save(path); err != nil {
		t.Fatal(err)
	}

	if _, err := loadCheckpoint(path, 50); err == nil {
		t.Fatal("expected error for mismatched batch size")
	}
}
