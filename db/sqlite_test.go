package db

import (
	"path/filepath"
	"testing"
	"time"

	"audioclass/ml"
)

func initTestDB(t *testing.T) {
	t.Helper()
	if err := InitDB(filepath.Join(t.TempDir(), "history.db")); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { Close() })
}

func record(id string, at time.Time) ml.Record {
	return ml.Record{
		ID:         id,
		CreatedAt:  at,
		Filename:   "clip.wav",
		Feature:    "mfcc",
		Label:      "dog_bark",
		Confidence: 0.83,
		FoldScores: []float64{0.8, 0.85, 0.82, 0.84, 0.83},
		DurationMS: 12,
	}
}

func TestSaveAndQueryHistory(t *testing.T) {
	initTestDB(t)

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if err := SaveRecord(record(string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}

	count, err := CountHistory()
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatalf("expected 3 records, got %d", count)
	}

	records, err := QueryHistory(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	// Newest first.
	if records[0].ID != "c" || records[2].ID != "a" {
		t.Fatalf("unexpected order: %s ... %s", records[0].ID, records[2].ID)
	}
	if len(records[0].FoldScores) != 5 {
		t.Fatalf("fold scores lost: %v", records[0].FoldScores)
	}
}

func TestQueryHistoryPagination(t *testing.T) {
	initTestDB(t)

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := SaveRecord(record(string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}

	page, err := QueryHistory(2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 records, got %d", len(page))
	}
	if page[0].ID != "c" || page[1].ID != "b" {
		t.Fatalf("unexpected page: %s, %s", page[0].ID, page[1].ID)
	}
}

func TestDuplicateIDRejected(t *testing.T) {
	initTestDB(t)

	now := time.Now().UTC()
	if err := SaveRecord(record("dup", now)); err != nil {
		t.Fatal(err)
	}
	if err := SaveRecord(record("dup", now)); err == nil {
		t.Fatal("expected unique constraint violation")
	}
}
