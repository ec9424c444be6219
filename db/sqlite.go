// Package db persists the append-only prediction history in SQLite.
package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"audioclass/ml"
)

var database *sql.DB

// InitDB opens (or creates) the history database and applies the schema.
func InitDB(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	var err error
	database, err = sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return err
	}

	query := `
    CREATE TABLE IF NOT EXISTS predictions (
        id TEXT PRIMARY KEY,
        created_at DATETIME NOT NULL,
        filename TEXT NOT NULL,
        feature TEXT NOT NULL,
        label TEXT NOT NULL,
        confidence REAL NOT NULL,
        fold_scores TEXT NOT NULL,
        duration_ms INTEGER NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_created_at
        ON predictions(created_at DESC);
    `

	_, err = database.Exec(query)
	return err
}

// Close releases the database handle.
func Close() error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}

// SaveRecord appends one prediction record. Records are never updated.
func SaveRecord(rec ml.Record) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	scores, err := json.Marshal(rec.FoldScores)
	if err != nil {
		return err
	}
	_, err = database.Exec(`
        INSERT INTO predictions (id, created_at, filename, feature, label, confidence, fold_scores, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CreatedAt, rec.Filename, rec.Feature, rec.Label, rec.Confidence, string(scores), rec.DurationMS)
	return err
}

// QueryHistory returns records newest-first.
func QueryHistory(limit, offset int) ([]ml.Record, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	rows, err := database.Query(`
        SELECT id, created_at, filename, feature, label, confidence, fold_scores, duration_ms
        FROM predictions
        ORDER BY created_at DESC, id
        LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]ml.Record, 0)
	for rows.Next() {
		var rec ml.Record
		var scores string
		if err := rows.Scan(&rec.ID, &rec.CreatedAt, &rec.Filename, &rec.Feature,
			&rec.Label, &rec.Confidence, &scores, &rec.DurationMS); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(scores), &rec.FoldScores); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountHistory returns the total number of stored records.
func CountHistory() (int, error) {
	if database == nil {
		return 0, errors.New("database not initialized")
	}
	var count int
	err := database.QueryRow(`SELECT COUNT(*) FROM predictions`).Scan(&count)
	return count, err
}

// Store adapts the package-level functions to ml.RecordStore.
type Store struct{}

// Save implements ml.RecordStore.
func (Store) Save(rec ml.Record) error {
	return SaveRecord(rec)
}
