// Package ml loads serialized fold models and runs ensemble inference.
package ml

import (
	"errors"
	"time"
)

var (
	// ErrInvalidInput marks uploads rejected before inference.
	ErrInvalidInput = errors.New("ml: invalid input")
	// ErrModelUnavailable marks a feature variant with no usable ensemble.
	ErrModelUnavailable = errors.New("ml: model unavailable")
)

// Model scores a feature vector into per-class probabilities.
type Model interface {
	Predict(features []float64) ([]float64, error)
}

// Record is one prediction history entry. Records are immutable once
// written and ids are unique.
type Record struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Filename   string    `json:"filename"`
	Feature    string    `json:"feature"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	FoldScores []float64 `json:"fold_scores"`
	DurationMS int64     `json:"duration_ms"`
}

// RecordStore appends prediction records to the history log.
type RecordStore interface {
	Save(Record) error
}

// EventSink receives each new record, e.g. for websocket broadcast.
type EventSink interface {
	Publish(Record)
}
