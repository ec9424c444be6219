package ml

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"audioclass/audio"
)

// Classifier runs the full prediction path: decode, extract, ensemble,
// record. It is safe for concurrent use; the registry is read-only and
// the store serializes its own writes.
type Classifier struct {
	registry       *Registry
	audioCfg       audio.Config
	store          RecordStore
	events         EventSink
	cache          *lru.Cache[string, cachedResult]
	defaultFeature string
}

type cachedResult struct {
	label      string
	confidence float64
	foldScores []float64
}

// NewClassifier wires the prediction service. store and events may be nil.
func NewClassifier(registry *Registry, audioCfg audio.Config, store RecordStore, events EventSink, cacheSize int, defaultFeature string) (*Classifier, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[string, cachedResult](cacheSize)
	if err != nil {
		return nil, err
	}
	if defaultFeature == "" {
		defaultFeature = audio.FeatureConcat
	}
	return &Classifier{
		registry:       registry,
		audioCfg:       audioCfg,
		store:          store,
		events:         events,
		cache:          cache,
		defaultFeature: defaultFeature,
	}, nil
}

// DefaultFeature returns the variant used when a request names none.
func (c *Classifier) DefaultFeature() string {
	return c.defaultFeature
}

// Registry exposes the loaded model set for the info endpoint.
func (c *Classifier) Registry() *Registry {
	return c.registry
}

// Classify predicts the class of one audio stream and appends a history
// record. Identical input bytes always yield the identical label and
// confidence; the content-hash cache only short-circuits the arithmetic.
func (c *Classifier) Classify(ctx context.Context, filename string, r io.ReadSeeker, feature string) (*Record, error) {
	start := time.Now()
	if feature == "" {
		feature = c.defaultFeature
	}
	bundle, err := c.registry.Bundle(feature)
	if err != nil {
		return nil, err
	}

	key, err := contentKey(r, feature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	result, hit := c.cache.Get(key)
	if !hit {
		result, err = c.run(ctx, bundle, filename, r, feature)
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, result)
	}

	rec := Record{
		ID:         uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
		Filename:   filename,
		Feature:    feature,
		Label:      result.label,
		Confidence: result.confidence,
		FoldScores: result.foldScores,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if c.store != nil {
		if err := c.store.Save(rec); err != nil {
			return nil, fmt.Errorf("save history record: %w", err)
		}
	}
	if c.events != nil {
		c.events.Publish(rec)
	}

	zap.L().Info("classified audio",
		zap.String("file", filename),
		zap.String("feature", feature),
		zap.String("label", rec.Label),
		zap.Float64("confidence", rec.Confidence),
		zap.Bool("cache_hit", hit))
	return &rec, nil
}

func (c *Classifier) run(ctx context.Context, bundle *Bundle, filename string, r io.ReadSeeker, feature string) (cachedResult, error) {
	samples, sampleRate, err := audio.Decode(filename, r)
	if err != nil {
		return cachedResult{}, err
	}
	vec, err := audio.Vector(feature, samples, sampleRate, c.audioCfg)
	if err != nil {
		return cachedResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	avg, perFold, err := ensembleProbs(ctx, bundle.Models, vec)
	if err != nil {
		return cachedResult{}, err
	}

	best := 0
	for i, p := range avg {
		if p > avg[best] {
			best = i
		}
	}
	classes := c.registry.Classes()
	if best >= len(classes) {
		return cachedResult{}, fmt.Errorf("%w: class index %d out of range", ErrModelUnavailable, best)
	}

	foldScores := make([]float64, len(perFold))
	for i, probs := range perFold {
		foldScores[i] = probs[best]
	}
	return cachedResult{
		label:      classes[best],
		confidence: avg[best],
		foldScores: foldScores,
	}, nil
}

// ensembleProbs averages per-class probabilities over every fold model.
func ensembleProbs(ctx context.Context, models []*Network, vec []float64) (avg []float64, perFold [][]float64, err error) {
	if len(models) == 0 {
		return nil, nil, ErrModelUnavailable
	}
	for _, model := range models {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		probs, err := model.Predict(vec)
		if err != nil {
			return nil, nil, fmt.Errorf("fold %d: %w", model.Fold, err)
		}
		if avg == nil {
			avg = make([]float64, len(probs))
		}
		for i, p := range probs {
			avg[i] += p
		}
		perFold = append(perFold, probs)
	}
	for i := range avg {
		avg[i] /= float64(len(models))
	}
	return avg, perFold, nil
}

// contentKey hashes the stream and rewinds it.
func contentKey(r io.ReadSeeker, feature string) (string, error) {
	hasher := sha256.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return "", err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)) + ":" + feature, nil
}
