package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Bundle groups the fold models for one feature variant. A bundle with
// any failed fold is kept for reporting but refuses to serve.
type Bundle struct {
	Feature string
	Models  []*Network
	Summary map[string]interface{}
	Metrics []FoldMetric
	loadErr error
}

// Available reports whether every fold loaded.
func (b *Bundle) Available() bool {
	return b.loadErr == nil
}

// LoadError returns the first fold load failure, if any.
func (b *Bundle) LoadError() error {
	return b.loadErr
}

// Registry holds every loaded bundle plus the shared class list. It is
// immutable after LoadRegistry; only the staleness flag may change.
type Registry struct {
	dir      string
	classes  []string
	bundles  map[string]*Bundle
	loadedAt time.Time
	stale    atomic.Bool
}

// LoadRegistry reads classes.json and, for each requested feature,
// models/<feature>/models/fold_<k>.json plus its summary and metrics
// sidecars. dims maps feature name to the expected input dimension.
func LoadRegistry(dir string, features []string, folds int, dims map[string]int) (*Registry, error) {
	classes, err := loadClasses(filepath.Join(dir, "classes.json"))
	if err != nil {
		return nil, fmt.Errorf("load classes: %w", err)
	}

	reg := &Registry{
		dir:      dir,
		classes:  classes,
		bundles:  make(map[string]*Bundle),
		loadedAt: time.Now().UTC(),
	}

	available := 0
	for _, feature := range features {
		bundle := loadBundle(dir, feature, folds, len(classes), dims[feature])
		reg.bundles[feature] = bundle
		if bundle.Available() {
			available++
			zap.L().Info("loaded model bundle",
				zap.String("feature", feature),
				zap.Int("folds", len(bundle.Models)))
		} else {
			zap.L().Warn("model bundle unavailable",
				zap.String("feature", feature),
				zap.Error(bundle.LoadError()))
		}
	}
	if available == 0 {
		return nil, fmt.Errorf("no usable model bundles under %s", dir)
	}
	return reg, nil
}

func loadBundle(dir, feature string, folds, numClasses, inputDim int) *Bundle {
	bundle := &Bundle{Feature: feature}
	featureDir := filepath.Join(dir, feature)

	for k := 1; k <= folds; k++ {
		path := filepath.Join(featureDir, "models", fmt.Sprintf("fold_%d.json", k))
		network, err := LoadNetwork(path)
		if err == nil {
			err = validateNetwork(network, feature, k, numClasses, inputDim)
		}
		if err != nil {
			if bundle.loadErr == nil {
				bundle.loadErr = err
			}
			continue
		}
		bundle.Models = append(bundle.Models, network)
	}
	if bundle.loadErr == nil && len(bundle.Models) != folds {
		bundle.loadErr = fmt.Errorf("feature %s: expected %d folds, loaded %d", feature, folds, len(bundle.Models))
	}

	// Sidecars are informational; their absence never disables a bundle.
	if summary, err := loadSummary(filepath.Join(featureDir, "summary.json")); err == nil {
		bundle.Summary = summary
	}
	if metrics, err := LoadFoldMetrics(filepath.Join(featureDir, "fold_metrics.csv")); err == nil {
		bundle.Metrics = metrics
	}
	return bundle
}

func validateNetwork(n *Network, feature string, fold, numClasses, inputDim int) error {
	if n.Feature != feature {
		return fmt.Errorf("fold %d declares feature %q, expected %q", fold, n.Feature, feature)
	}
	if n.Classes != numClasses {
		return fmt.Errorf("fold %d has %d classes, classes.json has %d", fold, n.Classes, numClasses)
	}
	if inputDim > 0 && n.InputDim != inputDim {
		return fmt.Errorf("fold %d expects %d inputs, extractor produces %d", fold, n.InputDim, inputDim)
	}
	return nil
}

func loadClasses(path string) ([]string, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var classes []string
	if err := json.Unmarshal(payload, &classes); err != nil {
		return nil, err
	}
	if len(classes) == 0 {
		return nil, fmt.Errorf("%s lists no classes", path)
	}
	return classes, nil
}

func loadSummary(path string) (map[string]interface{}, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var summary map[string]interface{}
	if err := json.Unmarshal(payload, &summary); err != nil {
		return nil, err
	}
	return summary, nil
}

// Classes returns the shared class list.
func (r *Registry) Classes() []string {
	return r.classes
}

// Features lists configured feature variants, sorted.
func (r *Registry) Features() []string {
	out := make([]string, 0, len(r.bundles))
	for feature := range r.bundles {
		out = append(out, feature)
	}
	sort.Strings(out)
	return out
}

// Bundle returns a servable bundle or ErrModelUnavailable.
func (r *Registry) Bundle(feature string) (*Bundle, error) {
	bundle, ok := r.bundles[feature]
	if !ok {
		return nil, fmt.Errorf("%w: unknown feature %q", ErrModelUnavailable, feature)
	}
	if !bundle.Available() {
		return nil, fmt.Errorf("%w: feature %q: %v", ErrModelUnavailable, feature, bundle.loadErr)
	}
	return bundle, nil
}

// MarkStale records that artifacts changed on disk after load.
func (r *Registry) MarkStale() {
	r.stale.Store(true)
}

// Stale reports whether on-disk artifacts diverged from what is loaded.
func (r *Registry) Stale() bool {
	return r.stale.Load()
}

// Dir returns the artifact root the registry was loaded from.
func (r *Registry) Dir() string {
	return r.dir
}

// Info summarizes the registry for the info endpoint.
type RegistryInfo struct {
	LoadedAt time.Time    `json:"loaded_at"`
	Stale    bool         `json:"artifacts_stale"`
	Classes  []string     `json:"classes"`
	Bundles  []BundleInfo `json:"bundles"`
}

// BundleInfo is the per-feature slice of RegistryInfo.
type BundleInfo struct {
	Feature   string                 `json:"feature"`
	Folds     int                    `json:"folds"`
	Available bool                   `json:"available"`
	Error     string                 `json:"error,omitempty"`
	Summary   map[string]interface{} `json:"summary,omitempty"`
	Metrics   []FoldMetric           `json:"fold_metrics,omitempty"`
}

// Info builds the static metadata snapshot served by /api/info.
func (r *Registry) Info() RegistryInfo {
	info := RegistryInfo{
		LoadedAt: r.loadedAt,
		Stale:    r.Stale(),
		Classes:  r.classes,
	}
	for _, feature := range r.Features() {
		bundle := r.bundles[feature]
		bi := BundleInfo{
			Feature:   feature,
			Folds:     len(bundle.Models),
			Available: bundle.Available(),
			Summary:   bundle.Summary,
			Metrics:   bundle.Metrics,
		}
		if bundle.loadErr != nil {
			bi.Error = bundle.loadErr.Error()
		}
		info.Bundles = append(info.Bundles, bi)
	}
	return info
}
