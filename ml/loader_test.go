package ml

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"audioclass/audio"
)

func TestLoadRegistry(t *testing.T) {
	dir := t.TempDir()
	cfg := audio.DefaultConfig()
	features := []string{audio.FeatureMFCC, audio.FeatureMel}
	dims := testDims(cfg, features)
	classes := []string{"dog_bark", "siren", "drilling"}

	writeFixtures(t, dir, features, 3, dims, classes)

	reg, err := LoadRegistry(dir, features, 3, dims)
	if err != nil {
		t.Fatal(err)
	}
	if got := reg.Classes(); len(got) != 3 || got[0] != "dog_bark" {
		t.Fatalf("unexpected classes: %v", got)
	}
	for _, feature := range features {
		bundle, err := reg.Bundle(feature)
		if err != nil {
			t.Fatalf("bundle %s: %v", feature, err)
		}
		if len(bundle.Models) != 3 {
			t.Fatalf("bundle %s: expected 3 folds, got %d", feature, len(bundle.Models))
		}
		if len(bundle.Metrics) != 2 {
			t.Fatalf("bundle %s: expected 2 metric rows, got %d", feature, len(bundle.Metrics))
		}
		if bundle.Summary == nil {
			t.Fatalf("bundle %s: summary not loaded", feature)
		}
	}
}

func TestLoadRegistryMissingFold(t *testing.T) {
	dir := t.TempDir()
	cfg := audio.DefaultConfig()
	features := []string{audio.FeatureMFCC, audio.FeatureMel}
	dims := testDims(cfg, features)

	writeFixtures(t, dir, features, 3, dims, []string{"a", "b"})
	if err := os.Remove(filepath.Join(dir, audio.FeatureMel, "models", "fold_2.json")); err != nil {
		t.Fatal(err)
	}

	reg, err := LoadRegistry(dir, features, 3, dims)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Bundle(audio.FeatureMel); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
	// The intact bundle still serves.
	if _, err := reg.Bundle(audio.FeatureMFCC); err != nil {
		t.Fatalf("mfcc bundle should be available: %v", err)
	}

	info := reg.Info()
	if len(info.Bundles) != 2 {
		t.Fatalf("expected 2 bundles in info, got %d", len(info.Bundles))
	}
	for _, bi := range info.Bundles {
		if bi.Feature == audio.FeatureMel && bi.Available {
			t.Fatal("mel bundle should report unavailable")
		}
	}
}

func TestLoadRegistryNoClasses(t *testing.T) {
	dir := t.TempDir()
	dims := map[string]int{audio.FeatureMFCC: 26}
	if _, err := LoadRegistry(dir, []string{audio.FeatureMFCC}, 3, dims); err == nil {
		t.Fatal("expected error when classes.json is missing")
	}
}

func TestLoadRegistryAllBundlesBroken(t *testing.T) {
	dir := t.TempDir()
	if err := writeFile(filepath.Join(dir, "classes.json"), `["a","b"]`); err != nil {
		t.Fatal(err)
	}
	dims := map[string]int{audio.FeatureMFCC: 26}
	if _, err := LoadRegistry(dir, []string{audio.FeatureMFCC}, 5, dims); err == nil {
		t.Fatal("expected error when no bundle loads")
	}
}

func TestRegistryUnknownFeature(t *testing.T) {
	dir := t.TempDir()
	cfg := audio.DefaultConfig()
	features := []string{audio.FeatureMFCC}
	dims := testDims(cfg, features)
	writeFixtures(t, dir, features, 2, dims, []string{"a", "b"})

	reg, err := LoadRegistry(dir, features, 2, dims)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Bundle("chroma"); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestLoadFoldMetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fold_metrics.csv")
	if err := writeFile(path, "fold,accuracy,loss\n1,0.91,0.30\n2,0.88,0.35\n3,0.90,0.32\n"); err != nil {
		t.Fatal(err)
	}
	metrics, err := LoadFoldMetrics(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(metrics) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(metrics))
	}
	if metrics[1].Fold != 2 || metrics[1].Accuracy != 0.88 {
		t.Fatalf("unexpected row: %+v", metrics[1])
	}
}

func TestLoadFoldMetricsBadRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fold_metrics.csv")
	if err := writeFile(path, "fold,accuracy,loss\nx,0.91,0.30\n"); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFoldMetrics(path); err == nil {
		t.Fatal("expected parse error")
	}
}
