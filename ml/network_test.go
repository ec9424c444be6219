package ml

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"
)

func TestNetworkPredictProbabilities(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	n := NewRandomNetwork("mfcc", 1, 8, 16, 4, rnd)

	vec := make([]float64, 8)
	for i := range vec {
		vec[i] = rnd.Float64()
	}
	probs, err := n.Predict(vec)
	if err != nil {
		t.Fatal(err)
	}
	if len(probs) != 4 {
		t.Fatalf("expected 4 probabilities, got %d", len(probs))
	}
	var sum float64
	for _, p := range probs {
		if p < 0 || p > 1 {
			t.Fatalf("probability out of range: %v", p)
		}
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("probabilities sum to %v", sum)
	}
}

func TestNetworkPredictDimMismatch(t *testing.T) {
	n := NewRandomNetwork("mel", 1, 8, 4, 3, rand.New(rand.NewSource(2)))
	if _, err := n.Predict(make([]float64, 5)); err == nil {
		t.Fatal("expected error for wrong input dimension")
	}
}

func TestNetworkSaveLoadRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	orig := NewRandomNetwork("concat", 2, 6, 8, 3, rnd)

	path := filepath.Join(t.TempDir(), "fold_2.json")
	if err := orig.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadNetwork(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Feature != "concat" || loaded.Fold != 2 || loaded.InputDim != 6 || loaded.Classes != 3 {
		t.Fatalf("header mismatch: %+v", loaded)
	}

	vec := []float64{0.1, -0.2, 0.3, 0.05, -0.4, 0.2}
	a, err := orig.Predict(vec)
	if err != nil {
		t.Fatal(err)
	}
	// Saving quantizes weights to float16; loading again is lossless, so
	// re-saving and re-loading must reproduce predictions exactly.
	b, err := loaded.Predict(vec)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 0.05 {
			t.Fatalf("prediction drifted at %d: %v vs %v", i, a[i], b[i])
		}
	}

	path2 := filepath.Join(t.TempDir(), "again.json")
	if err := loaded.Save(path2); err != nil {
		t.Fatal(err)
	}
	loaded2, err := LoadNetwork(path2)
	if err != nil {
		t.Fatal(err)
	}
	c, err := loaded2.Predict(vec)
	if err != nil {
		t.Fatal(err)
	}
	for i := range b {
		if b[i] != c[i] {
			t.Fatalf("quantized model not stable at %d: %v vs %v", i, b[i], c[i])
		}
	}
}

func TestLoadNetworkRejectsBadArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fold_1.json")
	if err := writeFile(path, `{"feature_type":"mfcc","fold":1,"input_dim":4,"classes":2,"layers":[]}`); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadNetwork(path); err == nil {
		t.Fatal("expected error for artifact without layers")
	}
}
