package ml

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"audioclass/audio"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

// writeFixtures lays out a models directory the loader understands:
// classes.json plus fold artifacts and sidecars per feature.
func writeFixtures(t *testing.T, dir string, features []string, folds int, dims map[string]int, classes []string) {
	t.Helper()

	payload, err := json.Marshal(classes)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "classes.json"), payload, 0o644); err != nil {
		t.Fatal(err)
	}

	rnd := rand.New(rand.NewSource(42))
	for _, feature := range features {
		modelsDir := filepath.Join(dir, feature, "models")
		if err := os.MkdirAll(modelsDir, 0o755); err != nil {
			t.Fatal(err)
		}
		for k := 1; k <= folds; k++ {
			n := NewRandomNetwork(feature, k, dims[feature], 8, len(classes), rnd)
			if err := n.Save(filepath.Join(modelsDir, fmt.Sprintf("fold_%d.json", k))); err != nil {
				t.Fatal(err)
			}
		}
		summary := fmt.Sprintf(`{"feature_type":%q,"folds":%d}`, feature, folds)
		if err := writeFile(filepath.Join(dir, feature, "summary.json"), summary); err != nil {
			t.Fatal(err)
		}
		metrics := "fold,accuracy,loss\n1,0.91,0.30\n2,0.88,0.35\n"
		if err := writeFile(filepath.Join(dir, feature, "fold_metrics.csv"), metrics); err != nil {
			t.Fatal(err)
		}
	}
}

// wavBytes builds a PCM16 mono WAV file in memory.
func wavBytes(samples []float64, sampleRate int) []byte {
	var data bytes.Buffer
	for _, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.Write(&data, binary.LittleEndian, int16(s*32767))
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+data.Len()))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(data.Len()))
	buf.Write(data.Bytes())
	return buf.Bytes()
}

func sineWav(freq float64, sampleRate, n int) []byte {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return wavBytes(samples, sampleRate)
}

func testDims(cfg audio.Config, features []string) map[string]int {
	dims := make(map[string]int)
	for _, feature := range features {
		d, err := audio.Dim(feature, cfg)
		if err != nil {
			panic(err)
		}
		dims[feature] = d
	}
	return dims
}
