// Command genmodels writes a runnable fixture model tree: random-weight
// fold artifacts plus the classes.json, summary.json and fold_metrics.csv
// sidecars the server expects. The weights carry no trained knowledge;
// the tool exists so the server runs end to end without real artifacts.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"audioclass/audio"
	"audioclass/ml"
)

func main() {
	dir := flag.String("dir", "models", "output directory")
	features := flag.String("features", "mfcc,mel,concat", "comma-separated feature variants")
	folds := flag.Int("folds", 5, "folds per feature")
	hidden := flag.Int("hidden", 32, "hidden layer width")
	seed := flag.Int64("seed", 1, "rng seed")
	classList := flag.String("classes",
		"air_conditioner,car_horn,children_playing,dog_bark,drilling,engine_idling,gun_shot,jackhammer,siren,street_music",
		"comma-separated class names")
	flag.Parse()

	classes := strings.Split(*classList, ",")
	if len(classes) < 2 {
		log.Fatal("at least two classes required")
	}

	if err := os.MkdirAll(*dir, 0o755); err != nil {
		log.Fatal(err)
	}
	payload, err := json.MarshalIndent(classes, "", "  ")
	if err != nil {
		log.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(*dir, "classes.json"), payload, 0o644); err != nil {
		log.Fatal(err)
	}

	cfg := audio.DefaultConfig()
	rnd := rand.New(rand.NewSource(*seed))

	for _, feature := range strings.Split(*features, ",") {
		feature = strings.TrimSpace(feature)
		inputDim, err := audio.Dim(feature, cfg)
		if err != nil {
			log.Fatal(err)
		}

		modelsDir := filepath.Join(*dir, feature, "models")
		if err := os.MkdirAll(modelsDir, 0o755); err != nil {
			log.Fatal(err)
		}

		for k := 1; k <= *folds; k++ {
			network := ml.NewRandomNetwork(feature, k, inputDim, *hidden, len(classes), rnd)
			path := filepath.Join(modelsDir, fmt.Sprintf("fold_%d.json", k))
			if err := network.Save(path); err != nil {
				log.Fatal(err)
			}
		}

		if err := writeSidecars(*dir, feature, inputDim, *folds, len(classes), rnd); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("wrote %d folds for %s (input_dim=%d)\n", *folds, feature, inputDim)
	}
}

func writeSidecars(dir, feature string, inputDim, folds, numClasses int, rnd *rand.Rand) error {
	summary := map[string]interface{}{
		"feature_type": feature,
		"folds":        folds,
		"input_dim":    inputDim,
		"num_classes":  numClasses,
		"created_at":   time.Now().UTC().Format(time.RFC3339),
		"source":       "genmodels fixture",
	}
	payload, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, feature, "summary.json"), payload, 0o644); err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("fold,accuracy,loss\n")
	for k := 1; k <= folds; k++ {
		fmt.Fprintf(&sb, "%d,%.4f,%.4f\n", k, 0.80+0.15*rnd.Float64(), 0.2+0.4*rnd.Float64())
	}
	return os.WriteFile(filepath.Join(dir, feature, "fold_metrics.csv"), []byte(sb.String()), 0o644)
}
