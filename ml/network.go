package ml

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"

	"github.com/x448/float16"
)

// Network is a serialized feed-forward classifier artifact: dense layers
// with relu hidden activations and a softmax output. Weights are stored
// as base64-encoded little-endian IEEE float16.
type Network struct {
	Feature  string
	Fold     int
	InputDim int
	Classes  int
	layers   []denseLayer
}

type denseLayer struct {
	activation string
	rows       int
	cols       int
	weights    []float64 // row-major, rows x cols
	bias       []float64
}

type networkFile struct {
	Feature  string      `json:"feature_type"`
	Fold     int         `json:"fold"`
	InputDim int         `json:"input_dim"`
	Classes  int         `json:"classes"`
	Layers   []layerFile `json:"layers"`
}

type layerFile struct {
	Activation string `json:"activation"`
	Rows       int    `json:"rows"`
	Cols       int    `json:"cols"`
	Weights    string `json:"weights"`
	Bias       string `json:"bias"`
}

// LoadNetwork reads and validates a model artifact.
func LoadNetwork(path string) (*Network, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file networkFile
	if err := json.Unmarshal(payload, &file); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if len(file.Layers) == 0 {
		return nil, fmt.Errorf("artifact %s has no layers", path)
	}

	n := &Network{
		Feature:  file.Feature,
		Fold:     file.Fold,
		InputDim: file.InputDim,
		Classes:  file.Classes,
	}

	prev := file.InputDim
	for i, lf := range file.Layers {
		weights, err := decodeFloat16(lf.Weights, lf.Rows*lf.Cols)
		if err != nil {
			return nil, fmt.Errorf("layer %d weights in %s: %w", i, path, err)
		}
		bias, err := decodeFloat16(lf.Bias, lf.Rows)
		if err != nil {
			return nil, fmt.Errorf("layer %d bias in %s: %w", i, path, err)
		}
		if lf.Cols != prev {
			return nil, fmt.Errorf("layer %d in %s expects %d inputs, previous layer emits %d", i, path, lf.Cols, prev)
		}
		switch lf.Activation {
		case "relu", "softmax", "linear":
		default:
			return nil, fmt.Errorf("layer %d in %s: unknown activation %q", i, path, lf.Activation)
		}
		n.layers = append(n.layers, denseLayer{
			activation: lf.Activation,
			rows:       lf.Rows,
			cols:       lf.Cols,
			weights:    weights,
			bias:       bias,
		})
		prev = lf.Rows
	}
	if prev != file.Classes {
		return nil, fmt.Errorf("artifact %s emits %d outputs for %d classes", path, prev, file.Classes)
	}
	return n, nil
}

// Predict runs the forward pass and returns per-class probabilities.
func (n *Network) Predict(features []float64) ([]float64, error) {
	if len(features) != n.InputDim {
		return nil, fmt.Errorf("%w: expected %d features, got %d", ErrInvalidInput, n.InputDim, len(features))
	}
	x := features
	for _, layer := range n.layers {
		y := make([]float64, layer.rows)
		for i := 0; i < layer.rows; i++ {
			sum := layer.bias[i]
			row := layer.weights[i*layer.cols : (i+1)*layer.cols]
			for j, w := range row {
				sum += w * x[j]
			}
			y[i] = sum
		}
		switch layer.activation {
		case "relu":
			for i, v := range y {
				if v < 0 {
					y[i] = 0
				}
			}
		case "softmax":
			softmax(y)
		}
		x = y
	}
	return x, nil
}

// Save writes the artifact to path, creating parent dirs is the caller's
// concern.
func (n *Network) Save(path string) error {
	file := networkFile{
		Feature:  n.Feature,
		Fold:     n.Fold,
		InputDim: n.InputDim,
		Classes:  n.Classes,
	}
	for _, layer := range n.layers {
		file.Layers = append(file.Layers, layerFile{
			Activation: layer.activation,
			Rows:       layer.rows,
			Cols:       layer.cols,
			Weights:    encodeFloat16(layer.weights),
			Bias:       encodeFloat16(layer.bias),
		})
	}
	payload, err := json.Marshal(file)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

// NewRandomNetwork builds a small random-weight artifact. Used by the
// fixture generator and tests; the weights carry no trained knowledge.
func NewRandomNetwork(feature string, fold, inputDim, hidden, classes int, rnd *rand.Rand) *Network {
	n := &Network{
		Feature:  feature,
		Fold:     fold,
		InputDim: inputDim,
		Classes:  classes,
	}
	n.layers = []denseLayer{
		randomLayer("relu", hidden, inputDim, rnd),
		randomLayer("softmax", classes, hidden, rnd),
	}
	return n
}

func randomLayer(activation string, rows, cols int, rnd *rand.Rand) denseLayer {
	scale := 1 / math.Sqrt(float64(cols))
	weights := make([]float64, rows*cols)
	for i := range weights {
		weights[i] = rnd.NormFloat64() * scale
	}
	bias := make([]float64, rows)
	for i := range bias {
		bias[i] = rnd.NormFloat64() * 0.01
	}
	return denseLayer{activation: activation, rows: rows, cols: cols, weights: weights, bias: bias}
}

func softmax(v []float64) {
	max := v[0]
	for _, x := range v[1:] {
		if x > max {
			max = x
		}
	}
	var sum float64
	for i, x := range v {
		v[i] = math.Exp(x - max)
		sum += v[i]
	}
	for i := range v {
		v[i] /= sum
	}
}

func decodeFloat16(b64 string, want int) ([]float64, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	if len(raw) != 2*want {
		return nil, fmt.Errorf("expected %d float16 values, got %d bytes", want, len(raw))
	}
	out := make([]float64, want)
	for i := 0; i < want; i++ {
		bits := binary.LittleEndian.Uint16(raw[2*i:])
		out[i] = float64(float16.Frombits(bits).Float32())
	}
	return out, nil
}

func encodeFloat16(values []float64) string {
	raw := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(raw[2*i:], float16.Fromfloat32(float32(v)).Bits())
	}
	return base64.StdEncoding.EncodeToString(raw)
}
