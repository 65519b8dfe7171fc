package device

import (
	_ "embed"
	"errors"
	"fmt"
	"math"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Levels is the number of motor levels the model distinguishes.
const Levels = 4

var (
	ErrShapeMismatch = errors.New("layer shape mismatch")
	ErrNoLayers      = errors.New("model has no layers")
)

// Activation names accepted in model files.
const (
	ActivationLinear  = "linear"
	ActivationReLU    = "relu"
	ActivationSoftmax = "softmax"
)

// Layer is a fully connected layer: out = act(W·in + b). Weights has one
// row per output unit.
type Layer struct {
	Weights    [][]float64 `yaml:"weights"`
	Bias       []float64   `yaml:"bias"`
	Activation string      `yaml:"activation"`
}

// Model is a small multilayer perceptron.
type Model struct {
	Name   string  `yaml:"name"`
	Layers []Layer `yaml:"layers"`
}

// InvalidModelError is returned when a model file cannot be decoded or
// describes an unusable network.
type InvalidModelError struct {
	Name  string
	Cause error
}

func (e InvalidModelError) Error() string {
	return fmt.Sprintf("invalid model %s: %s", e.Name, e.Cause)
}

func (e InvalidModelError) Unwrap() error {
	return e.Cause
}

//go:embed motor_model.yaml
var defaultModel []byte

// DefaultModel returns the built-in motor level model.
func DefaultModel() *Model {
	m, err := ParseModel("builtin", defaultModel)
	if err != nil {
		panic(err)
	}
	return m
}

// LoadModel reads a YAML model from fs.
func LoadModel(fs afero.Fs, name string) (*Model, error) {
	b, err := afero.ReadFile(fs, name)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", name, err)
	}
	return ParseModel(name, b)
}

// ParseModel decodes and validates a YAML model. The network must map
// Channels inputs to Levels outputs.
func ParseModel(name string, b []byte) (*Model, error) {
	var m Model
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, InvalidModelError{Name: name, Cause: err}
	}
	if err := m.Validate(); err != nil {
		return nil, InvalidModelError{Name: name, Cause: err}
	}
	return &m, nil
}

// Validate checks that consecutive layers line up.
func (m *Model) Validate() error {
	if len(m.Layers) == 0 {
		return ErrNoLayers
	}

	in := Channels
	for i, l := range m.Layers {
		if len(l.Weights) == 0 {
			return fmt.Errorf("%w: layer %d has no units", ErrShapeMismatch, i)
		}
		if len(l.Bias) != len(l.Weights) {
			return fmt.Errorf("%w: layer %d has %d units and %d biases", ErrShapeMismatch, i, len(l.Weights), len(l.Bias))
		}
		for j, row := range l.Weights {
			if len(row) != in {
				return fmt.Errorf("%w: layer %d unit %d takes %d inputs, want %d", ErrShapeMismatch, i, j, len(row), in)
			}
		}
		switch l.Activation {
		case "", ActivationLinear, ActivationReLU, ActivationSoftmax:
		default:
			return fmt.Errorf("layer %d: unknown activation %q", i, l.Activation)
		}
		in = len(l.Weights)
	}

	if in != Levels {
		return fmt.Errorf("%w: model outputs %d scores, want %d", ErrShapeMismatch, in, Levels)
	}
	return nil
}

// Infer runs a forward pass.
func (m *Model) Infer(x [Channels]float64) [Levels]float64 {
	act := x[:]
	for _, l := range m.Layers {
		act = l.forward(act)
	}

	var out [Levels]float64
	copy(out[:], act)
	return out
}

func (l Layer) forward(in []float64) []float64 {
	out := make([]float64, len(l.Weights))
	for j, row := range l.Weights {
		sum := l.Bias[j]
		for i, w := range row {
			sum += w * in[i]
		}
		out[j] = sum
	}

	switch l.Activation {
	case ActivationReLU:
		for j, v := range out {
			out[j] = max(v, 0)
		}
	case ActivationSoftmax:
		softmax(out)
	}
	return out
}

func softmax(v []float64) {
	peak := math.Inf(-1)
	for _, x := range v {
		peak = max(peak, x)
	}
	var sum float64
	for i, x := range v {
		v[i] = math.Exp(x - peak)
		sum += v[i]
	}
	for i := range v {
		v[i] /= sum
	}
}
