package device

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restingSample() Sample {
	m := DefaultScaler().Mean
	return Sample{AccelX: m[0], AccelY: m[1], AccelZ: m[2], GyroX: m[3], GyroY: m[4], GyroZ: m[5]}
}

func TestScalerTransform(t *testing.T) {
	s := DefaultScaler()
	out := s.Transform(restingSample().Features())
	for i, v := range out {
		assert.InDelta(t, 0, v, 1e-12, "channel %d", i)
	}

	x := restingSample().Features()
	x[2] += s.Scale[2]
	assert.InDelta(t, 1, s.Transform(x)[2], 1e-12)
}

func TestScalerZeroScale(t *testing.T) {
	s := Scaler{Mean: [Channels]float64{1}}
	assert.Equal(t, 2.0, s.Transform([Channels]float64{3})[0])
}

func TestArgmax(t *testing.T) {
	assert.Equal(t, NoLevel, Argmax(nil))
	assert.Equal(t, 2, Argmax([]float64{0.1, 0.2, 0.6, 0.1}))
	assert.Equal(t, 0, Argmax([]float64{0.5, 0.5}))
	assert.Equal(t, 3, Argmax([]float64{-4, -3, -2, -1}))
}

func TestDefaultModelAtRest(t *testing.T) {
	clf := NewClassifier(DefaultScaler(), DefaultModel())
	p := clf.Predict(restingSample())

	assert.Equal(t, 0, p.Level)
	assert.Equal(t, p.Scores[0], p.Confidence)

	var sum float64
	for _, v := range p.Scores {
		sum += v
	}
	assert.InDelta(t, 1, sum, 1e-9)
}

func TestDefaultModelTracksVibration(t *testing.T) {
	clf := NewClassifier(DefaultScaler(), DefaultModel())
	scale := DefaultScaler().Scale

	// Total absolute standardized deviation picks the level.
	for _, tt := range []struct {
		energy float64
		level  int
	}{
		{energy: 1, level: 0},
		{energy: 2.5, level: 1},
		{energy: 3.5, level: 2},
		{energy: 6, level: 3},
	} {
		s := restingSample()
		s.GyroX += tt.energy * scale[3]
		assert.Equal(t, tt.level, clf.Predict(s).Level, "energy %v", tt.energy)
	}
}

func TestParseModel(t *testing.T) {
	m, err := ParseModel("tiny", []byte(`
name: tiny
layers:
  - activation: softmax
    weights:
      - [1, 0, 0, 0, 0, 0]
      - [0, 1, 0, 0, 0, 0]
      - [0, 0, 1, 0, 0, 0]
      - [0, 0, 0, 1, 0, 0]
    bias: [0, 0, 0, 0]
`))
	require.NoError(t, err)
	assert.Equal(t, "tiny", m.Name)

	scores := m.Infer([Channels]float64{0, 0, 0, 10, 0, 0})
	assert.Equal(t, 3, Argmax(scores[:]))
	assert.Greater(t, scores[3], 0.99)
}

func TestParseModelRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "not yaml", yaml: "layers: [::"},
		{name: "no layers", yaml: "name: empty"},
		{name: "wrong input width", yaml: "layers:\n  - weights: [[1, 2]]\n    bias: [0]\n"},
		{name: "bias mismatch", yaml: "layers:\n  - weights: [[1, 0, 0, 0, 0, 0]]\n    bias: []\n"},
		{name: "wrong output width", yaml: "layers:\n  - weights: [[1, 0, 0, 0, 0, 0]]\n    bias: [0]\n"},
		{name: "unknown activation", yaml: "layers:\n  - activation: tanh\n    weights: [[1, 0, 0, 0, 0, 0]]\n    bias: [0]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseModel(tt.name, []byte(tt.yaml))
			require.Error(t, err)

			var invalid InvalidModelError
			assert.True(t, errors.As(err, &invalid))
			assert.Equal(t, tt.name, invalid.Name)
		})
	}
}

func TestLoadModel(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/pico/model.yaml", defaultModel, 0o644))

	m, err := LoadModel(fs, "/etc/pico/model.yaml")
	require.NoError(t, err)
	assert.Equal(t, "motor-level-v1", m.Name)
	assert.Len(t, m.Layers, 2)

	_, err = LoadModel(fs, "/missing.yaml")
	assert.Error(t, err)
}

func TestSoftmaxIsStable(t *testing.T) {
	v := []float64{1000, 1000, 0, -1000}
	softmax(v)
	assert.InDelta(t, 0.5, v[0], 1e-9)
	assert.InDelta(t, 0.5, v[1], 1e-9)
	assert.False(t, math.IsNaN(v[2]))
}

func TestFrameFor(t *testing.T) {
	assert.Equal(t, []string{"MOTOR LEVEL", "Waiting..."}, FrameFor(Prediction{Level: NoLevel}).Lines)
	assert.Equal(t, []string{"MOTOR LEVEL", "Level: 2", "Acc: 87.7%"},
		FrameFor(Prediction{Level: 2, Confidence: 0.8766}).Lines)
}

func TestWriterDisplay(t *testing.T) {
	var buf bytes.Buffer
	d := NewWriterDisplay(&buf, 12)
	require.NoError(t, d.Show(Frame{Lines: []string{"MOTOR LEVEL", "Level: 1", "a line that is too long"}}))

	want := "+------------+\n" +
		"|MOTOR LEVEL |\n" +
		"|Level: 1    |\n" +
		"|a line that |\n" +
		"+------------+\n"
	assert.Equal(t, want, buf.String())
}

func TestSimulatedIsDeterministic(t *testing.T) {
	a, b := NewSimulated(7), NewSimulated(7)
	for i := 0; i < 5; i++ {
		sa, err := a.Read(context.Background())
		require.NoError(t, err)
		sb, err := b.Read(context.Background())
		require.NoError(t, err)
		assert.Equal(t, sa, sb)
	}
}

func TestSimulatedCyclesLevels(t *testing.T) {
	s := NewSimulated(1)
	s.Period = 2

	var levels []int
	for i := 0; i < 10; i++ {
		levels = append(levels, s.Level())
		_, err := s.Read(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, []int{0, 0, 1, 1, 2, 2, 3, 3, 0, 0}, levels)
}

func TestSimulatedHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSimulated(1).Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type recordingDisplay struct {
	frames []Frame
	err    error
}

func (d *recordingDisplay) Show(f Frame) error {
	d.frames = append(d.frames, f)
	return d.err
}

func TestMonitorTick(t *testing.T) {
	display := &recordingDisplay{}
	src := SourceFunc(func(context.Context) (Sample, error) { return restingSample(), nil })
	m := NewMonitor(src, NewClassifier(DefaultScaler(), DefaultModel()), display,
		WithSampleInterval(time.Second),
	)

	assert.Equal(t, NoLevel, m.Status().Level)
	require.NoError(t, m.Start())
	require.Len(t, display.frames, 1)
	assert.Equal(t, "Waiting...", display.frames[0].Lines[1])

	start := time.Unix(1700000000, 0)
	sampled, err := m.Tick(context.Background(), start)
	require.NoError(t, err)
	assert.True(t, sampled)
	assert.Equal(t, 0, m.Status().Level)
	assert.Equal(t, int64(1), m.Status().Samples)
	assert.Equal(t, "Level: 0", display.frames[1].Lines[1])

	sampled, err = m.Tick(context.Background(), start.Add(500*time.Millisecond))
	require.NoError(t, err)
	assert.False(t, sampled)

	sampled, err = m.Tick(context.Background(), start.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, sampled)
	assert.Equal(t, int64(2), m.Status().Samples)
	assert.Equal(t, start.Add(time.Second), m.Status().UpdatedAt)
}

func TestMonitorSensorFailureKeepsLastStatus(t *testing.T) {
	fail := errors.New("i2c nack")
	calls := 0
	src := SourceFunc(func(context.Context) (Sample, error) {
		calls++
		if calls > 1 {
			return Sample{}, fail
		}
		return restingSample(), nil
	})
	m := NewMonitor(src, NewClassifier(DefaultScaler(), DefaultModel()), &recordingDisplay{})

	start := time.Unix(1700000000, 0)
	_, err := m.Tick(context.Background(), start)
	require.NoError(t, err)

	_, err = m.Tick(context.Background(), start.Add(time.Minute))
	assert.ErrorIs(t, err, fail)
	assert.Equal(t, 0, m.Status().Level)
	assert.Equal(t, int64(1), m.Status().Samples)
}

func TestMonitorDisplayFailure(t *testing.T) {
	src := SourceFunc(func(context.Context) (Sample, error) { return restingSample(), nil })
	m := NewMonitor(src, NewClassifier(DefaultScaler(), DefaultModel()), &recordingDisplay{err: errors.New("bus busy")})

	sampled, err := m.Tick(context.Background(), time.Now())
	assert.True(t, sampled)
	assert.Error(t, err)
	assert.Equal(t, 0, m.Status().Level)
}
