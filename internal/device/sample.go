// Package device holds everything around the HTTP server on the
// controller: the motion sensor, the motor level classifier and the
// status display.
package device

import (
	"context"
	"math/rand/v2"
)

// Channels is the number of model input features per sample.
const Channels = 6

// Sample is one motion sensor reading. Acceleration is in m/s², angular
// rate in °/s.
type Sample struct {
	AccelX float64 `json:"accel_x"`
	AccelY float64 `json:"accel_y"`
	AccelZ float64 `json:"accel_z"`
	GyroX  float64 `json:"gyro_x"`
	GyroY  float64 `json:"gyro_y"`
	GyroZ  float64 `json:"gyro_z"`
	TempC  float64 `json:"temp_c"`
}

// Features returns the classifier inputs in channel order.
func (s Sample) Features() [Channels]float64 {
	return [Channels]float64{s.AccelX, s.AccelY, s.AccelZ, s.GyroX, s.GyroY, s.GyroZ}
}

// Source produces sensor samples.
type Source interface {
	Read(ctx context.Context) (Sample, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Sample, error)

func (f SourceFunc) Read(ctx context.Context) (Sample, error) {
	return f(ctx)
}

// Simulated stands in for the sensor. It vibrates around the resting
// readings the scaler was fitted on, with a noise level that follows the
// motor level it is currently simulating. The level steps up every
// Period samples and wraps after the highest one.
type Simulated struct {
	// Period is the number of samples spent at each level.
	Period int

	// Sigma is the noise, in standard deviations of each channel, per
	// simulated level.
	Sigma [Levels]float64

	rng    *rand.Rand
	scaler Scaler
	n      int
}

// NewSimulated returns a simulated sensor seeded with seed.
func NewSimulated(seed uint64) *Simulated {
	return &Simulated{
		Period: 10,
		Sigma:  [Levels]float64{0.2, 0.5, 0.8, 1.2},
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		scaler: DefaultScaler(),
	}
}

// Level returns the level the next sample will be drawn at.
func (s *Simulated) Level() int {
	period := max(s.Period, 1)
	return (s.n / period) % Levels
}

func (s *Simulated) Read(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}

	sigma := s.Sigma[s.Level()]
	s.n++

	var raw [Channels]float64
	for i := range raw {
		raw[i] = s.scaler.Mean[i] + s.scaler.Scale[i]*sigma*s.rng.NormFloat64()
	}
	return Sample{
		AccelX: raw[0],
		AccelY: raw[1],
		AccelZ: raw[2],
		GyroX:  raw[3],
		GyroY:  raw[4],
		GyroZ:  raw[5],
		TempC:  24 + 0.5*s.rng.NormFloat64(),
	}, nil
}
