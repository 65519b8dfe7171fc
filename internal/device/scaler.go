package device

// Scaler standardizes raw sensor channels: (x - Mean) / Scale.
type Scaler struct {
	Mean  [Channels]float64 `yaml:"mean"`
	Scale [Channels]float64 `yaml:"scale"`
}

// DefaultScaler returns the parameters the motor model was trained with.
func DefaultScaler() Scaler {
	return Scaler{
		Mean:  [Channels]float64{-0.991490, 0.659751, 9.951256, 0.642380, 1.296435, 0.326754},
		Scale: [Channels]float64{2.606281, 1.498122, 0.580618, 4.727813, 3.477966, 4.317478},
	}
}

// Transform standardizes x. A zero scale leaves the channel centered but
// unscaled.
func (s Scaler) Transform(x [Channels]float64) [Channels]float64 {
	var out [Channels]float64
	for i, v := range x {
		out[i] = v - s.Mean[i]
		if s.Scale[i] != 0 {
			out[i] /= s.Scale[i]
		}
	}
	return out
}
