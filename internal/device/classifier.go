package device

// NoLevel is reported before the first prediction.
const NoLevel = -1

// Prediction is the classifier output for one sample.
type Prediction struct {
	Level      int             `json:"level"`
	Confidence float64         `json:"confidence"`
	Scores     [Levels]float64 `json:"scores"`
}

// Classifier turns raw samples into motor level predictions.
type Classifier struct {
	scaler Scaler
	model  *Model
}

func NewClassifier(scaler Scaler, model *Model) *Classifier {
	return &Classifier{scaler: scaler, model: model}
}

// Predict standardizes s, runs the model and picks the best scoring
// level. Confidence is that level's score.
func (c *Classifier) Predict(s Sample) Prediction {
	scores := c.model.Infer(c.scaler.Transform(s.Features()))
	level := Argmax(scores[:])
	p := Prediction{Level: level, Scores: scores}
	if level != NoLevel {
		p.Confidence = scores[level]
	}
	return p
}

// Argmax returns the index of the largest value, the first one on ties,
// or NoLevel for an empty slice.
func Argmax(v []float64) int {
	if len(v) == 0 {
		return NoLevel
	}
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
