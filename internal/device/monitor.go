package device

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Brownie44l1/pico-http/internal/logging"
)

const DefaultSampleInterval = time.Second

// Status is what the monitor last observed.
type Status struct {
	Prediction
	Sample    Sample    `json:"sample"`
	Samples   int64     `json:"samples"`
	UpdatedAt time.Time `json:"updated_at"`
}

type MonitorOption func(*Monitor)

func WithSampleInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.interval = d
	}
}

func WithMonitorLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// Monitor samples the sensor, classifies and refreshes the display at a
// fixed interval. It is driven by Tick from the main loop and is not safe
// for concurrent use.
type Monitor struct {
	src      Source
	clf      *Classifier
	display  Display
	interval time.Duration
	logger   *slog.Logger

	last   time.Time
	status Status
}

func NewMonitor(src Source, clf *Classifier, display Display, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		src:      src,
		clf:      clf,
		display:  display,
		interval: DefaultSampleInterval,
		logger:   logging.Discard(),
		status: Status{
			Prediction: Prediction{Level: NoLevel},
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start draws the initial frame.
func (m *Monitor) Start() error {
	return m.display.Show(FrameFor(m.status.Prediction))
}

// Tick takes a sample when the interval has elapsed since the previous
// one. It reports whether it sampled.
func (m *Monitor) Tick(ctx context.Context, now time.Time) (bool, error) {
	if !m.last.IsZero() && now.Sub(m.last) < m.interval {
		return false, nil
	}
	m.last = now

	s, err := m.src.Read(ctx)
	if err != nil {
		return false, fmt.Errorf("read sensor: %w", err)
	}

	p := m.clf.Predict(s)
	m.status = Status{
		Prediction: p,
		Sample:     s,
		Samples:    m.status.Samples + 1,
		UpdatedAt:  now,
	}

	m.logger.DebugContext(ctx, "prediction",
		slog.Int("level", p.Level),
		slog.Float64("confidence", p.Confidence),
		slog.Any("scores", p.Scores),
	)

	if err := m.display.Show(FrameFor(p)); err != nil {
		return true, fmt.Errorf("refresh display: %w", err)
	}
	return true, nil
}

// Status returns the latest observation.
func (m *Monitor) Status() Status {
	return m.status
}
