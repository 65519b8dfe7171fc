package device

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Title is the first display line.
const Title = "MOTOR LEVEL"

// Frame is the text content of the display.
type Frame struct {
	Lines []string
}

func (f Frame) String() string {
	return strings.Join(f.Lines, "\n")
}

// FrameFor lays out the display for p.
func FrameFor(p Prediction) Frame {
	if p.Level == NoLevel {
		return Frame{Lines: []string{Title, "Waiting..."}}
	}
	return Frame{Lines: []string{
		Title,
		fmt.Sprintf("Level: %d", p.Level),
		fmt.Sprintf("Acc: %.1f%%", p.Confidence*100),
	}}
}

// Display shows frames.
type Display interface {
	Show(f Frame) error
}

// WriterDisplay draws each frame to w, boxed to a fixed width.
type WriterDisplay struct {
	w     io.Writer
	width int
}

func NewWriterDisplay(w io.Writer, width int) *WriterDisplay {
	return &WriterDisplay{w: w, width: width}
}

func (d *WriterDisplay) Show(f Frame) error {
	var b strings.Builder
	rule := "+" + strings.Repeat("-", d.width) + "+\n"
	b.WriteString(rule)
	for _, line := range f.Lines {
		if len(line) > d.width {
			line = line[:d.width]
		}
		fmt.Fprintf(&b, "|%-*s|\n", d.width, line)
	}
	b.WriteString(rule)

	_, err := io.WriteString(d.w, b.String())
	return err
}

// LogDisplay logs each frame at debug level.
type LogDisplay struct {
	logger *slog.Logger
}

func NewLogDisplay(logger *slog.Logger) *LogDisplay {
	return &LogDisplay{logger: logger}
}

func (d *LogDisplay) Show(f Frame) error {
	d.logger.Debug("display", slog.Any("lines", f.Lines))
	return nil
}
