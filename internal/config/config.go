// Package config loads picohttpd settings from defaults, an optional YAML
// file and PICOHTTP_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// PICOHTTP_SERVER_SLOTS=4.
const EnvPrefix = "PICOHTTP"

type Config struct {
	Listen  Listen  `mapstructure:"listen"`
	Routes  Routes  `mapstructure:"routes"`
	Server  Server  `mapstructure:"server"`
	Network Network `mapstructure:"network"`
	Device  Device  `mapstructure:"device"`
	Log     Log     `mapstructure:"log"`
	Tracing Tracing `mapstructure:"tracing"`
}

type Listen struct {
	Addr string `mapstructure:"addr"`
}

type Routes struct {
	Max          int           `mapstructure:"max"`
	HomepageFile string        `mapstructure:"homepage_file"`
	SlowHandler  time.Duration `mapstructure:"slow_handler"`
}

type Server struct {
	Slots        int           `mapstructure:"slots"`
	BufferSize   int           `mapstructure:"buffer_size"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

type Network struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	SegmentSize    int           `mapstructure:"segment_size"`
	RecvBufferSize int           `mapstructure:"recv_buffer_size"`
	AcceptRate     int           `mapstructure:"accept_rate"`
	AcceptWindow   time.Duration `mapstructure:"accept_window"`
}

type Device struct {
	SampleInterval time.Duration `mapstructure:"sample_interval"`
	ModelFile      string        `mapstructure:"model_file"`
	Seed           uint64        `mapstructure:"seed"`
	Display        string        `mapstructure:"display"`
}

type Log struct {
	Level  slog.Level `mapstructure:"level"`
	Format string     `mapstructure:"format"`
}

type Tracing struct {
	Enabled bool `mapstructure:"enabled"`
}

// Display modes.
const (
	DisplayLog    = "log"
	DisplayStdout = "stdout"
	DisplayNone   = "none"
)

var defaults = map[string]any{
	"listen.addr":              ":80",
	"routes.max":               10,
	"routes.homepage_file":     "",
	"routes.slow_handler":      50 * time.Millisecond,
	"server.slots":             1,
	"server.buffer_size":       16384,
	"server.drain_timeout":     10 * time.Second,
	"network.poll_interval":    10 * time.Millisecond,
	"network.segment_size":     1460,
	"network.recv_buffer_size": 2048,
	"network.accept_rate":      0,
	"network.accept_window":    time.Minute,
	"device.sample_interval":   time.Second,
	"device.model_file":        "",
	"device.seed":              1,
	"device.display":           DisplayLog,
	"log.level":                "info",
	"log.format":               "text",
	"tracing.enabled":          false,
}

// ReadError is returned when the config file cannot be read or parsed.
type ReadError struct {
	Path  string
	Cause error
}

func (e ReadError) Error() string {
	return fmt.Sprintf("read config %s: %s", e.Path, e.Cause)
}

func (e ReadError) Unwrap() error {
	return e.Cause
}

// ValidationError names the first setting that is out of range.
type ValidationError struct {
	Field string
	Cause error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Cause)
}

func (e ValidationError) Unwrap() error {
	return e.Cause
}

var (
	ErrNotPositive = errors.New("must be positive")
	ErrNegative    = errors.New("must not be negative")
	ErrEmpty       = errors.New("must not be empty")
	ErrUnknown     = errors.New("unknown value")
)

// NewViper returns a viper instance carrying every default and reading
// environment overrides. Callers may bind flags to it before Load.
func NewViper(fs afero.Fs) *viper.Viper {
	v := viper.New()
	v.SetFs(fs)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return v
}

// Load reads path, if set, into v and decodes the result.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, ReadError{Path: path, Cause: err}
		}
	}

	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	)))
	if err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	cfg, err := Load(NewViper(afero.NewMemMapFs()), "")
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate reports the first setting out of range.
func (c Config) Validate() error {
	positive := []struct {
		field string
		value int64
	}{
		{"routes.max", int64(c.Routes.Max)},
		{"server.slots", int64(c.Server.Slots)},
		{"server.buffer_size", int64(c.Server.BufferSize)},
		{"network.poll_interval", int64(c.Network.PollInterval)},
		{"network.segment_size", int64(c.Network.SegmentSize)},
		{"network.recv_buffer_size", int64(c.Network.RecvBufferSize)},
		{"device.sample_interval", int64(c.Device.SampleInterval)},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return ValidationError{Field: p.field, Cause: ErrNotPositive}
		}
	}

	nonNegative := []struct {
		field string
		value int64
	}{
		{"server.drain_timeout", int64(c.Server.DrainTimeout)},
		{"routes.slow_handler", int64(c.Routes.SlowHandler)},
		{"network.accept_rate", int64(c.Network.AcceptRate)},
	}
	for _, n := range nonNegative {
		if n.value < 0 {
			return ValidationError{Field: n.field, Cause: ErrNegative}
		}
	}

	if c.Network.AcceptRate > 0 && c.Network.AcceptWindow <= 0 {
		return ValidationError{Field: "network.accept_window", Cause: ErrNotPositive}
	}
	if c.Listen.Addr == "" {
		return ValidationError{Field: "listen.addr", Cause: ErrEmpty}
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return ValidationError{Field: "log.format", Cause: fmt.Errorf("%w %q", ErrUnknown, c.Log.Format)}
	}

	switch c.Device.Display {
	case DisplayLog, DisplayStdout, DisplayNone:
	default:
		return ValidationError{Field: "device.display", Cause: fmt.Errorf("%w %q", ErrUnknown, c.Device.Display)}
	}
	return nil
}
