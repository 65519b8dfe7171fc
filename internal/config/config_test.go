package config

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":80", cfg.Listen.Addr)
	assert.Equal(t, 10, cfg.Routes.Max)
	assert.Equal(t, 1, cfg.Server.Slots)
	assert.Equal(t, 16384, cfg.Server.BufferSize)
	assert.Equal(t, 10*time.Second, cfg.Server.DrainTimeout)
	assert.Equal(t, 10*time.Millisecond, cfg.Network.PollInterval)
	assert.Equal(t, 1460, cfg.Network.SegmentSize)
	assert.Equal(t, 2048, cfg.Network.RecvBufferSize)
	assert.Equal(t, time.Second, cfg.Device.SampleInterval)
	assert.Equal(t, DisplayLog, cfg.Device.Display)
	assert.Equal(t, slog.LevelInfo, cfg.Log.Level)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoadFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/picohttpd.yaml", []byte(`
listen:
  addr: "127.0.0.1:8080"
server:
  slots: 4
  drain_timeout: 2s
routes:
  homepage_file: /www/index.html
log:
  level: debug
  format: json
tracing:
  enabled: true
`), 0o644))

	cfg, err := Load(NewViper(fs), "/etc/picohttpd.yaml")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Listen.Addr)
	assert.Equal(t, 4, cfg.Server.Slots)
	assert.Equal(t, 2*time.Second, cfg.Server.DrainTimeout)
	assert.Equal(t, "/www/index.html", cfg.Routes.HomepageFile)
	assert.Equal(t, slog.LevelDebug, cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Tracing.Enabled)

	// Untouched keys keep their defaults.
	assert.Equal(t, 16384, cfg.Server.BufferSize)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/c.yaml", []byte("server:\n  slots: 4\n"), 0o644))

	t.Setenv("PICOHTTP_SERVER_SLOTS", "8")
	t.Setenv("PICOHTTP_NETWORK_POLL_INTERVAL", "25ms")

	cfg, err := Load(NewViper(fs), "/c.yaml")
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Server.Slots)
	assert.Equal(t, 25*time.Millisecond, cfg.Network.PollInterval)
}

func TestMissingFile(t *testing.T) {
	_, err := Load(NewViper(afero.NewMemMapFs()), "/nope.yaml")
	require.Error(t, err)

	var readErr ReadError
	require.True(t, errors.As(err, &readErr))
	assert.Equal(t, "/nope.yaml", readErr.Path)
}

func TestInvalidDuration(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/c.yaml", []byte("server:\n  drain_timeout: soon\n"), 0o644))

	_, err := Load(NewViper(fs), "/c.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Config)
		field string
		cause error
	}{
		{"zero slots", func(c *Config) { c.Server.Slots = 0 }, "server.slots", ErrNotPositive},
		{"zero buffer", func(c *Config) { c.Server.BufferSize = 0 }, "server.buffer_size", ErrNotPositive},
		{"zero routes", func(c *Config) { c.Routes.Max = 0 }, "routes.max", ErrNotPositive},
		{"negative drain", func(c *Config) { c.Server.DrainTimeout = -time.Second }, "server.drain_timeout", ErrNegative},
		{"rate without window", func(c *Config) {
			c.Network.AcceptRate = 5
			c.Network.AcceptWindow = 0
		}, "network.accept_window", ErrNotPositive},
		{"empty addr", func(c *Config) { c.Listen.Addr = "" }, "listen.addr", ErrEmpty},
		{"unknown display", func(c *Config) { c.Device.Display = "oled" }, "device.display", ErrUnknown},
		{"unknown format", func(c *Config) { c.Log.Format = "xml" }, "log.format", ErrUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.edit(&cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var verr ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			assert.ErrorIs(t, err, tt.cause)
		})
	}
}

func TestZeroDrainTimeoutIsAllowed(t *testing.T) {
	cfg := Default()
	cfg.Server.DrainTimeout = 0
	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("PICOHTTP_SERVER_SLOTS", "0")
	_, err := Load(NewViper(afero.NewMemMapFs()), "")

	var verr ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "server.slots", verr.Field)
}
