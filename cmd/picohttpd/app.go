package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/Brownie44l1/pico-http/internal/config"
	"github.com/Brownie44l1/pico-http/internal/device"
	"github.com/Brownie44l1/pico-http/internal/logging"
	"github.com/Brownie44l1/pico-http/internal/router"
	"github.com/Brownie44l1/pico-http/internal/server"
	"github.com/Brownie44l1/pico-http/internal/tcp"
)

const serviceName = "picohttpd"

// statsInterval is how often a metrics summary is logged.
const statsInterval = time.Minute

// app is every long-lived component, wired from a Config.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	tp      trace.TracerProvider
	router  *router.Router
	server  *server.Server
	monitor *device.Monitor

	shutdown func(context.Context) error
}

func newApp(fs afero.Fs, cfg config.Config, stderr io.Writer) (*app, error) {
	log, err := logging.New(logging.Options{
		Level:  cfg.Log.Level.String(),
		Format: cfg.Log.Format,
		Writer: stderr,
	})
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		tp:       noop.NewTracerProvider(),
		shutdown: func(context.Context) error { return nil },
	}

	if cfg.Tracing.Enabled {
		if err := a.initTracing(stderr); err != nil {
			return nil, err
		}
	}

	monitor, err := newMonitor(fs, cfg, log)
	if err != nil {
		return nil, err
	}
	a.monitor = monitor

	a.router = router.New(
		router.WithCapacity(cfg.Routes.Max),
		router.WithLogger(log),
	)
	a.router.Use(
		router.SlowHandler(log, cfg.Routes.SlowHandler, nil),
		router.Logging(log),
	)

	homepage := defaultHomepage
	if cfg.Routes.HomepageFile != "" {
		homepage, err = router.ReadHTMLFile(fs, cfg.Routes.HomepageFile)
		if err != nil {
			return nil, err
		}
	}
	a.router.SetHomepage(homepage)

	a.server = server.New(a.router,
		server.WithSlots(cfg.Server.Slots),
		server.WithBufferSize(cfg.Server.BufferSize),
		server.WithDrainTimeout(cfg.Server.DrainTimeout),
		server.WithLogger(log),
		server.WithTracerProvider(a.tp),
	)

	h := &handlers{monitor: a.monitor, metrics: a.server.Metrics()}
	if err := h.register(a.router); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) initTracing(w io.Writer) error {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return fmt.Errorf("build trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	a.tp = tp
	a.shutdown = tp.Shutdown
	return nil
}

func newMonitor(fs afero.Fs, cfg config.Config, log *slog.Logger) (*device.Monitor, error) {
	model := device.DefaultModel()
	if cfg.Device.ModelFile != "" {
		var err error
		model, err = device.LoadModel(fs, cfg.Device.ModelFile)
		if err != nil {
			return nil, err
		}
	}

	var display device.Display
	switch cfg.Device.Display {
	case config.DisplayStdout:
		display = device.NewWriterDisplay(os.Stdout, 16)
	case config.DisplayNone:
		display = device.NewLogDisplay(logging.Discard())
	default:
		display = device.NewLogDisplay(log)
	}

	return device.NewMonitor(
		device.NewSimulated(cfg.Device.Seed),
		device.NewClassifier(device.DefaultScaler(), model),
		display,
		device.WithSampleInterval(cfg.Device.SampleInterval),
		device.WithMonitorLogger(log),
	), nil
}

// serve runs the main loop until ctx is done. Network polling, sensor
// sampling and display refresh share one goroutine.
func (a *app) serve(ctx context.Context) error {
	opts := []tcp.Option{
		tcp.WithPollInterval(a.cfg.Network.PollInterval),
		tcp.WithSegmentSize(a.cfg.Network.SegmentSize),
		tcp.WithRecvBufferSize(a.cfg.Network.RecvBufferSize),
		tcp.WithLogger(a.log),
	}
	if a.cfg.Network.AcceptRate > 0 {
		opts = append(opts, tcp.WithAcceptLimiter(
			tcp.NewAcceptLimiter(a.cfg.Network.AcceptRate, a.cfg.Network.AcceptWindow),
		))
	}

	stack, err := tcp.Listen(a.cfg.Listen.Addr, a.server, opts...)
	if err != nil {
		return err
	}

	if err := a.monitor.Start(); err != nil {
		a.log.Warn("initial display refresh failed", logging.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return stack.Serve(gctx, func(now time.Time) {
			if _, err := a.monitor.Tick(gctx, now); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("sensor cycle failed", logging.Error(err))
			}
		})
	})
	g.Go(func() error {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				a.logStats("stats")
			}
		}
	})
	return g.Wait()
}

// routePatterns lists the registered patterns in match order.
func (a *app) routePatterns() []string {
	routes := a.router.Table().Routes()
	patterns := make([]string, 0, len(routes))
	for _, rt := range routes {
		patterns = append(patterns, rt.Pattern)
	}
	return patterns
}

func (a *app) logStats(msg string) {
	snap := a.server.Metrics().Snapshot()
	a.log.Info(msg,
		slog.Int64("requests", snap.RequestsTotal),
		slog.Int64("errors_4xx", snap.Errors4xx),
		slog.Int64("errors_5xx", snap.Errors5xx),
		slog.Int64("truncations", snap.Truncations),
		slog.Int64("timeouts", snap.Timeouts),
		slog.Int64("rejected", snap.ConnectionsRejected),
		slog.Duration("avg_latency", snap.AverageLatency),
	)
}

func run(ctx context.Context, fs afero.Fs, cfg config.Config, stderr io.Writer) error {
	a, err := newApp(fs, cfg, stderr)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdown(shutdownCtx); err != nil {
			a.log.Warn("trace shutdown failed", logging.Error(err))
		}
	}()

	a.log.Info("starting",
		slog.String("addr", cfg.Listen.Addr),
		slog.Int("slots", cfg.Server.Slots),
		slog.Int("buffer_size", cfg.Server.BufferSize),
		slog.Any("routes", a.routePatterns()),
	)
	err = a.serve(ctx)
	a.logStats("stopped")
	return err
}
