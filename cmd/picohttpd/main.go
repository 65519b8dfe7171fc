// Command picohttpd runs the motor monitor: it samples the motion
// sensor, classifies the motor level, refreshes the display and answers
// HTTP requests about it, all from a single loop.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Brownie44l1/pico-http/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(afero.NewOsFs()).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(fs afero.Fs) *cobra.Command {
	v := config.NewViper(fs)
	var configPath string

	cmd := &cobra.Command{
		Use:           "picohttpd",
		Short:         "Motor level monitor with a minimal HTTP status server",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), fs, cfg, cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	flags.String("addr", "", "listen address")
	flags.Int("slots", 0, "concurrent connection slots")
	flags.String("homepage", "", "HTML file served on /")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("log-format", "", "text or json")
	flags.Bool("trace", false, "export connection spans to stderr")

	for key, name := range map[string]string{
		"listen.addr":          "addr",
		"server.slots":         "slots",
		"routes.homepage_file": "homepage",
		"log.level":            "log-level",
		"log.format":           "log-format",
		"tracing.enabled":      "trace",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
	return cmd
}
