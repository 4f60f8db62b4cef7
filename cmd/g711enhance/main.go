// Command g711enhance encodes and decodes G.711 streams with noise
// shaping, frame-erasure concealment, a spectral post-filter and a noise
// gate.
//
// Usage:
//
//	g711enhance encode [-ns] [-hardbit] <law> <in.pcm> <out.bit>
//	g711enhance decode [-ng] [-pf] [-ferc] [-hardbit] [-wav] <law> <in.bit> <out.pcm>
//	g711enhance packetize [-ptime ms] [-hardbit] <law> <in.bit> <out.rtpdump>
//	g711enhance rtp [-ng] [-pf] [-ferc] [-sdp file] [-wav] <in.rtpdump> <out.pcm>
//	g711enhance watch [-dir path] [-out path]
//
// Defaults come from the environment and an optional .env file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"g711enhance/pkg/config"
	"g711enhance/pkg/metrics"
	"g711enhance/pkg/telemetry/tracing"
)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, app *app, args []string) error
}

// commands is filled in init because the flag usage text refers back to it.
var commands []command

func init() {
	commands = []command{
		{"encode", "[-ns] [-hardbit] <law> <in.pcm> <out.bit>", runEncode},
		{"decode", "[-ng] [-pf] [-ferc] [-hardbit] [-wav] <law> <in.bit> <out.pcm>", runDecode},
		{"packetize", "[-ptime ms] [-hardbit] <law> <in.bit> <out.rtpdump>", runPacketize},
		{"rtp", "[-ng] [-pf] [-ferc] [-sdp file] [-wav] <in.rtpdump> <out.pcm>", runRTP},
		{"watch", "[-dir path] [-out path]", runWatch},
	}
}

// app carries what every sub-command shares.
type app struct {
	cfg    *config.Config
	logger *logrus.Logger
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [-options] <args>\n\nCommands:\n", os.Args[0])
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", c.name, c.usage)
	}
	fmt.Fprintln(os.Stderr, "\n<law> is A or u.")
}

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		usage()
		return 2
	}
	name := os.Args[1]
	if name == "-h" || name == "-help" || name == "help" {
		usage()
		return 0
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		usage()
		return 2
	}

	bootstrap := logrus.New()
	cfg, err := config.Load(bootstrap)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		bootstrap.WithError(err).Error("Invalid configuration")
		return 1
	}
	a := &app{cfg: cfg, logger: cfg.NewLogger()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.TracingEndpoint,
		ServiceName: "g711enhance",
		Insecure:    cfg.TracingInsecure,
	}, a.logger)
	if err != nil {
		a.logger.WithError(err).Error("Failed to initialize tracing")
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			a.logger.WithError(err).Warn("Failed to flush traces")
		}
	}()

	if cfg.MetricsEnabled {
		metrics.Init()
		a.serveMetrics(ctx)
	}

	if err := cmd.run(ctx, a, os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		a.logger.WithError(err).WithField("command", cmd.name).Error("Command failed")
		return 1
	}
	return 0
}

func (a *app) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.WithField("addr", a.cfg.MetricsAddr).Info("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Error("Metrics server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()
}

// newFlagSet returns a flag set that reports errors instead of exiting
// and understands -quiet.
func (a *app) newFlagSet(name string) (*flag.FlagSet, *bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	quiet := fs.Bool("quiet", false, "log warnings and errors only")
	fs.Usage = func() {
		for _, c := range commands {
			if c.name == name {
				fmt.Fprintf(fs.Output(), "Usage: %s %s %s\n", os.Args[0], name, c.usage)
			}
		}
		fs.PrintDefaults()
	}
	return fs, quiet
}

func (a *app) applyQuiet(quiet bool) {
	if quiet && a.logger.GetLevel() > logrus.WarnLevel {
		a.logger.SetLevel(logrus.WarnLevel)
	}
}

func (a *app) decoderFlags(fs *flag.FlagSet) (ng, pf, ferc *bool) {
	ng = fs.Bool("ng", a.cfg.NoiseGate, "enable the noise gate")
	pf = fs.Bool("pf", a.cfg.PostFilter, "enable the post-filter (needs -ferc)")
	ferc = fs.Bool("ferc", a.cfg.Concealment, "enable frame erasure concealment")
	return ng, pf, ferc
}

func expectArgs(fs *flag.FlagSet, n int) error {
	if fs.NArg() != n {
		fs.Usage()
		return fmt.Errorf("expected %d arguments, got %d", n, fs.NArg())
	}
	return nil
}
