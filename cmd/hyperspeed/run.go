package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/NodePath81/hyperspeed/internal/app"
	"github.com/NodePath81/hyperspeed/internal/config"
	"github.com/NodePath81/hyperspeed/internal/control"
	"github.com/NodePath81/hyperspeed/internal/engine"
	"github.com/NodePath81/hyperspeed/internal/report"
	"github.com/NodePath81/hyperspeed/internal/util"
)

type runOptions struct {
	configPath  string
	target      string
	port        int
	streams     int
	duration    int
	remote      string
	token       string
	json        bool
	interactive bool
	verbose     bool
}

func runCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a benchmark against a server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBenchmark(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "path to config file")
	f.StringVar(&opts.target, "target", "", "target host")
	f.IntVarP(&opts.port, "port", "p", 0, "target port")
	f.IntVarP(&opts.streams, "streams", "c", 0, "parallel streams (1-8)")
	f.IntVarP(&opts.duration, "duration", "d", 0, "seconds per transfer phase")
	f.StringVar(&opts.remote, "remote", "", "drive the run from the server at host:port over its control channel")
	f.StringVar(&opts.token, "token", "", "control channel auth token")
	f.BoolVar(&opts.json, "json", false, "write messages as JSON lines")
	f.BoolVarP(&opts.interactive, "interactive", "i", false, "prompt for run parameters")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log engine activity to stderr")
	f.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		if name == "host" {
			name = "target"
		}
		return pflag.NormalizedName(name)
	})
	return cmd
}

func runBenchmark(cmd *cobra.Command, opts runOptions) error {
	level := "error"
	if opts.verbose {
		level = "debug"
	}
	logger := util.NewLoggerWith(cmd.ErrOrStderr(), level, "text")

	cfg, err := app.LoadConfig(opts.configPath, logger)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, &cfg.Client, opts)
	if opts.interactive {
		if err := prompt(cmd.InOrStdin(), cmd.OutOrStdout(), &cfg.Client, opts.remote != ""); err != nil {
			return err
		}
	}

	format := report.FormatText
	if opts.json {
		format = report.FormatJSON
	}
	renderer := report.NewRenderer(cmd.OutOrStdout(), format, !opts.json && report.IsTerminal(os.Stdout))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.remote != "" {
		return runRemote(ctx, cmd, opts, cfg.Client, renderer)
	}
	return runLocal(ctx, cfg.Client, renderer, logger)
}

func applyRunFlags(cmd *cobra.Command, cfg *config.ClientConfig, opts runOptions) {
	f := cmd.Flags()
	if f.Changed("target") {
		cfg.Target = opts.target
	}
	if f.Changed("port") {
		cfg.Port = opts.port
	}
	if f.Changed("streams") {
		cfg.Streams = opts.streams
	}
	if f.Changed("duration") {
		cfg.Duration = config.Duration(time.Duration(opts.duration) * time.Second)
	}
}

func runLocal(ctx context.Context, cfg config.ClientConfig, renderer *report.Renderer, logger util.Logger) error {
	tr := app.NewTransport(cfg, cfg.Target, cfg.Port)
	defer tr.Close()
	orch := engine.NewOrchestrator(tr, app.EngineOptions(cfg, nil), logger)

	events := make(chan engine.Event, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		renderer.Consume(events)
	}()
	_, err := orch.Run(ctx, engine.Request{Streams: cfg.Streams, Duration: cfg.Duration.Duration()}, events)
	close(events)
	<-done
	return err
}

func runRemote(ctx context.Context, cmd *cobra.Command, opts runOptions, cfg config.ClientConfig, renderer *report.Renderer) error {
	host, portStr, err := net.SplitHostPort(opts.remote)
	if err != nil {
		return fmt.Errorf("invalid --remote %q: %w", opts.remote, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid --remote port %q", portStr)
	}

	client, err := control.Dial(ctx, control.URL(host, port), opts.token)
	if err != nil {
		return err
	}
	defer client.Close()

	command := control.Command{
		Streams:  cfg.Streams,
		Duration: int(cfg.Duration.Duration() / time.Second),
	}
	// Without an explicit target the remote server measures itself.
	if cmd.Flags().Changed("target") || opts.interactive {
		command.Host = cfg.Target
		command.Port = cfg.Port
	}
	err = client.Run(ctx, command, renderer.Render)
	if errors.Is(err, context.Canceled) {
		return engine.ErrAborted
	}
	return err
}

// prompt asks for run parameters on in, keeping the current value when the
// answer is empty.
func prompt(in io.Reader, out io.Writer, cfg *config.ClientConfig, remote bool) error {
	scanner := bufio.NewScanner(in)
	ask := func(label, current string) (string, error) {
		fmt.Fprintf(out, "%s [%s]: ", label, current)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", err
			}
			return "", io.ErrUnexpectedEOF
		}
		answer := strings.TrimSpace(scanner.Text())
		if answer == "" {
			return current, nil
		}
		return answer, nil
	}
	askInt := func(label string, current, lo, hi int) (int, error) {
		for {
			raw, err := ask(label, strconv.Itoa(current))
			if err != nil {
				return 0, err
			}
			v, err := strconv.Atoi(raw)
			if err == nil && v >= lo && v <= hi {
				return v, nil
			}
			fmt.Fprintf(out, "enter a number between %d and %d\n", lo, hi)
		}
	}

	label := "Target host"
	if remote {
		label = "Target host (as seen from the server)"
	}
	target, err := ask(label, cfg.Target)
	if err != nil {
		return err
	}
	cfg.Target = target
	if cfg.Port, err = askInt("Target port", cfg.Port, 1, 65535); err != nil {
		return err
	}
	if cfg.Streams, err = askInt("Streams", engine.ClampStreams(cfg.Streams), 1, engine.MaxStreams); err != nil {
		return err
	}
	seconds, err := askInt("Duration (seconds)", int(cfg.Duration.Duration()/time.Second), 1, 3600)
	if err != nil {
		return err
	}
	cfg.Duration = config.Duration(time.Duration(seconds) * time.Second)
	return nil
}
