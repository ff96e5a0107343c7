package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/NodePath81/hyperspeed/internal/app"
	"github.com/NodePath81/hyperspeed/internal/util"
)

func serveCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the benchmark server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" && len(args) > 0 {
				configPath = args[0]
			}
			return serve(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	return cmd
}

func serve(configPath string) error {
	cfg, err := app.LoadConfig(configPath, util.NewLogger())
	if err != nil {
		return err
	}
	logger := util.NewLoggerWith(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)

	supervisor := app.NewSupervisor(configPath, logger)
	if err := supervisor.Start(); err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	logger.Info("server listening", "addr", supervisor.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)
	for sig := range sigCh {
		if sig != syscall.SIGHUP {
			break
		}
		logger.Info("reload requested")
		if err := supervisor.Restart(); err != nil {
			logger.Error("reload failed", "error", err)
			return err
		}
		logger.Info("server listening", "addr", supervisor.Addr())
	}
	logger.Info("shutdown requested")
	supervisor.Stop()
	return nil
}

func checkCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" && len(args) > 0 {
				configPath = args[0]
			}
			cfg, err := app.LoadConfig(configPath, util.NewLoggerWith(cmd.ErrOrStderr(), "warn", "text"))
			if err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config valid: listen %s, client target %s, %d streams\n",
				util.NetJoin(cfg.Server.BindAddr, cfg.Server.BindPort),
				util.NetJoin(cfg.Client.Target, cfg.Client.Port),
				cfg.Client.Streams)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	return cmd
}
