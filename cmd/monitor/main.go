// cmd/monitor/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ihydro/internal/common/config"
	"ihydro/internal/common/logger"
	"ihydro/internal/sensorapi"
	"ihydro/pkg/thresholds"
)

// app carries the state shared by every subcommand.
type app struct {
	configPath string
	verbose    bool
	jsonOutput bool

	cfg    *config.Config
	zapLog *zap.Logger
	log    logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "monitor",
		Short: "iHydro greenhouse monitor",
		Long: `monitor polls the iHydro sensor API, checks every reading against the
recommended ranges and prints the greenhouse state.

Run "monitor watch" for the live view or use the one-shot subcommands to
query the API directly.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.zapLog != nil {
				_ = a.zapLog.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a config file (default configs/config.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "print JSON instead of text")

	root.AddCommand(
		newWatchCmd(a),
		newStreamCmd(a),
		newCurrentCmd(a),
		newHistoryCmd(a),
		newSummaryCmd(a),
		newChatCmd(a),
	)
	return root
}

func (a *app) setup() error {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFromFile(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.ValidateMonitor(cfg); err != nil {
		return err
	}

	level := cfg.Logging.Level
	if a.verbose {
		level = "debug"
	}
	// stdout carries command output.
	a.zapLog = logger.New(level, cfg.Logging.Format, "stderr")
	a.log = logger.NewZapAdapter(a.zapLog).Named("monitor")
	a.cfg = cfg
	return nil
}

func (a *app) client() *sensorapi.Client {
	return sensorapi.NewClient(sensorapi.LoadConfig(a.cfg), a.log, nil)
}

func (a *app) thresholds() (*thresholds.Registry, error) {
	if a.cfg.Alerts.ThresholdsPath == "" {
		return thresholds.Default(), nil
	}
	reg, err := thresholds.LoadRegistry(a.cfg.Alerts.ThresholdsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load thresholds: %w", err)
	}
	return reg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
