// cmd/siggenctl/root.go
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"siggen-service/internal/app"
	"siggen-service/internal/config"
	"siggen-service/internal/model"
	"siggen-service/internal/protocol"
	"siggen-service/internal/utils"
)

var (
	configPath string
	verbose    bool
	simulate   bool
	baudRate   int
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "siggenctl",
	Short: "Control an FY-series signal generator over its serial port",
	Long: `siggenctl drives a bench signal generator directly, without the HTTP service.

Every command that talks to the device first runs discovery: candidate serial
ports are probed with the identity query and the first one answering with a
known family prefix is used. When nothing answers, or with --simulate, the
simulated TEST port is used and written commands are printed instead.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default searches ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
	rootCmd.PersistentFlags().BoolVarP(&simulate, "simulate", "s", false, "skip discovery and use the simulated TEST port")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "operating baud rate (default from config)")
}

// newDevice loads configuration and wires the control plane, printing
// notifications and simulated writes to out
func newDevice(out io.Writer) (*app.Device, *config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	cfg.Logging.Format = "console"
	cfg.Logging.Output = "stderr"
	cfg.Logging.Level = "warn"
	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, nil, nil, err
	}

	device, err := app.NewDevice(cfg, protocol.SerialOpener(logger), newConsoleSink(out), logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return device, cfg, logger, nil
}

// withSession connects to the device, runs fn and closes every port afterwards
func withSession(cmd *cobra.Command, fn func(ctx context.Context, device *app.Device) error) error {
	device, cfg, logger, err := newDevice(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer utils.CloseLogger(logger)
	defer device.Registry.EvictAll()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := connect(ctx, device, cfg); err != nil {
		return err
	}
	return fn(ctx, device)
}

func connect(ctx context.Context, device *app.Device, cfg *config.Config) error {
	if simulate {
		device.Registry.Install(model.SimulatedPort, protocol.SimulatedHandle{})
		return nil
	}

	baud := baudRate
	if baud <= 0 {
		baud = cfg.Device.BaudRate
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Device.OperationTimeout)
	defer cancel()

	if _, err := device.Session.Reconnect(ctx, baud); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	return nil
}
