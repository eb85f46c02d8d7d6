package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/lotus/internal/device"
	goble "github.com/srg/lotus/internal/device/go-ble"
	"github.com/srg/lotus/internal/settings"
	"github.com/srg/lotus/pkg/config"
	"github.com/srg/lotus/session"
)

// newTransport builds the BLE transport. Tests replace it with a mock.
var newTransport = func(cfg *config.Config, logger *logrus.Logger) device.Transport {
	opts := goble.DefaultOptions()
	opts.ConnectTimeout = cfg.ConnectTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	opts.ServiceUUID = cfg.ServiceUUID
	return goble.NewTransport(opts, logger)
}

// app bundles what every command needs.
type app struct {
	cfg    *config.Config
	logger *logrus.Logger
	store  *settings.Store
}

// newApp reads the global flags, the config file and locates the settings file.
func newApp(cmd *cobra.Command) (*app, error) {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return nil, err
	}

	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		if configPath, err = config.DefaultPath(); err != nil {
			logger.WithError(err).Debug("No default config location")
			configPath = ""
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	settingsPath, _ := cmd.Flags().GetString("settings")
	if settingsPath == "" {
		settingsPath = cfg.SettingsPath
	}
	if settingsPath == "" {
		if settingsPath, err = settings.DefaultPath(); err != nil {
			return nil, err
		}
	}

	logger.WithFields(logrus.Fields{
		"config":   configPath,
		"settings": settingsPath,
	}).Debug("Configuration loaded")

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  settings.NewStore(settingsPath, logger),
	}, nil
}

func (a *app) transport() device.Transport {
	return newTransport(a.cfg, a.logger)
}

func (a *app) sessionOptions() *session.Options {
	return &session.Options{WriteRate: a.cfg.WriteRate, WriteBurst: a.cfg.WriteBurst}
}

// interruptContext returns a context cancelled by Ctrl+C or SIGTERM.
func interruptContext(out io.Writer, what string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			fmt.Fprintf(out, "\nCtrl+C pressed, cancelling %s...\n", what)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
