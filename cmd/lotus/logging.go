package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// cliLevels are the values --log-level accepts.
var cliLevels = map[string]logrus.Level{
	"debug": logrus.DebugLevel,
	"info":  logrus.InfoLevel,
	"warn":  logrus.WarnLevel,
	"error": logrus.ErrorLevel,
}

// silent is the level of a logger nobody asked to hear from.
const silent = logrus.PanicLevel

// configureLogger builds the command logger from --log-level and the verbose
// flag. --log-level wins; with neither the logger is silent.
func configureLogger(cmd *cobra.Command, verboseFlagName string) (*logrus.Logger, error) {
	level := silent

	if name, _ := cmd.Flags().GetString("log-level"); name != "" {
		lvl, ok := cliLevels[name]
		if !ok {
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", name)
		}
		level = lvl
	} else if verbose, _ := cmd.Flags().GetBool(verboseFlagName); verbose {
		level = logrus.DebugLevel
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger, nil
}

// routeLogs moves logger off the terminal for full-screen commands. With an
// empty path logs are discarded; otherwise they are appended to path, and a
// silent logger is raised to fallback so the file is worth opening.
// The returned closer releases the file.
func routeLogs(logger *logrus.Logger, path string, fallback logrus.Level) (io.Closer, error) {
	if path == "" {
		logger.SetOutput(io.Discard)
		return io.NopCloser(nil), nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger.SetOutput(f)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	if logger.GetLevel() == silent {
		logger.SetLevel(fallback)
	}
	logger.WithField("pid", os.Getpid()).Info("Logging to file")
	return f, nil
}
