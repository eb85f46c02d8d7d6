package main

import (
	"bytes"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/srg/lotus/internal/device"
	"github.com/srg/lotus/internal/testutils"
	"github.com/srg/lotus/pkg/config"
)

// CommandTestSuite runs rootCmd against the mocked transport with a private
// settings file and no config file.
type CommandTestSuite struct {
	testutils.MockTransportSuite

	settingsPath string
	configPath   string

	origTransport func(*config.Config, *logrus.Logger) device.Transport
	origNoColor   bool
}

func (s *CommandTestSuite) SetupTest() {
	s.MockTransportSuite.SetupTest()

	dir := s.T().TempDir()
	s.settingsPath = filepath.Join(dir, "settings.json")
	s.configPath = filepath.Join(dir, "missing.yaml")

	s.origTransport = newTransport
	newTransport = func(*config.Config, *logrus.Logger) device.Transport { return s.Transport }

	s.origNoColor = color.NoColor
	color.NoColor = true
}

func (s *CommandTestSuite) TearDownTest() {
	newTransport = s.origTransport
	color.NoColor = s.origNoColor
	s.MockTransportSuite.TearDownTest()
}

// ExecuteCommand runs lotus with args and returns stdout, stderr and the error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, string, error) {
	resetFlags(rootCmd)

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(append(args, "--settings", s.settingsPath, "--config", s.configPath))

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

// resetFlags restores every flag of cmd and its children to its default;
// cobra keeps parsed values between Execute calls.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}
