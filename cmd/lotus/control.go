package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/lotus/internal/command"
	"github.com/srg/lotus/runner"
	"github.com/srg/lotus/session"
)

const targetHelp = `The fixture is given with --address, or found by name prefix with --name
(default: name_prefix from the config file).`

var powerCmd = &cobra.Command{
	Use:       "power on|off",
	Short:     "Switch the fixture on or off",
	Long:      "Switch the fixture on or off.\n\n" + targetHelp,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		switch strings.ToLower(args[0]) {
		case "on":
			return runSend(cmd, command.PowerOn())
		case "off":
			return runSend(cmd, command.PowerOff())
		default:
			return fmt.Errorf("invalid power state %q: must be on or off", args[0])
		}
	},
}

var colorCmd = &cobra.Command{
	Use:   "color <#rrggbb | r g b>",
	Short: "Set a static color",
	Long: `Set the fixture color.

Examples:
  lotus color '#ff8800' --name ELK
  lotus color 255 136 0 --address AA:BB:CC:DD:EE:FF

` + targetHelp,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 && len(args) != 3 {
			return fmt.Errorf("expected #rrggbb or three channels, got %d arguments", len(args))
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := command.ParseColor(args...)
		if err != nil {
			return err
		}
		return runSend(cmd, command.SetColorValue(c))
	},
}

var brightnessCmd = &cobra.Command{
	Use:   "brightness <0-255>",
	Short: "Set the brightness",
	Long:  "Set the brightness (0-255).\n\n" + targetHelp,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := parseNumber(args[0], "brightness")
		if err != nil {
			return err
		}
		c, err := command.SetBrightness(v)
		if err != nil {
			return err
		}
		return runSend(cmd, c)
	},
}

var modeCmd = &cobra.Command{
	Use:   "mode <name>",
	Short: "Select a lighting mode",
	Long: fmt.Sprintf("Select one of the built-in lighting modes: %s.\n\n%s",
		strings.Join(command.ModeNames(), ", "), targetHelp),
	Args:      cobra.ExactArgs(1),
	ValidArgs: command.ModeNames(),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := command.SetMode(args[0])
		if err != nil {
			return err
		}
		return runSend(cmd, c)
	},
}

var speedCmd = &cobra.Command{
	Use:   "speed <1-100>",
	Short: "Set the effect speed",
	Long:  "Set the speed of the animated modes (1-100).\n\n" + targetHelp,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := parseNumber(args[0], "speed")
		if err != nil {
			return err
		}
		c, err := command.SetEffectSpeed(v)
		if err != nil {
			return err
		}
		return runSend(cmd, c)
	},
}

func init() {
	for _, c := range []*cobra.Command{powerCmd, colorCmd, brightnessCmd, modeCmd, speedCmd} {
		c.Flags().StringP("address", "a", "", "Fixture address")
		c.Flags().StringP("name", "n", "", "Fixture name prefix (scans for the first match)")
	}
}

func parseNumber(s, what string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a number", command.ErrInvalidCommand, what, s)
	}
	return v, nil
}

// runSend connects to the target, sends c once and records the new value in
// the settings file.
func runSend(cmd *cobra.Command, c command.Command) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	address, _ := cmd.Flags().GetString("address")
	name, _ := cmd.Flags().GetString("name")
	if address == "" && name == "" {
		name = a.cfg.NamePrefix
	}
	if address == "" && name == "" {
		return runner.ErrNoTarget
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	out := cmd.OutOrStdout()
	ctx, cancel := interruptContext(out, c.Kind().String())
	defer cancel()

	current := a.store.Load()
	opts := &runner.Options{
		Address:     address,
		Name:        name,
		ScanTimeout: a.cfg.ScanTimeout,
		ServiceUUID: a.cfg.ServiceUUID,
		Session:     a.sessionOptions(),
		Initial: session.CommandState{
			Color:       current.Color,
			Brightness:  current.Brightness,
			Mode:        current.Mode,
			EffectSpeed: current.EffectSpeed,
		},
	}

	target := address
	if target == "" {
		target = name
	}
	progress := NewProgressPrinter(cmd.ErrOrStderr(), fmt.Sprintf("Sending %s to %s", c, target), "Connecting", "Connected", "Failed")
	progress.Start()
	defer progress.Stop()

	sentTo, err := runner.Run(ctx, a.transport(), opts, a.logger, progress.Callback(),
		func(ctx context.Context, s *session.Session) (string, error) {
			if err := s.Send(ctx, c); err != nil {
				return "", err
			}
			d, _ := s.Device()
			return d.DisplayName(), nil
		})
	if err != nil {
		return err
	}
	progress.Stop()

	if err := a.store.Save(current.Apply(c)); err != nil {
		a.logger.WithError(err).Warn("Failed to save settings")
	}

	fmt.Fprintf(out, "OK: %s sent to %s\n", c, sentTo)
	return nil
}
