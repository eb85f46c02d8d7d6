package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/srg/lotus/internal/command"
	"github.com/srg/lotus/preview"
	"golang.org/x/term"
)

var previewCycles int

var previewCmd = &cobra.Command{
	Use:   "preview <mode>",
	Short: "Show the color cycle of a lighting mode",
	Long: `Animate the preview color cycle of a mode in the terminal.
Nothing is sent to the fixture.

When stdout is not a terminal the cycle is printed once as a list.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: command.ModeNames(),
	RunE:      runPreview,
}

func init() {
	previewCmd.Flags().IntVarP(&previewCycles, "cycles", "c", 3, "Number of full cycles to animate (0 runs until Ctrl+C)")
}

func runPreview(cmd *cobra.Command, args []string) error {
	mode, err := command.ParseMode(args[0])
	if err != nil {
		return err
	}
	if previewCycles < 0 {
		return fmt.Errorf("invalid cycles %d: must be 0 or more", previewCycles)
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	current := a.store.Load()
	out := cmd.OutOrStdout()

	if f, ok := out.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		writePreviewList(out, mode, preview.Palette(mode.String(), current.Color))
		return nil
	}

	ctx, cancel := interruptContext(out, "preview")
	defer cancel()

	cycle := preview.New(mode.String(), current.Color)

	remaining := previewCycles * len(cycle.Cycle())
	cycle.Run(ctx, a.cfg.PreviewInterval, func(c command.Color) {
		fmt.Fprintf(out, "%s%s %s %s", clearLineSequence, swatch(c)+swatch(c), mode, c.Hex())
		if previewCycles == 0 {
			return
		}
		if remaining--; remaining <= 0 {
			cancel()
		}
	}, a.logger)

	fmt.Fprintln(out)
	return nil
}

func writePreviewList(w io.Writer, mode command.Mode, cycle []command.Color) {
	fmt.Fprintf(w, "%s (0x%02x)\n", mode, mode.Code())
	for i, c := range cycle {
		fmt.Fprintf(w, "  %d  %s  %s\n", i+1, swatch(c), c.Hex())
	}
}
