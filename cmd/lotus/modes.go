package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/lotus/internal/command"
	"github.com/srg/lotus/preview"
)

var modesCmd = &cobra.Command{
	Use:   "modes",
	Short: "List the lighting modes",
	Long:  `List every built-in lighting mode with its protocol code and preview colors.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		current := a.store.Load()
		writeModes(cmd.OutOrStdout(), current.Color, current.Mode)
		return nil
	},
}

func writeModes(w io.Writer, current command.Color, selected command.Mode) {
	preview.Each(current, func(m command.Mode, cycle []command.Color) {
		marker := " "
		if m == selected {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %-8s 0x%02x  %s  %s\n", marker, m, m.Code(), swatchStrip(cycle), hexList(cycle))
	})
}

// swatch renders c as a two-cell colored block.
func swatch(c command.Color) string {
	return color.BgRGB(int(c.R), int(c.G), int(c.B)).Sprint("  ")
}

func swatchStrip(cycle []command.Color) string {
	var b strings.Builder
	for _, c := range cycle {
		b.WriteString(swatch(c))
	}
	return b.String()
}

func hexList(cycle []command.Color) string {
	parts := make([]string, len(cycle))
	for i, c := range cycle {
		parts[i] = c.Hex()
	}
	return strings.Join(parts, " ")
}
