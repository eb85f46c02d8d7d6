package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/lotus/internal/settings"
)

var settingsReset bool

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show the remembered fixture settings",
	Long: `Print the settings restored at startup (color, brightness, mode and effect speed)
and the file they are kept in.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		current := a.store.Load()
		if settingsReset {
			current = settings.Defaults()
			if err := a.store.Save(current); err != nil {
				return err
			}
		}

		data, err := json.MarshalIndent(current, "", "  ")
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "# %s\n%s\n", a.store.Path(), data)
		return nil
	},
}

func init() {
	settingsCmd.Flags().BoolVar(&settingsReset, "reset", false, "Restore and save the default settings")
}
