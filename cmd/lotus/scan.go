package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/lotus/internal/command"
	"github.com/srg/lotus/internal/device"
	"github.com/srg/lotus/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for light fixtures",
	Long: `Scan for Bluetooth Low Energy devices nearby and list them in discovery order.

Examples:
  # Scan for 10 seconds
  lotus scan

  # Only fixtures whose name starts with ELK, as JSON
  lotus scan --name ELK --format json

  # Only devices advertising the light control service
  lotus scan --services fff0`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration    time.Duration
	scanFormat      string
	scanName        string
	scanServices    []string
	scanAllowList   []string
	scanBlockList   []string
	scanNoDuplicate bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (default from config, 10s)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().StringVarP(&scanName, "name", "n", "", "Only devices whose name starts with this prefix")
	scanCmd.Flags().StringSliceVarP(&scanServices, "services", "s", nil, "Filter by service UUIDs")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show devices with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Hide devices with these addresses")
	scanCmd.Flags().BoolVar(&scanNoDuplicate, "no-duplicates", true, "Filter duplicate advertisements")
}

func runScan(cmd *cobra.Command, _ []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", scanFormat)
	}

	var serviceUUIDs []string
	if len(scanServices) > 0 {
		var err error
		serviceUUIDs, err = device.ValidateUUID(scanServices...)
		if err != nil {
			return fmt.Errorf("invalid service UUID: %w", err)
		}
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	opts := &scanner.Options{
		Duration:        a.cfg.ScanTimeout,
		DuplicateFilter: scanNoDuplicate,
		ServiceUUIDs:    serviceUUIDs,
		AllowList:       scanAllowList,
		BlockList:       scanBlockList,
		NamePrefix:      a.cfg.NamePrefix,
	}
	if scanDuration > 0 {
		opts.Duration = scanDuration
	}
	if scanName != "" {
		opts.NamePrefix = scanName
	}

	out := cmd.OutOrStdout()
	ctx, cancel := interruptContext(out, "scan")
	defer cancel()

	progress := NewCountdownProgressPrinter(cmd.ErrOrStderr(), "Scanning for BLE devices", "Scanning", opts.Duration)
	progress.Start()

	scan := scanner.NewScanner(a.transport(), a.logger).StartScan(ctx, opts)
	snap, err := scan.Wait(context.Background())
	progress.Stop()
	if err != nil {
		return err
	}

	switch snap.Status {
	case scanner.StatusFailed:
		return snap.Err
	case scanner.StatusCancelled:
		if len(snap.Devices) == 0 {
			return context.Canceled
		}
	}

	return displayDevices(out, snap.Devices, scanFormat)
}

func displayDevices(w io.Writer, devices []device.Descriptor, format string) error {
	if format == "json" {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(devices)
	}

	if len(devices) == 0 {
		fmt.Fprintln(w, "No devices found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESS\tRSSI\tSERVICES")
	fmt.Fprintln(tw, strings.Repeat("-", 72))

	highlight := color.New(color.FgGreen).SprintFunc()
	for _, d := range devices {
		name := d.DisplayName()
		if len(name) > 24 {
			name = name[:21] + "..."
		}
		if d.HasService(command.ServiceUUID) {
			name = highlight(name)
		}

		services := strings.Join(d.Services, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}

		fmt.Fprintf(tw, "%s\t%s\t%d dBm\t%s\n", name, d.Address, d.RSSI, services)
	}
	return tw.Flush()
}
