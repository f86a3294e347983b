package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/livinlefevreloca/trmnlwatch/internal/db"
	"github.com/spf13/cobra"
)

func newReadingsCmd() *cobra.Command {
	var (
		flagDevice string
		flagLimit  int
	)

	cmd := &cobra.Command{
		Use:   "readings",
		Short: "Show recorded battery readings, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagLimit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", flagLimit)
			}

			database, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer database.Close()

			readings, err := database.GetBatteryReadings(cmd.Context(), flagDevice, flagLimit)
			if err != nil {
				return fmt.Errorf("reading battery history: %w", err)
			}
			total, err := database.CountBatteryReadings(cmd.Context())
			if err != nil {
				return fmt.Errorf("counting battery readings: %w", err)
			}

			out := cmd.OutOrStdout()
			if err := printReadings(out, readings); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d of %d readings shown\n", len(readings), total)
			return nil
		},
	}

	cmd.Flags().StringVar(&flagDevice, "device", "", "Only show readings for this device ID")
	cmd.Flags().IntVar(&flagLimit, "limit", 50, "Maximum number of readings to show")
	return cmd
}

func printReadings(w io.Writer, readings []db.BatteryReading) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COLLECTED\tDEVICE\tNAME\tBATTERY\tVOLTAGE")
	for _, r := range readings {
		voltage := "-"
		if r.Voltage != nil {
			voltage = fmt.Sprintf("%.2fV", *r.Voltage)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f%%\t%s\n",
			r.CollectedAt.Local().Format(time.DateTime),
			r.DeviceID,
			r.DeviceName,
			r.PercentCharged,
			voltage)
	}
	return tw.Flush()
}
