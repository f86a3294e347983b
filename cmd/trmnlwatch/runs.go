package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/livinlefevreloca/trmnlwatch/internal/db"
	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	var (
		flagJob   string
		flagLimit int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show the job run history, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagLimit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", flagLimit)
			}

			database, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer database.Close()

			runs, err := database.GetJobRuns(cmd.Context(), flagJob, flagLimit)
			if err != nil {
				return fmt.Errorf("reading job runs: %w", err)
			}
			return printRuns(cmd.OutOrStdout(), runs)
		},
	}

	cmd.Flags().StringVar(&flagJob, "job", "", "Only show runs of this job")
	cmd.Flags().IntVar(&flagLimit, "limit", 20, "Maximum number of runs to show")
	return cmd
}

func printRuns(w io.Writer, runs []db.JobRun) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tJOB\tTRIGGER\tOUTCOME\tDURATION\tERROR")
	for _, r := range runs {
		errMsg := ""
		if r.Error != nil {
			errMsg = *r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			r.JobKind,
			r.TriggeredBy,
			r.Outcome,
			r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond),
			errMsg)
	}
	return tw.Flush()
}
