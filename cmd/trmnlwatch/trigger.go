package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/livinlefevreloca/trmnlwatch/internal/jobs"
	"github.com/livinlefevreloca/trmnlwatch/internal/runlog"
	"github.com/livinlefevreloca/trmnlwatch/internal/scheduler"
	"github.com/spf13/cobra"
)

func newTriggerCmd() *cobra.Command {
	var flagTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "trigger <job>",
		Short: "Run one job now and wait for its outcome",
		Long: fmt.Sprintf("Run one job now and wait for its outcome.\n\nJobs: %s",
			strings.Join(jobKindNames(), ", ")),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := jobs.Kind(args[0])

			database, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer database.Close()

			built, err := buildJobs(cfg, database, logger)
			if err != nil {
				return err
			}

			runs, err := runlog.New(cfg.RunLog, database, logger)
			if err != nil {
				return err
			}
			runs.Start()

			// Manual runs skip resource conditions.
			s, err := scheduler.New(cfg.Scheduler, built, scheduler.AlwaysMet{}, runs, jobs.RealClock{}, logger)
			if err != nil {
				runs.Shutdown()
				return err
			}
			s.Start(cmd.Context())
			defer s.Shutdown()

			if err := s.TriggerNow(kind); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
			defer cancel()

			outcome, err := waitForOutcome(ctx, s, kind)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", kind, outcome)
			if outcome != jobs.Success.String() {
				return fmt.Errorf("job %s finished with %s", kind, outcome)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&flagTimeout, "timeout", 2*time.Minute, "How long to wait for the run to finish")
	return cmd
}

func waitForOutcome(ctx context.Context, s *scheduler.Scheduler, kind jobs.Kind) (string, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("waiting for %s: %w", kind, ctx.Err())
		case <-ticker.C:
		}

		all, err := s.Status(ctx)
		if err != nil {
			return "", err
		}
		for _, st := range all {
			if st.Kind == kind && !st.InFlight && st.LastOutcome != "" {
				return st.LastOutcome, nil
			}
		}
	}
}

func jobKindNames() []string {
	return []string{
		string(jobs.KindBatteryRecorder),
		string(jobs.KindLowBattery),
		string(jobs.KindAnnouncementsSync),
		string(jobs.KindBlogPostsSync),
	}
}
