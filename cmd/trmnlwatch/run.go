package main

import (
	"os/signal"
	"syscall"

	"github.com/livinlefevreloca/trmnlwatch/internal/jobs"
	"github.com/livinlefevreloca/trmnlwatch/internal/runlog"
	"github.com/livinlefevreloca/trmnlwatch/internal/scheduler"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

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

			checker := scheduler.NewSystemConditions(cfg.API.BaseURL, logger)
			s, err := scheduler.New(cfg.Scheduler, built, checker, runs, jobs.RealClock{}, logger)
			if err != nil {
				runs.Shutdown()
				return err
			}

			s.Start(ctx)
			if err := s.ApplySchedules(); err != nil {
				s.Shutdown()
				return err
			}

			logger.Info("trmnlwatch is running")
			<-ctx.Done()

			logger.Info("shutting down gracefully")
			s.Shutdown()
			return nil
		},
	}
}
