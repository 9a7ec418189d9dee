package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/dailyreport/internal/dataset"
	"github.com/TobiSchelling/dailyreport/internal/dispatch"
	"github.com/TobiSchelling/dailyreport/internal/pipeline"
)

// --- run command ---

var (
	dryRun  bool
	outDir  string
	runDate string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: extract -> merge -> aggregate -> report -> chart -> dispatch",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		day, err := runDay()
		if err != nil {
			return err
		}

		var disp pipeline.Dispatcher
		switch {
		case outDir != "":
			disp = &dispatch.Directory{Dir: outDir}
		case dryRun:
			disp = &dispatch.Writer{W: os.Stdout}
		default:
			tg, err := newTelegram()
			if err != nil {
				return err
			}
			disp = tg
		}

		src, closeSrc, err := openSource(ctx)
		if err != nil {
			return err
		}
		defer closeSrc()

		result := newPipeline(src, disp, nil).Run(ctx, day)
		printSteps(result)
		if err := result.Err(); err != nil {
			return err
		}

		switch {
		case outDir != "":
			fmt.Printf("\nReport written to %s\n", outDir)
		case !dryRun:
			fmt.Printf("\nReport sent to %s\n", cfg.Telegram.Chat)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the report instead of sending it")
	runCmd.Flags().StringVar(&outDir, "out", "", "Write the report and chart to this directory instead of sending them")
	runCmd.Flags().StringVar(&runDate, "date", "", "Run as if today were this date (YYYY-MM-DD)")
}

// runDay is --date or today in the configured timezone.
func runDay() (time.Time, error) {
	if runDate != "" {
		d, err := dataset.ParseDay(runDate)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --date: %w", err)
		}
		return d, nil
	}
	loc, err := cfg.Location()
	if err != nil {
		return time.Time{}, err
	}
	return today(loc), nil
}

func today(loc *time.Location) time.Time {
	return dataset.Day(time.Now().In(loc))
}

func printSteps(result *pipeline.Result) {
	fmt.Printf("Window: %s\n", result.Window)
	for i, step := range result.Steps {
		fmt.Printf("\nStep %d/6: %s\n", i+1, step.Name)
		if step.Err != nil {
			fmt.Printf("  Error: %v\n", step.Err)
		} else {
			fmt.Printf("  %s\n", step.Summary)
		}
	}
}

// --- schedule command ---

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Send the report every day at schedule.at until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		hour, minute, err := cfg.ScheduleTime()
		if err != nil {
			return err
		}
		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		tg, err := newTelegram()
		if err != nil {
			return err
		}

		for {
			next := nextRun(time.Now().In(loc), hour, minute)
			logger.Infof("Next report at %s", next.Format(time.RFC3339))

			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				logger.Info("Scheduler stopped")
				return nil
			case <-timer.C:
			}

			day := dataset.Day(next)
			policy := retryPolicy(ctx, cfg.Schedule.Retries, cfg.Schedule.RetryDelay)
			err := runWithRetry(policy, func() error {
				return scheduledRun(ctx, tg, day)
			})
			if err != nil {
				logger.Errorf("Report for %s failed: %v", day.Format(dataset.DateLayout), err)
			}
		}
	},
}

// scheduledRun is one attempt: a fresh source connection and a full run.
func scheduledRun(ctx context.Context, disp pipeline.Dispatcher, day time.Time) error {
	src, closeSrc, err := openSource(ctx)
	if err != nil {
		return err
	}
	defer closeSrc()

	return newPipeline(src, disp, nil).Run(ctx, day).Err()
}

// nextRun returns the first hour:minute in now's location strictly after now.
func nextRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// retryPolicy retries a failed run a fixed number of times with a fixed delay.
func retryPolicy(ctx context.Context, retries int, delay time.Duration) backoff.BackOffContext {
	return backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(retries)),
		ctx,
	)
}

func runWithRetry(policy backoff.BackOffContext, op func() error) error {
	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := op()
		if err != nil && policy.Context().Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		logger.Warnf("Attempt %d failed: %v; retrying in %s", attempt, err, wait)
	})
}
