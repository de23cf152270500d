package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xtendabl/expensabl/internal/engine"
	"github.com/xtendabl/expensabl/internal/model"
)

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage template schedules",
		Long:  `Arm, pause, resume, and disarm recurring execution of templates.`,
	}

	cmd.AddCommand(setScheduleCmd())
	cmd.AddCommand(pauseScheduleCmd())
	cmd.AddCommand(resumeScheduleCmd())
	cmd.AddCommand(disableScheduleCmd())
	cmd.AddCommand(queueCmd())
	cmd.AddCommand(runSchedulerCmd())

	return cmd
}

func setScheduleCmd() *cobra.Command {
	var (
		interval   string
		at         string
		days       []string
		dayOfMonth string
		every      time.Duration
		start, end string
	)

	cmd := &cobra.Command{
		Use:   "set <id>",
		Short: "Set a template's recurring schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s := &model.Scheduling{
				Enabled:  true,
				Interval: model.Interval(interval),
			}

			if at != "" {
				tod, err := parseTimeOfDay(at)
				if err != nil {
					return err
				}
				s.ExecutionTime = tod
			}
			s.IntervalConfig.DaysOfWeek = days
			if dayOfMonth != "" {
				if strings.EqualFold(dayOfMonth, "last") {
					s.IntervalConfig.DayOfMonth = model.LastDayOfMonth
				} else {
					d, err := strconv.Atoi(dayOfMonth)
					if err != nil {
						return fmt.Errorf("invalid day of month %q", dayOfMonth)
					}
					s.IntervalConfig.DayOfMonth = d
				}
			}
			if every > 0 {
				s.IntervalConfig.IntervalMs = every.Milliseconds()
			}
			if start != "" {
				ms, err := parseDateMillis(start)
				if err != nil {
					return err
				}
				s.StartDate = &ms
			}
			if end != "" {
				ms, err := parseDateMillis(end)
				if err != nil {
					return err
				}
				s.EndDate = &ms
			}

			mgr, _, cleanup, err := openManager(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			t, err := mgr.SetScheduling(ctx, args[0], s)
			if err != nil {
				return err
			}

			if t.Scheduling.NextExecution != nil {
				fmt.Printf("Scheduled %s; next run %s\n", t.Name, formatMillis(*t.Scheduling.NextExecution))
			} else {
				fmt.Printf("Scheduled %s; no upcoming run\n", t.Name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&interval, "interval", "daily", "interval (daily, weekly, monthly, custom)")
	cmd.Flags().StringVar(&at, "at", "09:00", "execution time of day (HH:MM)")
	cmd.Flags().StringSliceVar(&days, "days", nil, "weekdays for weekly schedules (e.g. monday,wednesday)")
	cmd.Flags().StringVar(&dayOfMonth, "day-of-month", "", "day for monthly schedules (1-31 or 'last')")
	cmd.Flags().DurationVar(&every, "every", 0, "interval for custom schedules (e.g. 6h)")
	cmd.Flags().StringVar(&start, "start", "", "no executions before this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "no executions after this date (YYYY-MM-DD)")

	return cmd
}

func pauseScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <id>",
		Short: "Pause a schedule without losing its configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			mgr, _, cleanup, err := openManager(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			t, err := mgr.PauseScheduling(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Paused schedule for %s\n", t.Name)
			return nil
		},
	}
}

func resumeScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <id>",
		Short: "Resume a paused schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			mgr, _, cleanup, err := openManager(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			t, err := mgr.ResumeScheduling(ctx, args[0])
			if err != nil {
				return err
			}
			if t.Scheduling.NextExecution != nil {
				fmt.Printf("Resumed schedule for %s; next run %s\n", t.Name, formatMillis(*t.Scheduling.NextExecution))
			} else {
				fmt.Printf("Resumed schedule for %s\n", t.Name)
			}
			return nil
		},
	}
}

func disableScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <id>",
		Short: "Remove a template's schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			mgr, _, cleanup, err := openManager(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			t, err := mgr.SetScheduling(ctx, args[0], nil)
			if err != nil {
				return err
			}
			fmt.Printf("Disabled schedule for %s\n", t.Name)
			return nil
		},
	}
}

func queueCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show the scheduling queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			repo, cleanup, err := openRepository(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			// far-future horizon lists every armed entry
			entries, err := repo.DueEntries(ctx, time.Now().AddDate(10, 0, 0))
			if err != nil {
				return fmt.Errorf("failed to read scheduling queue: %w", err)
			}

			if asJSON {
				return printJSON(entries)
			}
			if len(entries) == 0 {
				fmt.Println("Scheduling queue is empty.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "Template\tScheduled For\tStatus\tAttempts\tError")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					e.TemplateID, formatMillis(e.ScheduledFor), e.Status, e.Attempts, e.Error)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

func runSchedulerCmd() *cobra.Command {
	var checkInterval time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduling loop in the foreground",
		Long: `Polls the scheduling queue and fires due templates through a dry-run
executor until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			_, repo, cleanup, err := openManager(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			scheduler := engine.NewQueueScheduler(repo, dryRunExecutor{},
				engine.WithCheckInterval(checkInterval))
			scheduler.Start(ctx)
			return nil
		},
	}

	cmd.Flags().DurationVar(&checkInterval, "check-interval", time.Minute, "queue poll interval")
	return cmd
}

func parseTimeOfDay(s string) (model.TimeOfDay, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return model.TimeOfDay{}, fmt.Errorf("invalid time of day %q, want HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return model.TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return model.TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	return model.TimeOfDay{Hour: hour, Minute: minute}, nil
}

func parseDateMillis(s string) (int64, error) {
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return 0, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return model.TimeToMillis(t), nil
}
