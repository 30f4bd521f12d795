package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/minionszyw/leeksaver/internal/jobs"
	"github.com/minionszyw/leeksaver/internal/schedule"
	"github.com/urfave/cli/v2"
)

// serveCommand runs the long-lived service: worker pool plus the generated
// schedule, until SIGINT/SIGTERM.
func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the sync service",
		Action: func(c *cli.Context) error {
			a, err := newApp()
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer a.close()

			a.log.Info().Msg("starting leeksaver")

			triggers, err := schedule.Generate(a.registry, schedule.Knobs{
				L1DailyTime:         a.cfg.L1DailyTime,
				L2IntervalSeconds:   a.cfg.L2IntervalSeconds,
				L2TaskOffsetSeconds: a.cfg.L2TaskOffsetSeconds,
				RealtimeCacheTTL:    a.cfg.RealtimeCacheTTL,
			})
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			a.runtime.Start()
			defer a.runtime.Stop()

			runner := schedule.NewRunner(a.registry, a.runtime, a.log)
			if err := runner.Bind(triggers); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			runner.Start()
			defer runner.Stop()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			a.log.Info().Msg("shutting down")
			return nil
		},
	}
}

// syncCommand groups the ad-hoc trigger and status surfaces.
func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "job control",
		Subcommands: []*cli.Command{
			{
				Name:      "trigger",
				Usage:     "enqueue an ad-hoc sync job",
				ArgsUsage: "<syncer-name>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "code", Usage: "restrict to one symbol"},
					&cli.StringFlag{Name: "date", Usage: "restrict to one date (YYYY-MM-DD)"},
				},
				Action: triggerAction,
			},
			{
				Name:  "status",
				Usage: "print task statuses",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "task", Usage: "show one task only"},
				},
				Action: statusAction,
			},
		},
	}
}

func triggerAction(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return cli.Exit("syncer name required", 2)
	}

	a, err := newApp()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer a.close()

	task, ok := a.registry.Lookup(name)
	if !ok {
		return cli.Exit(fmt.Sprintf("unknown syncer %q", name), 2)
	}

	fn := task.Callable
	if code := c.String("code"); code != "" {
		var date *time.Time
		if ds := c.String("date"); ds != "" {
			t, err := time.Parse("2006-01-02", ds)
			if err != nil {
				return cli.Exit(fmt.Sprintf("bad date %q: %v", ds, err), 2)
			}
			date = &t
		}
		switch name {
		case "daily_quotes":
			fn = a.syncers.DailyQuotesForCode(code, date)
		default:
			return cli.Exit(fmt.Sprintf("syncer %q does not take --code", name), 2)
		}
	}

	// Ad-hoc triggers run synchronously so the exit code reflects the
	// outcome, still under the task's deadline and dedup key.
	err = a.runtime.Run(jobs.Job{
		Name:     task.Name,
		DedupKey: "task:" + task.Name,
		Deadline: task.Deadline,
		Fn:       fn,
	})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fmt.Printf("enqueued %s\n", name)
	return nil
}

func statusAction(c *cli.Context) error {
	a, err := newApp()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer a.close()

	ctx := context.Background()
	filter := c.String("task")

	statuses := a.runtime.Statuses()
	if filter != "" {
		if st, ok := a.runtime.StatusOf(filter); ok {
			statuses = []jobs.Status{st}
		} else {
			statuses = nil
		}
	}

	if len(statuses) == 0 {
		// A fresh process has no in-memory run history; the sync_errors
		// table still tells the operator what last went wrong.
		fmt.Println("no runs recorded in this process")
	}
	for _, st := range statuses {
		fmt.Printf("%-24s state=%-10s last_run=%s next_run=%s progress=%d%% last_error=%s\n",
			st.Name, st.State, fmtTime(st.LastRun), fmtTime(st.NextRun), st.Progress, orDash(st.LastError))
	}

	open, err := a.syncErrs.Unresolved(ctx, filter)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if len(open) > 0 {
		fmt.Printf("\nunresolved sync errors (%d):\n", len(open))
		for _, e := range open {
			fmt.Printf("  %-24s code=%-8s kind=%-20s retries=%d %s\n",
				e.TaskName, orDash(e.TargetCode), e.Kind, e.RetryCount, e.Message)
		}
	}
	return nil
}

func doctorCommand() *cli.Command {
	return &cli.Command{
		Name:  "doctor",
		Usage: "data quality audit",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the audit synchronously and print the JSON report",
				Action: func(c *cli.Context) error {
					a, err := newApp()
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					defer a.close()

					// Backfill jobs need workers to land on.
					a.runtime.Start()
					defer a.runtime.Stop()

					ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
					defer cancel()

					report, err := a.doctor.Run(ctx)
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}

					blob, err := json.MarshalIndent(report, "", "  ")
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					fmt.Println(string(blob))

					if report.ActionRequired {
						return cli.Exit("", 1)
					}
					return nil
				},
			},
		},
	}
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
