package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/cashplan-fin/cashplan-fin/cmd/cashplan/cli"
	"github.com/cashplan-fin/cashplan-fin/internal/app"
	"github.com/cashplan-fin/cashplan-fin/internal/forecast"
	"github.com/cashplan-fin/cashplan-fin/internal/platform/db"
)

const cliUsage = `usage: cashplan <command>

commands:
  jobs trigger <plan:generate|rules:apply_pending|forecast:refresh|idempotency:cleanup>
  jobs stats
  jobs scheduled
  forecast backfill --from YYYY-MM-DD --to YYYY-MM-DD [--mode dry|apply] [--source file.csv] [--json]

running without a command starts the HTTP server.
`

// runCLI dispatches operational subcommands. The exit code is returned to
// main rather than called directly so deferred cleanup still runs.
func runCLI(ctx context.Context, args []string) int {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	switch args[0] {
	case "jobs":
		return runJobsCommand(ctx, cfg, args[1:])
	case "forecast":
		return runForecastCommand(ctx, cfg, args[1:])
	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, cliUsage)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", args[0], cliUsage)
		return 1
	}
}

func runJobsCommand(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, cliUsage)
		return 1
	}

	jc, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobs cli: %v\n", err)
		return 1
	}
	defer jc.Close() //nolint:errcheck

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: cashplan jobs trigger <job>")
			return 1
		}
		info, err := jc.Trigger(ctx, args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "trigger %s: %v\n", args[1], err)
			return 1
		}
		fmt.Printf("enqueued %s (task %s, queue %s)\n", args[1], info.ID, info.Queue)
		return 0
	case "stats":
		stats, err := jc.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "inspect queue: %v\n", err)
			return 1
		}
		fmt.Printf("queue %s: pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return 0
	case "scheduled":
		tasks, err := jc.ListScheduled(ctx, 10)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list scheduled: %v\n", err)
			return 1
		}
		if len(tasks) == 0 {
			fmt.Println("no scheduled tasks")
			return 0
		}
		for _, t := range tasks {
			fmt.Printf("%s  %s  next=%s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02 15:04:05"))
		}
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown jobs command %q\n", args[0])
		return 1
	}
}

func runForecastCommand(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 || args[0] != "backfill" {
		fmt.Fprintln(os.Stderr, "usage: cashplan forecast backfill [flags]")
		return 1
	}

	fs := flag.NewFlagSet("forecast backfill", flag.ContinueOnError)
	from := fs.String("from", "", "start date (YYYY-MM-DD)")
	to := fs.String("to", "", "end date (YYYY-MM-DD)")
	mode := fs.String("mode", "dry", "dry or apply")
	source := fs.String("source", "", "CSV of date,balance rows; - reads stdin")
	jsonOut := fs.Bool("json", false, "machine readable output")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect postgres: %v\n", err)
		return 1
	}
	defer pool.Close()

	svc := forecast.NewService(forecast.NewRepository(pool), cfg.ForecastMaxAge, app.NewLogger(cfg))
	ops, err := cli.NewForecastOpsCLI(svc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "forecast cli: %v\n", err)
		return 1
	}
	return ops.BackfillCommand(ctx, cli.ForecastBackfillOptions{
		From:       *from,
		To:         *to,
		Mode:       cli.ForecastBackfillMode(*mode),
		Source:     *source,
		JSONOutput: *jsonOut,
	})
}
