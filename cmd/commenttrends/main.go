package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"CommentTrends/internal/aggregate"
	"CommentTrends/internal/app"
	"CommentTrends/internal/config"
	"CommentTrends/internal/domain"
	"CommentTrends/internal/logging"
	"CommentTrends/internal/usecase"
)

const usage = `usage: commenttrends <command> [flags]

commands:
  refresh   collect comments, cluster them and write a new snapshot
  serve     run the trends HTTP API (and the cron refresh when configured)
  trends    print topic counts per time bucket from the current snapshot
  summary   print the cluster summary of the current snapshot's run
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	if err := execute(ctx, cfg, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, cfg config.Config, command string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)

	switch command {
	case "refresh":
		refetch := fs.Bool("refetch", false, "ignore the raw comment cache and call the API")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return withApp(ctx, cfg, func(a *app.Application) error {
			run, err := a.Refresh(ctx, *refetch)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "run %s: %s comments in %d clusters\n",
				run.ID, humanize.Comma(int64(run.CommentCount)), run.NClusters)
			return printSummary(out, run)
		})

	case "serve":
		addr := fs.String("addr", cfg.Server.Addr, "listen address")
		if err := fs.Parse(args); err != nil {
			return err
		}
		cfg.Server.Addr = *addr
		return withApp(ctx, cfg, func(a *app.Application) error {
			return a.Serve(ctx)
		})

	case "trends":
		from := fs.String("from", "", "first day, YYYY-MM-DD (default: earliest comment)")
		to := fs.String("to", "", "last day, YYYY-MM-DD (default: latest comment)")
		granularity := fs.String("granularity", "daily", "daily, weekly or monthly")
		weekEnd := fs.String("week-end", "SUN", "weekday that closes a weekly bucket")
		fill := fs.Bool("fill", false, "emit zero counts for empty buckets")
		asJSON := fs.Bool("json", false, "print JSON instead of a table")
		if err := fs.Parse(args); err != nil {
			return err
		}
		req, err := trendRequest(*from, *to, *granularity, *weekEnd, *fill)
		if err != nil {
			return err
		}
		return withApp(ctx, cfg, func(a *app.Application) error {
			report, err := a.Trends().Trends(ctx, req)
			if err != nil {
				return err
			}
			if *asJSON {
				return writeJSON(out, report)
			}
			return printTrends(out, report)
		})

	case "summary":
		asJSON := fs.Bool("json", false, "print JSON instead of text")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return withApp(ctx, cfg, func(a *app.Application) error {
			run, err := a.Trends().CurrentRun(ctx)
			if err != nil {
				return err
			}
			if *asJSON {
				return writeJSON(out, run)
			}
			return printSummary(out, run)
		})

	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	}

	return fmt.Errorf("unknown command %q\n%s", command, usage)
}

func withApp(ctx context.Context, cfg config.Config, fn func(*app.Application) error) error {
	logger := logging.New(cfg.Logging.Level)
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()
	return fn(application)
}

func trendRequest(from, to, granularity, weekEnd string, fill bool) (usecase.TrendRequest, error) {
	g, err := aggregate.ParseGranularity(granularity)
	if err != nil {
		return usecase.TrendRequest{}, err
	}
	wd, err := aggregate.ParseWeekday(weekEnd)
	if err != nil {
		return usecase.TrendRequest{}, err
	}
	req := usecase.TrendRequest{Granularity: g, WeekEnd: wd, FillEmpty: fill}
	if from != "" {
		if req.From, err = time.Parse(time.DateOnly, from); err != nil {
			return usecase.TrendRequest{}, fmt.Errorf("-from: %w", err)
		}
	}
	if to != "" {
		if req.To, err = time.Parse(time.DateOnly, to); err != nil {
			return usecase.TrendRequest{}, fmt.Errorf("-to: %w", err)
		}
	}
	return req, nil
}

func printTrends(out io.Writer, report usecase.TrendReport) error {
	fmt.Fprintf(out, "run %s, %s to %s, %s: %s comments\n",
		report.RunID, report.From.Format(time.DateOnly), report.To.Format(time.DateOnly),
		report.Granularity, humanize.Comma(int64(report.Total)))

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tTOPIC\tCOMMENTS")
	for _, p := range report.Points {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", p.Bucket.Format(time.DateOnly), p.Topic, p.Count)
	}
	return tw.Flush()
}

func printSummary(out io.Writer, run domain.Run) error {
	labels := run.Labels()
	for _, c := range run.Clusters {
		fmt.Fprintf(out, "\ncluster %d (%s): %s comments\n", c.ID, labels[c.ID], humanize.Comma(int64(c.Size)))
		if len(c.TopTerms) > 0 {
			fmt.Fprintf(out, "  top terms: %s\n", strings.Join(c.TopTerms, ", "))
		}
		for _, ex := range c.Examples {
			fmt.Fprintf(out, "  - %s\n", ex)
		}
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
