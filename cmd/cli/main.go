package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/spending-tracker/internal/app"
	"github.com/dvloznov/spending-tracker/internal/config"
	"github.com/dvloznov/spending-tracker/internal/domain"
	"github.com/dvloznov/spending-tracker/internal/logger"
	"github.com/dvloznov/spending-tracker/internal/pipeline"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "spending",
		Short:         "Mirror a public body's spending decisions into a local database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("SPENDING_CONFIG"), "Path to a YAML config file (or set SPENDING_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log.level")

	rootCmd.AddCommand(syncCmd(opts, domain.SyncHistorical))
	rootCmd.AddCommand(syncCmd(opts, domain.SyncIncremental))
	rootCmd.AddCommand(replayCmd(opts))
	rootCmd.AddCommand(runsCmd(opts))
	rootCmd.AddCommand(configCmd(opts))

	return rootCmd
}

// setup loads the config and returns a context carrying the configured logger.
// The context is cancelled on SIGINT or SIGTERM.
func (o *rootOptions) setup() (context.Context, context.CancelFunc, *config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}

	log, err := logger.NewWithOptions(logger.Options{Level: cfg.Log.Level, Format: logger.Format(cfg.Log.Format)})
	if err != nil {
		return nil, nil, nil, err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return logger.WithContext(ctx, log), cancel, cfg, nil
}

type rangeFlags struct {
	from string
	to   string
}

func (f *rangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.from, "from", "", "Start date, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "End date, exclusive (YYYY-MM-DD)")
}

func (f *rangeFlags) parse() (from, to *civil.Date, err error) {
	if from, err = parseDateFlag("from", f.from); err != nil {
		return nil, nil, err
	}
	if to, err = parseDateFlag("to", f.to); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func parseDateFlag(name, value string) (*civil.Date, error) {
	if value == "" {
		return nil, nil
	}
	d, err := civil.ParseDate(value)
	if err != nil {
		return nil, fmt.Errorf("--%s: expected YYYY-MM-DD, got %q", name, value)
	}
	return &d, nil
}

func syncCmd(opts *rootOptions, kind domain.SyncKind) *cobra.Command {
	var rf rangeFlags

	use, short := "sync", "Fetch recent decisions starting from the last checkpoint"
	if kind == domain.SyncHistorical {
		use, short = "backfill", "Fetch the full history window by window"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := rf.parse()
			if err != nil {
				return err
			}

			ctx, cancel, cfg, err := opts.setup()
			if err != nil {
				return err
			}
			defer cancel()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := app.Run(ctx, a.Orchestrator, kind, from, to)
			if report != nil {
				printReport(cmd, report)
			}
			return err
		},
	}
	rf.register(cmd)
	return cmd
}

func printReport(cmd *cobra.Command, r *pipeline.RunReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %d (%s) %s: %s\n", r.RunID, r.Kind, r.Window, r.Status)
	fmt.Fprintf(out, "  fetched:    %d\n", r.Fetched)
	fmt.Fprintf(out, "  decisions:  %d\n", r.Stats.DecisionsUpserted)
	fmt.Fprintf(out, "  inserted:   %d\n", r.Stats.ExpensesInserted)
	fmt.Fprintf(out, "  updated:    %d\n", r.Stats.ExpensesUpdated)
	if r.Mismatches > 0 {
		fmt.Fprintf(out, "  count mismatches: %d\n", r.Mismatches)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(out, "  failed window %s (%s) %s: %v\n", f.Type, f.Type.Label(), f.Window, f.Err)
	}
	if r.RefreshErr != nil {
		fmt.Fprintf(out, "  aggregate refresh failed: %v\n", r.RefreshErr)
	}
	if r.ExportErr != nil {
		fmt.Fprintf(out, "  warehouse export failed: %v\n", r.ExportErr)
	}
}

func replayCmd(opts *rootOptions) *cobra.Command {
	var rf rangeFlags

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild the database from archived raw pages without calling the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := rf.parse()
			if err != nil {
				return err
			}
			if (from == nil) != (to == nil) {
				return errors.New("replay: --from and --to must be given together")
			}

			ctx, cancel, cfg, err := opts.setup()
			if err != nil {
				return err
			}
			defer cancel()

			if cfg.Archive.Bucket == "" {
				return errors.New("replay: archive.bucket is not configured")
			}

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			var w domain.Window
			if from != nil {
				w = domain.Window{From: *from, To: *to}
			}
			report, err := a.Replayer.Replay(ctx, w)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Replayed %d window(s), %d page(s), %d decision(s): %d inserted, %d unchanged\n",
				report.Windows, report.Pages, report.Decisions, report.Stats.ExpensesInserted, report.Stats.ExpensesUnchanged)
			return nil
		},
	}
	rf.register(cmd)
	return cmd
}

func runsCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent sync runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, cfg, err := opts.setup()
			if err != nil {
				return err
			}
			defer cancel()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.Store.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			printRuns(cmd, runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list")
	return cmd
}

func printRuns(cmd *cobra.Command, runs []domain.SyncRun) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tFROM\tTO\tFETCHED\tINSERTED\tFAILED\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.ID, r.Kind, r.Status, r.From, r.To, r.RecordsFetched, r.RecordsInserted, r.FailedWindows,
			r.StartedAt.Local().Format(time.DateTime))
	}
	tw.Flush()
}

func configCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg.Redacted())
		},
	}
}
