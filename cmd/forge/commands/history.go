package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/forgearch/forge/pkg/stores"
)

// errHistoryDisabled is returned when no history path is configured.
var errHistoryDisabled = errors.New("run history is disabled; set history.path or --history")

func newHistoryCommand(opts *globalOptions) *cobra.Command {
	var (
		limit  int
		offset int
		output string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past runs",
		Long: `Show the runs recorded in the history database, newest first.

History is only recorded when history.path (or --history) is set. It is an
audit trail: forge never reads it to skip or resume work.`,
		Example: `  # Show the last 20 runs
  forge history --history ~/.local/share/forge/history.db

  # Show the stages and steps of one run
  forge history show 3f0c2a4e-...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, opts, "history", func(ctx context.Context, a *app, store *stores.SQLiteStore) error {
				runs, err := store.ListRuns(ctx, limit, offset)
				if err != nil {
					return err
				}
				return writeRuns(a.stdout, output, runs)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format (table, json, yaml)")

	cmd.AddCommand(newHistoryShowCommand(opts))
	cmd.AddCommand(newHistoryDeleteCommand(opts))

	return cmd
}

func newHistoryShowCommand(opts *globalOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show the stages, steps and prompts of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, opts, "history.show", func(ctx context.Context, a *app, store *stores.SQLiteStore) error {
				run, err := store.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				if output != "table" {
					return encode(a.stdout, output, run)
				}
				return writeRunDetail(a.stdout, run)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format (table, json, yaml)")

	return cmd
}

func newHistoryDeleteCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete RUN_ID...",
		Short: "Delete recorded runs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, opts, "history.delete", func(ctx context.Context, a *app, store *stores.SQLiteStore) error {
				for _, id := range args {
					if err := store.DeleteRun(ctx, id); err != nil {
						return err
					}
					a.printer.Success("deleted " + id)
				}
				return nil
			})
		},
	}
}

// withHistory runs fn with the history store open.
func withHistory(cmd *cobra.Command, opts *globalOptions, name string, fn func(context.Context, *app, *stores.SQLiteStore) error) error {
	return withApp(cmd, opts, name, func(ctx context.Context, a *app) error {
		store, err := a.openHistory(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errHistoryDisabled
		}
		return fn(ctx, a, store)
	})
}

func writeRuns(w io.Writer, output string, runs []*stores.Run) error {
	if output != "table" {
		return encode(w, output, runs)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tMODE\tPROFILE\tPLATFORM\tSTATUS\tDURATION")
	for _, r := range runs {
		profile := r.Profile
		if profile == "" {
			profile = "-"
		}
		status := string(r.Status)
		if r.DryRun {
			status += " (dry run)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Mode,
			profile,
			r.Platform,
			status,
			r.Duration().Round(time.Second),
		)
	}
	return tw.Flush()
}

func writeRunDetail(w io.Writer, run *stores.Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Run:\t%s\n", run.ID)
	fmt.Fprintf(tw, "Mode:\t%s\n", run.Mode)
	if run.Profile != "" {
		fmt.Fprintf(tw, "Profile:\t%s\n", run.Profile)
	}
	fmt.Fprintf(tw, "Status:\t%s\n", run.Status)
	fmt.Fprintf(tw, "Started:\t%s\n", run.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(tw, "Duration:\t%s\n", run.Duration().Round(time.Second))
	for _, warning := range run.PolicyWarnings {
		fmt.Fprintf(tw, "Policy:\t%s\n", warning)
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "STAGE\tSTEP\tOUTCOME\tEXIT\tDURATION")
	for _, stage := range run.Stages {
		fmt.Fprintf(tw, "%s %s\t\t%s\t\t%s\n", stage.Kind, stage.Name, stage.Status, stage.Duration.Round(time.Second))
		for _, step := range stage.Steps {
			fmt.Fprintf(tw, "\t%s\t%s\t%d\t%s\n", step.Name, step.Outcome, step.ExitCode, step.Duration.Round(time.Second))
		}
	}

	if len(run.Prompts) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "PROMPT\tSTAGE\tANSWER\tREASON")
		for _, p := range run.Prompts {
			answer := "no"
			if p.Continue {
				answer = "yes"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", p.Seq, p.Stage, answer, p.Reason)
		}
	}
	return tw.Flush()
}

func encode(w io.Writer, output string, v any) error {
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (expected table, json or yaml)", output)
	}
}
