package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/spf13/cobra"

	"github.com/forgearch/forge/pkg/engine"
	"github.com/forgearch/forge/pkg/ui"
)

func newListCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List profiles, traits and pillars",
		Long: `List the profiles, traits and pillars found in the repository, with
the number of steps each pillar would run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, "list", func(ctx context.Context, a *app) error {
				profiles, err := a.profiles.List(ctx)
				if err != nil {
					return err
				}
				traits, err := a.traits.List(ctx)
				if err != nil {
					return err
				}
				pillars, err := listPillars(a)
				if err != nil {
					return err
				}

				p := a.printer
				p.Heading("📋 Profiles")
				printNames(p, profiles)
				p.Heading("🧬 Traits")
				printNames(p, traits)
				p.Heading("🏛️  Pillars")
				if len(pillars) == 0 {
					p.Line(ui.Decorate(ui.StyleDim, "  (none)"))
				}
				for _, pl := range pillars {
					b := ui.BrandFor(pl.name)
					p.Line(fmt.Sprintf("  %s %s (%s): %d steps", b.Symbol, pl.name, ui.Decorate(b.Style, b.Name), pl.steps))
				}
				return nil
			})
		},
	}
	return cmd
}

type pillarSummary struct {
	name  string
	steps int
}

// listPillars returns every pillar directory with the number of steps full
// discovery would run.
func listPillars(a *app) ([]pillarSummary, error) {
	entries, err := fs.ReadDir(a.fsys, path.Clean(a.settings.Layout.Pillars))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list pillars: %w", err)
	}

	resolver := engine.NewPillarExecutor(engine.PillarExecutorConfig{
		FS:      a.fsys,
		Dir:     a.settings.Layout.Pillars,
		StepExt: a.settings.Layout.StepExt,
		Logger:  a.logger,
	})

	var out []pillarSummary
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		steps, err := resolver.ResolvePillar(e.Name(), nil)
		if err != nil {
			return nil, err
		}
		out = append(out, pillarSummary{name: e.Name(), steps: len(steps)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

func printNames(p *ui.Printer, names []string) {
	if len(names) == 0 {
		p.Line(ui.Decorate(ui.StyleDim, "  (none)"))
		return
	}
	for _, name := range names {
		p.Line("  " + name)
	}
}
