package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgearch/forge/pkg/config"
	"github.com/forgearch/forge/pkg/ui"
)

func newShowCommand(opts *globalOptions) *cobra.Command {
	var sources bool

	cmd := &cobra.Command{
		Use:   "show PROFILE",
		Short: "Print the effective configuration of a profile",
		Long: `Print a profile after its traits have been merged in, as YAML.

Keys set by the profile itself always win; traits only fill in keys that are
still missing, earlier traits before later ones.`,
		Example: `  # Show the effective configuration of chimera
  forge show chimera

  # Also list which trait contributed each top-level key
  forge show chimera --sources`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, "show", func(ctx context.Context, a *app) error {
				profile, err := a.profiles.Load(ctx, args[0])
				if err != nil {
					return err
				}
				effective, resolution, err := a.resolver.Resolve(ctx, profile)
				if err != nil {
					return err
				}

				out, err := config.EncodeDocument(effective.Doc)
				if err != nil {
					return fmt.Errorf("failed to encode %s: %w", args[0], err)
				}
				if _, err := a.stdout.Write(out); err != nil {
					return err
				}

				if sources {
					a.printer.Line("")
					for _, key := range effective.Doc.Keys() {
						from := "profile"
						if trait, ok := resolution.Contributor(key); ok {
							from = "trait " + trait
						}
						a.printer.Line(fmt.Sprintf("# %s: %s", key, from))
					}
				}
				// Warnings go to stderr so the YAML can be piped.
				warn := ui.NewPrinter(a.stderr)
				for _, missing := range resolution.Missing {
					warn.Warning(fmt.Sprintf("trait %s not found", missing))
				}
				for _, invalid := range resolution.Invalid {
					warn.Warning(fmt.Sprintf("trait %s skipped: %v", invalid.Name, invalid.Err))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&sources, "sources", false, "list the origin of each top-level key")

	return cmd
}
