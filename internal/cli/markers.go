package cli

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/cosmicds/cosmicds/internal/story"
)

// MarkersOptions holds flags for the markers command.
type MarkersOptions struct {
	*RootOptions
	Story string
}

// NewMarkersCommand creates the markers command.
func NewMarkersCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MarkersOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "markers",
		Short: "List the stories, stages and markers of the catalog",
		Long: `List the marker sequence of every stage. Step markers are flagged
with their step index and skip rules are shown after the marker they
leave from.

Example:
  cosmicds markers
  cosmicds markers --story hubbles_law --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMarkers(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Story, "story", "", "only list this story")

	return cmd
}

func runMarkers(opts *MarkersOptions, cmd *cobra.Command) error {
	cat, err := opts.loadCatalog()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load catalog", err)
	}

	names := cat.Names()
	if opts.Story != "" {
		names = []string{opts.Story}
	}
	defs := make([]story.StoryDef, 0, len(names))
	for _, name := range names {
		def, err := cat.Story(name)
		if err != nil {
			return WrapExitError(ExitCommandError, "unknown story", err)
		}
		defs = append(defs, def)
	}

	return opts.formatter(cmd).Success(defs, func(w io.Writer) { renderMarkers(w, defs) })
}

func renderMarkers(w io.Writer, defs []story.StoryDef) {
	for _, def := range defs {
		fmt.Fprintf(w, "%s: %s\n", def.Name, def.Title)
		for _, stage := range def.Stages {
			fmt.Fprintf(w, "  stage %d: %s\n", stage.Index, stage.Title)
			for _, m := range stage.Markers {
				line := "    " + m
				if step := slices.Index(stage.StepMarkers, m); step >= 0 {
					line += fmt.Sprintf("  [step %d]", step)
				}
				fmt.Fprintln(w, line)
				for _, rule := range stage.SkipRules {
					if rule.From != m {
						continue
					}
					if rule.When == "" {
						fmt.Fprintf(w, "      -> %s\n", rule.To)
					} else {
						fmt.Fprintf(w, "      -> %s when %s\n", rule.To, rule.When)
					}
				}
			}
		}
	}
}
