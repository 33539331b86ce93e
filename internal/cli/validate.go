package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/cosmicds/cosmicds/internal/harness"
	"github.com/cosmicds/cosmicds/internal/story"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Fs afero.Fs
}

// ValidationIssue is one problem found by validate.
type ValidationIssue struct {
	Path    string `json:"path"`
	Story   string `json:"story,omitempty"`
	Field   string `json:"field,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Message string `json:"message"`
}

// ValidateResult is the output of the validate command.
type ValidateResult struct {
	Path    string            `json:"path"`
	Kind    string            `json:"kind"` // "catalog" or "scenario"
	Valid   bool              `json:"valid"`
	Stories []string          `json:"stories,omitempty"`
	Issues  []ValidationIssue `json:"issues,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <path>",
		Short: "Check a story catalog or a scenario file",
		Long: `Validate story definitions or a session scenario without running them.

A .yaml or .yml file is checked as a scenario. Anything else is compiled
as a CUE story catalog: a single .cue file or a directory of them.

Example:
  cosmicds validate ./stories
  cosmicds validate ./scenarios/choose_row_skips_ahead.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *ValidateOptions, p string, cmd *cobra.Command) error {
	fsys := opts.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if ok, _ := afero.Exists(fsys, p); !ok {
		return NewExitError(ExitCommandError, fmt.Sprintf("path not found: %s", p))
	}

	result := ValidateResult{Path: p, Valid: true}
	switch filepath.Ext(p) {
	case ".yaml", ".yml":
		result.Kind = "scenario"
		if _, err := harness.LoadScenario(fsys, p); err != nil {
			result.Valid = false
			result.Issues = append(result.Issues, ValidationIssue{Path: p, Message: err.Error()})
		}
	default:
		result.Kind = "catalog"
		cat, err := story.LoadCatalogFile(fsys, p)
		if err != nil {
			result.Valid = false
			result.Issues = append(result.Issues, catalogIssue(p, err))
		} else {
			result.Stories = cat.Names()
		}
	}

	out := opts.formatter(cmd)
	render := func(w io.Writer) { renderValidate(w, result) }
	if !result.Valid {
		code := ErrCodeCatalog
		if result.Kind == "scenario" {
			code = ErrCodeScenario
		}
		_ = out.Failure(code, fmt.Sprintf("%s is invalid", p), result, render)
		return NewExitError(ExitFailure, "validation failed")
	}
	return out.Success(result, render)
}

func catalogIssue(p string, err error) ValidationIssue {
	issue := ValidationIssue{Path: p, Message: err.Error()}
	var ce *story.CatalogError
	if !errors.As(err, &ce) {
		return issue
	}
	issue.Story = ce.Story
	issue.Field = ce.Field
	issue.Message = ce.Message
	if ce.Err != nil {
		issue.Message = fmt.Sprintf("%s: %v", ce.Message, ce.Err)
	}
	if ce.Pos.IsValid() {
		issue.Path = ce.Pos.Filename()
		issue.Line = ce.Pos.Line()
		issue.Column = ce.Pos.Column()
	}
	return issue
}

func renderValidate(w io.Writer, r ValidateResult) {
	if r.Valid {
		switch r.Kind {
		case "catalog":
			fmt.Fprintf(w, "✓ %s: %d stories %v\n", r.Path, len(r.Stories), r.Stories)
		default:
			fmt.Fprintf(w, "✓ %s\n", r.Path)
		}
		return
	}
	for _, issue := range r.Issues {
		where := issue.Path
		if issue.Line > 0 {
			where = fmt.Sprintf("%s:%d:%d", issue.Path, issue.Line, issue.Column)
		}
		if issue.Field != "" {
			fmt.Fprintf(w, "✗ %s: %s: %s\n", where, issue.Field, issue.Message)
		} else {
			fmt.Fprintf(w, "✗ %s: %s\n", where, issue.Message)
		}
	}
}
