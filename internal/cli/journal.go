package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/cosmicds/cosmicds/internal/persist"
	"github.com/cosmicds/cosmicds/internal/store"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	Database string
	Status   string
	Limit    int
}

// JournalEntry is one outbox row as printed by the journal command.
type JournalEntry struct {
	ID        string    `json:"id"`
	Op        string    `json:"op"`
	StudentID int64     `json:"student_id"`
	Story     string    `json:"story,omitempty"`
	Hash      string    `json:"hash,omitempty"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// JournalStats counts outbox entries by status.
type JournalStats struct {
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// JournalResult is the output of the journal command.
type JournalResult struct {
	Entries []JournalEntry `json:"entries"`
	Stats   JournalStats   `json:"stats"`
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show the outbox of recorded remote writes",
		Long: `List the outbox entries a session recorded with --journal.

Entries are listed in creation order. Each carries the canonical hash of
its payload and whether the remote call succeeded.

Examples:
  cosmicds journal --db ./outbox.db
  cosmicds journal --db ./outbox.db --status failed
  cosmicds journal --db ./outbox.db --limit 20 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the outbox database (default $COSMICDS_JOURNAL_PATH)")
	cmd.Flags().StringVar(&opts.Status, "status", "", "only show entries with this status (pending|sent|failed)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of entries (0 for all)")

	return cmd
}

func runJournal(opts *JournalOptions, cmd *cobra.Command) error {
	dbPath := firstNonEmpty(opts.Database, opts.Config.JournalPath)
	if dbPath == "" {
		return NewExitError(ExitCommandError, "no journal: pass --db or set COSMICDS_JOURNAL_PATH")
	}
	status := persist.Status(opts.Status)
	switch status {
	case "", persist.StatusPending, persist.StatusSent, persist.StatusFailed:
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid status %q: must be pending, sent or failed", opts.Status))
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	entries, err := st.ListOutbox(ctx, status, opts.Limit)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list outbox", err)
	}
	counts, err := st.OutboxCounts(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to count outbox", err)
	}

	result := JournalResult{
		Entries: make([]JournalEntry, 0, len(entries)),
		Stats: JournalStats{
			Pending: counts[persist.StatusPending],
			Sent:    counts[persist.StatusSent],
			Failed:  counts[persist.StatusFailed],
		},
	}
	for _, e := range entries {
		result.Entries = append(result.Entries, JournalEntry{
			ID:        e.ID,
			Op:        e.Op,
			StudentID: e.StudentID,
			Story:     e.Story,
			Hash:      e.Hash,
			Status:    string(e.Status),
			Error:     e.Error,
			CreatedAt: e.CreatedAt,
		})
	}

	return opts.formatter(cmd).Success(result, func(w io.Writer) { renderJournal(w, result) })
}

func renderJournal(w io.Writer, r JournalResult) {
	if len(r.Entries) == 0 {
		fmt.Fprintln(w, "No entries.")
	}
	for _, e := range r.Entries {
		fmt.Fprintf(w, "%s  %-7s  %-20s  student=%d", e.ID, e.Status, e.Op, e.StudentID)
		if e.Story != "" {
			fmt.Fprintf(w, " story=%s", e.Story)
		}
		if e.Error != "" {
			fmt.Fprintf(w, "  error=%q", e.Error)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "\npending=%d sent=%d failed=%d\n", r.Stats.Pending, r.Stats.Sent, r.Stats.Failed)
}
