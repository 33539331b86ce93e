package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cosmicds/cosmicds/internal/engine"
	"github.com/cosmicds/cosmicds/internal/harness"
	"github.com/cosmicds/cosmicds/internal/marker"
	"github.com/cosmicds/cosmicds/internal/persist"
	"github.com/cosmicds/cosmicds/internal/remote"
	"github.com/cosmicds/cosmicds/internal/store"
	"github.com/cosmicds/cosmicds/internal/story"
	"github.com/cosmicds/cosmicds/internal/telemetry"
)

// SessionOptions holds flags for the session command.
type SessionOptions struct {
	*RootOptions
	APIURL     string
	Story      string
	Stage      int
	StudentID  int64
	TeamMember int64
	NoSync     bool
	Journal    string
	KeepGoing  bool

	// Fs is where the script is read from; the OS filesystem when nil.
	Fs afero.Fs
}

// SessionScript is the document read by the session command.
type SessionScript struct {
	Steps []harness.Step `yaml:"steps"`
}

// StepResult is the outcome of one scripted step.
type StepResult struct {
	Op     string         `json:"op"`
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// SessionResult is the output of the session command.
type SessionResult struct {
	Session   string                    `json:"session"`
	StudentID int64                     `json:"student_id"`
	Steps     []StepResult              `json:"steps"`
	State     map[string]map[string]any `json:"state"`
}

// NewSessionCommand creates the session command.
func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SessionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "session <script.yaml>",
		Short: "Run a scripted session against a remote store",
		Long: `Run a story session against the remote store at --api-url and apply
the steps of a YAML script to it.

The session is started before the first step unless the script starts
it itself. Each step waits for the remote calls it caused. With
--journal every outgoing write is recorded in a local SQLite outbox.

Script:
  steps:
    - op: select_galaxy
      args:
        galaxy: {name: NGC 4414, type: Sp, z: 0.0024}
    - op: set_marker
      args: {marker: cho_row1}
    - op: select_row
      args: {index: 0}

Example:
  cosmicds session --api-url http://localhost:8080 --student 7 script.yaml
  cosmicds session --journal ./outbox.db --format json script.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.APIURL, "api-url", "", "remote store URL (default $COSMICDS_API_URL)")
	cmd.Flags().StringVar(&opts.Story, "story", "", "story name (default $COSMICDS_STORY)")
	cmd.Flags().IntVar(&opts.Stage, "stage", 0, "stage index to open")
	cmd.Flags().Int64Var(&opts.StudentID, "student", 0, "student id; 0 requests a seed student")
	cmd.Flags().Int64Var(&opts.TeamMember, "team-member", 0, "team member id forwarded with seed requests")
	cmd.Flags().BoolVar(&opts.NoSync, "no-sync", false, "keep the session local")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "SQLite outbox for outgoing writes (default $COSMICDS_JOURNAL_PATH)")
	cmd.Flags().BoolVar(&opts.KeepGoing, "keep-going", false, "run the remaining steps after a failing one")

	return cmd
}

// LoadSessionScript reads and checks a session script.
func LoadSessionScript(fsys afero.Fs, p string) (*SessionScript, error) {
	data, err := afero.ReadFile(fsys, p)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var script SessionScript
	if err := dec.Decode(&script); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: failed to parse YAML: %w", p, err)
	}
	if len(script.Steps) == 0 {
		return nil, fmt.Errorf("%s: steps list is required and must be non-empty", p)
	}
	known := make(map[string]bool)
	for _, op := range harness.Ops() {
		known[op] = true
	}
	for i, step := range script.Steps {
		if !known[step.Op] {
			return nil, fmt.Errorf("%s: steps[%d]: unknown op %q", p, i, step.Op)
		}
	}
	return &script, nil
}

func (o *SessionOptions) appConfig() story.Config {
	cfg := story.Config{
		Story:       firstNonEmpty(o.Story, o.Config.Story, story.DefaultStory),
		StudentID:   o.StudentID,
		SyncEnabled: !o.NoSync,
		Stage:       o.Stage,
	}
	if cfg.StudentID == 0 {
		cfg.StudentID = o.Config.StudentID
	}
	switch {
	case o.TeamMember > 0:
		id := o.TeamMember
		cfg.TeamMember = &id
	default:
		cfg.TeamMember = o.Config.TeamMemberRef()
	}
	return cfg
}

func runSession(opts *SessionOptions, scriptPath string, cmd *cobra.Command) error {
	logger := opts.logger()
	fsys := opts.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	script, err := LoadSessionScript(fsys, scriptPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid script", err)
	}

	cat, err := opts.loadCatalog()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load catalog", err)
	}
	cfg := opts.appConfig()
	def, err := cat.Story(cfg.Story)
	if err != nil {
		return WrapExitError(ExitCommandError, "unknown story", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config.TracingEnabled() {
		shutdown, err := telemetry.Setup(ctx, opts.Config.ServiceName, opts.Config.OTelEndpoint)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to set up tracing", err)
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	apiURL := firstNonEmpty(opts.APIURL, opts.Config.APIURL)
	var httpOpts []remote.HTTPOption
	if opts.Config.Timeout > 0 {
		httpOpts = append(httpOpts, remote.WithTimeout(opts.Config.Timeout))
	}
	client, err := remote.NewHTTPClient(apiURL, httpOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid api url", err)
	}

	appOpts := []story.Option{story.WithLogger(logger)}
	syncOpts := []persist.Option{}
	if opts.Config.Timeout > 0 {
		syncOpts = append(syncOpts, persist.WithTimeout(opts.Config.Timeout))
	}
	if journalPath := firstNonEmpty(opts.Journal, opts.Config.JournalPath); journalPath != "" {
		journal, err := store.Open(journalPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if err := journal.Close(); err != nil {
				logger.Error("error closing journal", "error", err)
			}
		}()
		syncOpts = append(syncOpts, persist.WithJournal(journal))
	}
	// Every step and every result posted back by the synchronizer runs on
	// the engine goroutine.
	eng := engine.New(engine.WithLogger(logger))
	appOpts = append(appOpts, story.WithPoster(eng), story.WithSyncOptions(syncOpts...))

	app, err := story.NewApp(client, def, cfg, appOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create session", err)
	}
	// Close must run before the journal is closed.
	defer app.Close()

	loopDone := make(chan error, 1)
	go func() { loopDone <- eng.Run(context.WithoutCancel(ctx)) }()
	defer func() {
		eng.Stop()
		<-loopDone
	}()

	steps := script.Steps
	if steps[0].Op != harness.OpStart {
		steps = append([]harness.Step{{Op: harness.OpStart}}, steps...)
	}

	out := opts.formatter(cmd)
	result := SessionResult{Session: app.Session(), Steps: make([]StepResult, 0, len(steps))}
	var failed error
	for i, step := range steps {
		var res map[string]any
		err := eng.Call(ctx, step.Op, func(ctx context.Context) error {
			var err error
			res, err = harness.Apply(ctx, app, step)
			return err
		})
		var evErr *engine.EventError
		if errors.As(err, &evErr) {
			err = evErr.Err
		}
		settle(ctx, eng, app)
		if res != nil {
			// Results applied after the step, such as restored state, may
			// have moved the stage on.
			res[marker.FieldMarker] = app.Stage().Marker()
			res[marker.FieldStepIndex] = app.Story().GetInt(marker.FieldStepIndex)
		}

		sr := StepResult{Op: step.Op, Result: res}
		if err != nil {
			sr.Error = err.Error()
			logger.Warn("step failed", "step", i, "op", step.Op, "error", err)
		}
		result.Steps = append(result.Steps, sr)
		out.VerboseLog("step %d %s: %v", i, step.Op, res)

		if err != nil && failed == nil {
			failed = fmt.Errorf("steps[%d] %s: %w", i, step.Op, err)
		}
		if err != nil && (i == 0 || !opts.KeepGoing) {
			break
		}
	}
	result.StudentID = app.StudentID()
	result.State = map[string]map[string]any{
		harness.ContainerApp:   app.State().Values(),
		harness.ContainerStory: app.Story().Values(),
		harness.ContainerStage: app.Stage().State().Values(),
	}

	if failed != nil {
		_ = out.Failure(ErrCodeSession, failed.Error(), result, func(w io.Writer) { renderSession(w, result) })
		return WrapExitError(ExitFailure, "session failed", failed)
	}
	return out.Success(result, func(w io.Writer) { renderSession(w, result) })
}

// settle waits for the remote calls a step caused and for the results they
// posted back to the engine.
func settle(ctx context.Context, eng *engine.Engine, app *story.App) {
	app.Synchronizer().Wait()
	_ = eng.Call(ctx, "settle", func(context.Context) error { return nil })
	app.Synchronizer().Wait()
}

func renderSession(w io.Writer, r SessionResult) {
	fmt.Fprintf(w, "Session %s (student %d)\n", r.Session, r.StudentID)
	for i, s := range r.Steps {
		if s.Error != "" {
			fmt.Fprintf(w, "✗ [%d] %s: %s\n", i, s.Op, s.Error)
			continue
		}
		fmt.Fprintf(w, "✓ [%d] %s  marker=%v step_index=%v\n", i, s.Op, s.Result["marker"], s.Result["step_index"])
	}
}
