package story

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cosmicds/cosmicds/internal/dataset"
	"github.com/cosmicds/cosmicds/internal/engine"
	"github.com/cosmicds/cosmicds/internal/marker"
	"github.com/cosmicds/cosmicds/internal/measurement"
	"github.com/cosmicds/cosmicds/internal/persist"
	"github.com/cosmicds/cosmicds/internal/remote"
	"github.com/cosmicds/cosmicds/internal/state"
	"github.com/cosmicds/cosmicds/internal/value"
)

// ErrStarted is returned by a second call to Start.
var ErrStarted = errors.New("app already started")

// Config selects the story and student of a session.
type Config struct {
	// Story names the story to run.
	Story string
	// StudentID is the student to resume. Zero requests a new seed
	// student at Start.
	StudentID int64
	// TeamMember is forwarded when a seed student is created.
	TeamMember *int64
	// SyncEnabled turns remote persistence on.
	SyncEnabled bool
	// Stage is the index of the stage to open. Zero opens the first.
	Stage int
}

// App is the application controller of one session.
type App struct {
	cfg     Config
	def     StoryDef
	state   *state.Container
	story   *state.Container
	stage   *Stage
	facade  *dataset.Facade
	sync    *persist.Synchronizer
	theme   Theme
	logger  *slog.Logger
	session string

	subs      []binding
	started   bool
	async     bool
	restoring bool
}

type binding struct {
	c   *state.Container
	sub state.Subscription
}

type appOptions struct {
	logger   *slog.Logger
	theme    Theme
	palette  Palette
	tokens   engine.TokenGenerator
	poster   engine.Poster
	syncOpts []persist.Option
}

// Option configures an App.
type Option func(*appOptions)

// WithLogger sets the logger. Every line carries the session token.
func WithLogger(logger *slog.Logger) Option {
	return func(o *appOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTheme sets the rendering boundary.
func WithTheme(t Theme) Option {
	return func(o *appOptions) {
		if t != nil {
			o.theme = t
		}
	}
}

// WithAppPalette sets the table colours of every stage.
func WithAppPalette(p Palette) Option {
	return func(o *appOptions) { o.palette = p }
}

// WithTokens sets the session token source.
func WithTokens(g engine.TokenGenerator) Option {
	return func(o *appOptions) {
		if g != nil {
			o.tokens = g
		}
	}
}

// WithPoster runs the app on the thread behind p. Stored story state is
// then fetched in the background at Start and applied through p.
func WithPoster(p engine.Poster) Option {
	return func(o *appOptions) { o.poster = p }
}

// WithSyncOptions passes options through to the synchronizer.
func WithSyncOptions(opts ...persist.Option) Option {
	return func(o *appOptions) { o.syncOpts = append(o.syncOpts, opts...) }
}

// NewApp builds a session for def. Nothing talks to the remote store until
// Start.
func NewApp(client remote.Client, def StoryDef, cfg Config, opts ...Option) (*App, error) {
	o := appOptions{
		logger:  slog.Default(),
		theme:   NopTheme{},
		palette: DefaultPalette,
		tokens:  engine.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if len(def.Stages) == 0 {
		return nil, fmt.Errorf("story %s has no stages", def.Name)
	}
	stageDef := def.Stages[0]
	if cfg.Stage != 0 {
		var ok bool
		if stageDef, ok = def.Stage(cfg.Stage); !ok {
			return nil, fmt.Errorf("story %s has no stage %d", def.Name, cfg.Stage)
		}
	}
	if cfg.Story == "" {
		cfg.Story = def.Name
	}

	a := &App{
		cfg:     cfg,
		def:     def,
		theme:   o.theme,
		session: o.tokens.Generate(),
		async:   o.poster != nil,
	}
	a.logger = o.logger.With("session", a.session, "story", def.Name)

	var err error
	if a.state, err = state.New("app", appFields(cfg.SyncEnabled), state.WithLogger(a.logger)); err != nil {
		return nil, err
	}
	if a.story, err = state.New(def.Name, storyFields(def, stageDef.Index, []string{measurement.Table}), state.WithLogger(a.logger)); err != nil {
		return nil, err
	}

	gate := persist.GateFunc(a.SyncEnabled)
	syncOpts := append([]persist.Option{
		persist.WithLogger(a.logger),
		persist.WithStudentSource(a.StudentID),
	}, o.syncOpts...)
	if o.poster != nil {
		syncOpts = append(syncOpts, persist.WithPoster(o.poster))
	}
	a.sync = persist.New(client, gate, syncOpts...)

	coll, err := dataset.NewCollection(dataset.NewMeasurementTable())
	if err != nil {
		return nil, err
	}
	a.facade = dataset.NewFacade(coll, dataset.MeasurementPolicy(), a.sync, gate)
	a.facade.SetLogger(a.logger)

	a.stage, err = NewStage(stageDef, a.story, a.facade, WithPalette(o.palette), WithStageLogger(a.logger))
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Start resolves the student, restores the story from the remote store
// when sync is enabled and installs the application handlers.
//
// With a poster the fetch runs in the background and the stored state is
// applied by a later event on the poster's thread; otherwise Start blocks
// until the state is restored.
//
// Failing to create a student is fatal. Failing to fetch or restore the
// story leaves the defaults in place.
func (a *App) Start(ctx context.Context) error {
	if a.started {
		return ErrStarted
	}

	switch {
	case a.cfg.StudentID > 0:
		if err := a.setStudent(a.cfg.StudentID); err != nil {
			return err
		}
	case a.SyncEnabled():
		if err := a.newSeedStudent(ctx); err != nil {
			return fmt.Errorf("start: %w", err)
		}
	default:
		a.logger.Warn("no student configured and sync disabled")
	}

	switch {
	case !a.SyncEnabled():
	case a.async:
		if err := a.sync.FetchOnStartAsync(a.StudentID(), a.def.Name, a.restore); err != nil {
			a.logger.Warn("fetch story state", "student_id", a.StudentID(), "error", err)
		}
	default:
		if obj, ok := a.sync.FetchOnStart(ctx, a.StudentID(), a.def.Name); ok {
			if err := a.restore(obj); err != nil {
				a.logger.Warn("restore story state", "student_id", a.StudentID(),
					"error", &remote.SerializationError{Op: remote.OpFetchStoryState, Err: err})
			}
		}
	}

	if err := a.bind(); err != nil {
		return err
	}
	a.started = true

	dark := a.DarkMode()
	a.theme.SetDark(dark)
	a.stage.OnDarkMode(dark)
	a.logger.Info("session started", "student_id", a.StudentID(), "marker", a.stage.Marker(),
		marker.FieldStepIndex, a.story.GetInt(marker.FieldStepIndex))
	return nil
}

// restore applies stored story state. The state came from the remote
// store, so it is not written back.
func (a *App) restore(obj value.Object) error {
	a.restoring = true
	defer func() { a.restoring = false }()
	if err := a.story.Restore(obj); err != nil {
		return err
	}
	a.logger.Info("story state restored", "student_id", a.StudentID(), "marker", a.stage.Marker(),
		marker.FieldStepIndex, a.story.GetInt(marker.FieldStepIndex))
	return nil
}

func (a *App) bind() error {
	handlers := []struct {
		c       *state.Container
		field   string
		handler func(any)
	}{
		{a.state, FieldDarkMode, a.onDarkMode},
		{a.state, FieldResetStudent, a.onResetStudent},
		{a.story, marker.FieldStepIndex, a.onStepIndex},
	}
	for _, h := range handlers {
		sub, err := h.c.On(h.field, h.handler)
		if err != nil {
			return err
		}
		a.subs = append(a.subs, binding{c: h.c, sub: sub})
	}
	return nil
}

func (a *App) onStepIndex(any) {
	if a.restoring {
		return
	}
	a.Save()
}

func (a *App) onDarkMode(v any) {
	dark, _ := v.(bool)
	a.theme.SetDark(dark)
	a.stage.OnDarkMode(dark)
}

func (a *App) onResetStudent(v any) {
	if requested, _ := v.(bool); !requested {
		return
	}
	if a.SyncEnabled() {
		if err := a.newSeedStudent(context.Background()); err != nil {
			a.logger.Error("reset student", "error", err)
		}
	}
	err := a.state.WithSuppressed(FieldResetStudent, func() error {
		return a.state.Set(FieldResetStudent, false)
	})
	if err != nil {
		a.logger.Error("clear reset flag", "error", err)
	}
}

func (a *App) newSeedStudent(ctx context.Context) error {
	ref, err := a.sync.RequestNewStudent(ctx, true, a.cfg.TeamMember)
	if err != nil {
		return err
	}
	return a.setStudent(ref.ID)
}

func (a *App) setStudent(id int64) error {
	student := map[string]any{"id": id}
	if err := a.state.Set(FieldStudent, student); err != nil {
		return err
	}
	if err := a.story.Set(FieldStudentUser, student); err != nil {
		return err
	}
	a.logger.Info("student", "student_id", id)
	return nil
}

// Save writes the story state to the remote store in the background.
func (a *App) Save() {
	snap, err := a.story.Snapshot()
	if err != nil {
		a.logger.Error("snapshot story state", "error", err)
		return
	}
	a.sync.WriteOnEvent(a.StudentID(), a.def.Name, snap)
}

// StudentID returns the current student id, or 0 before one is known.
func (a *App) StudentID() int64 {
	switch id := a.state.GetObject(FieldStudent)["id"].(type) {
	case int64:
		return id
	case float64:
		return int64(id)
	case int:
		return int64(id)
	default:
		return 0
	}
}

// SyncEnabled reports whether remote persistence is on.
func (a *App) SyncEnabled() bool { return a.state.GetBool(FieldSyncEnabled) }

// SetSyncEnabled turns remote persistence on or off.
func (a *App) SetSyncEnabled(on bool) error { return a.state.Set(FieldSyncEnabled, on) }

// DarkMode reports the current theme.
func (a *App) DarkMode() bool { return a.state.GetBool(FieldDarkMode) }

// SetDarkMode switches the theme.
func (a *App) SetDarkMode(dark bool) error { return a.state.Set(FieldDarkMode, dark) }

// RequestStudentReset asks for a fresh seed student.
func (a *App) RequestStudentReset() error { return a.state.Set(FieldResetStudent, true) }

// Session returns the session token.
func (a *App) Session() string { return a.session }

// Def returns the story definition.
func (a *App) Def() StoryDef { return a.def }

// State returns the application container.
func (a *App) State() *state.Container { return a.state }

// Story returns the story container.
func (a *App) Story() *state.Container { return a.story }

// Stage returns the open stage.
func (a *App) Stage() *Stage { return a.stage }

// Facade returns the dataset facade.
func (a *App) Facade() *dataset.Facade { return a.facade }

// Synchronizer returns the persistence synchronizer.
func (a *App) Synchronizer() *persist.Synchronizer { return a.sync }

// Close detaches every handler and waits for in-flight remote calls.
func (a *App) Close() {
	for _, b := range a.subs {
		b.c.Unregister(b.sub)
	}
	a.subs = nil
	a.stage.Close()
	a.sync.Close()
}
