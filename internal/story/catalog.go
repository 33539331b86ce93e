package story

import (
	"embed"
	"fmt"
	"path"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/spf13/afero"

	"github.com/cosmicds/cosmicds/internal/marker"
)

//go:embed schema.cue
var schemaSource []byte

//go:embed stories/*.cue
var builtin embed.FS

// DefaultStory is the story a session runs when none is configured.
const DefaultStory = "hubbles_law"

// StageDef describes one stage of a story.
type StageDef struct {
	Index       int               `json:"index"`
	Title       string            `json:"title"`
	Steps       []string          `json:"steps"`
	Markers     []string          `json:"markers"`
	StepMarkers []string          `json:"step_markers"`
	SkipRules   []marker.SkipRule `json:"skip_rules"`
}

// Sequence builds the marker sequence of the stage.
func (s StageDef) Sequence() (*marker.Sequence, error) {
	return marker.NewSequence(s.Markers, s.StepMarkers)
}

// StoryDef describes a story.
type StoryDef struct {
	Name   string     `json:"name"`
	Title  string     `json:"title"`
	Stages []StageDef `json:"stages"`
}

// Stage returns the stage with the given index.
func (d StoryDef) Stage(index int) (StageDef, bool) {
	for _, s := range d.Stages {
		if s.Index == index {
			return s, true
		}
	}
	return StageDef{}, false
}

// Catalog holds compiled story definitions by name.
type Catalog struct {
	stories map[string]StoryDef
}

// Story returns the named definition.
func (c *Catalog) Story(name string) (StoryDef, error) {
	def, ok := c.stories[name]
	if !ok {
		return StoryDef{}, &CatalogError{Story: name, Field: "name", Message: "unknown story"}
	}
	return def, nil
}

// Names returns the story names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.stories))
	for n := range c.stories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CatalogError reports an invalid story definition.
type CatalogError struct {
	Story   string
	Field   string
	Message string
	Pos     token.Pos
	Err     error
}

func (e *CatalogError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	where := e.Field
	if e.Story != "" {
		where = e.Story + "." + e.Field
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), where, msg)
	}
	return fmt.Sprintf("%s: %s", where, msg)
}

func (e *CatalogError) Unwrap() error { return e.Err }

// LoadCatalog compiles the built-in stories.
func LoadCatalog() (*Catalog, error) {
	entries, err := builtin.ReadDir("stories")
	if err != nil {
		return nil, err
	}
	files := make(map[string][]byte, len(entries))
	for _, e := range entries {
		name := path.Join("stories", e.Name())
		data, err := builtin.ReadFile(name)
		if err != nil {
			return nil, err
		}
		files[name] = data
	}
	return compileCatalog(files)
}

// MustCatalog is LoadCatalog for program start; it panics on error.
func MustCatalog() *Catalog {
	c, err := LoadCatalog()
	if err != nil {
		panic(err)
	}
	return c
}

// LoadCatalogFile compiles story definitions from p on fsys. p may name a
// single .cue file or a directory whose .cue files are compiled together.
func LoadCatalogFile(fsys afero.Fs, p string) (*Catalog, error) {
	info, err := fsys.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	paths := []string{p}
	if info.IsDir() {
		paths, err = afero.Glob(fsys, path.Join(p, "*.cue"))
		if err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
		if len(paths) == 0 {
			return nil, fmt.Errorf("load catalog: no .cue files in %s", p)
		}
	}

	files := make(map[string][]byte, len(paths))
	for _, fp := range paths {
		data, err := afero.ReadFile(fsys, fp)
		if err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
		files[fp] = data
	}
	return compileCatalog(files)
}

func compileCatalog(files map[string][]byte) (*Catalog, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	catalogDef := schema.LookupPath(cue.ParsePath("#Catalog"))

	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)

	cat := &Catalog{stories: make(map[string]StoryDef)}
	for _, name := range names {
		v := ctx.CompileBytes(files[name], cue.Filename(name))
		if err := v.Err(); err != nil {
			return nil, formatCUEError(err)
		}
		v = catalogDef.Unify(v)
		if err := v.Validate(cue.Concrete(true)); err != nil {
			return nil, formatCUEError(err)
		}

		iter, err := v.LookupPath(cue.ParsePath("stories")).Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			label := iter.Label()
			if _, dup := cat.stories[label]; dup {
				return nil, &CatalogError{Story: label, Field: "name", Message: "story defined twice", Pos: iter.Value().Pos()}
			}
			def, err := compileStory(iter.Value())
			if err != nil {
				return nil, err
			}
			cat.stories[label] = def
		}
	}
	return cat, nil
}

// compileStory decodes v and checks what the schema cannot express.
func compileStory(v cue.Value) (StoryDef, error) {
	var def StoryDef
	if err := v.Decode(&def); err != nil {
		return StoryDef{}, formatCUEError(err)
	}

	seen := make(map[int]bool, len(def.Stages))
	for i, st := range def.Stages {
		pos := v.LookupPath(cue.MakePath(cue.Str("stages"), cue.Index(i))).Pos()
		if seen[st.Index] {
			return StoryDef{}, &CatalogError{Story: def.Name, Field: fmt.Sprintf("stages[%d].index", i), Message: "duplicate stage index", Pos: pos}
		}
		seen[st.Index] = true

		seq, err := st.Sequence()
		if err != nil {
			return StoryDef{}, &CatalogError{Story: def.Name, Field: fmt.Sprintf("stages[%d].markers", i), Message: "invalid marker sequence", Pos: pos, Err: err}
		}
		if err := marker.ValidateRules(seq, st.SkipRules...); err != nil {
			return StoryDef{}, &CatalogError{Story: def.Name, Field: fmt.Sprintf("stages[%d].skip_rules", i), Message: "invalid skip rule", Pos: pos, Err: err}
		}
	}
	return def, nil
}

// formatCUEError keeps the first CUE error with its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	ce := &CatalogError{Field: "cue", Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
