package story

import "sync"

// Theme is the rendering boundary. The App tells it when dark mode changes.
type Theme interface {
	SetDark(dark bool)
}

// NopTheme ignores theme changes.
type NopTheme struct{}

// SetDark implements Theme.
func (NopTheme) SetDark(bool) {}

// RecordingTheme remembers every SetDark call.
type RecordingTheme struct {
	mu    sync.Mutex
	calls []bool
}

// SetDark implements Theme.
func (t *RecordingTheme) SetDark(dark bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, dark)
}

// Calls returns the recorded values in order.
func (t *RecordingTheme) Calls() []bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]bool(nil), t.calls...)
}

// Palette holds the table selection colour for each theme.
type Palette struct {
	Light string
	Dark  string
}

// DefaultPalette uses the info colour of the stock light and dark themes.
var DefaultPalette = Palette{Light: "#2196F3", Dark: "#2196F3"}

// Info returns the colour for the requested theme.
func (p Palette) Info(dark bool) string {
	if dark {
		return p.Dark
	}
	return p.Light
}
