package marker

import "fmt"

// Sequence is an immutable ordered marker catalog.
//
// INVARIANTS:
//   - markers is non-empty and free of duplicates
//   - stepMarkers is a subsequence of markers, in marker order
//   - indices is the inverse of markers, built once here
type Sequence struct {
	markers     []string
	stepMarkers []string
	indices     map[string]int
	stepIndices map[string]int
}

// NewSequence validates and builds a sequence. The slices are copied.
func NewSequence(markers, stepMarkers []string) (*Sequence, error) {
	if len(markers) == 0 {
		return nil, &SequenceError{Message: "no markers"}
	}

	s := &Sequence{
		markers:     append([]string(nil), markers...),
		stepMarkers: append([]string(nil), stepMarkers...),
		indices:     make(map[string]int, len(markers)),
		stepIndices: make(map[string]int, len(stepMarkers)),
	}
	for i, m := range s.markers {
		if m == "" {
			return nil, &SequenceError{Message: fmt.Sprintf("empty marker at position %d", i)}
		}
		if _, dup := s.indices[m]; dup {
			return nil, &SequenceError{Message: fmt.Sprintf("duplicate marker %q", m)}
		}
		s.indices[m] = i
	}

	last := -1
	for i, m := range s.stepMarkers {
		idx, ok := s.indices[m]
		if !ok {
			return nil, &SequenceError{Message: fmt.Sprintf("step marker %q is not a marker", m)}
		}
		if idx <= last {
			return nil, &SequenceError{Message: fmt.Sprintf("step marker %q is out of order", m)}
		}
		last = idx
		s.stepIndices[m] = i
	}
	return s, nil
}

// MustSequence is NewSequence for static catalogs; it panics on error.
func MustSequence(markers, stepMarkers []string) *Sequence {
	s, err := NewSequence(markers, stepMarkers)
	if err != nil {
		panic(err)
	}
	return s
}

// Markers returns a copy of the marker list.
func (s *Sequence) Markers() []string {
	return append([]string(nil), s.markers...)
}

// StepMarkers returns a copy of the step marker list.
func (s *Sequence) StepMarkers() []string {
	return append([]string(nil), s.stepMarkers...)
}

// Len returns the number of markers.
func (s *Sequence) Len() int { return len(s.markers) }

// First returns the initial marker.
func (s *Sequence) First() string { return s.markers[0] }

// Last returns the terminal marker.
func (s *Sequence) Last() string { return s.markers[len(s.markers)-1] }

// Contains reports whether m is in the sequence.
func (s *Sequence) Contains(m string) bool {
	_, ok := s.indices[m]
	return ok
}

// Index returns the position of m.
func (s *Sequence) Index(m string) (int, bool) {
	i, ok := s.indices[m]
	return i, ok
}

// IsStep reports whether m closes a step.
func (s *Sequence) IsStep(m string) bool {
	_, ok := s.stepIndices[m]
	return ok
}

// StepIndex returns the position of m within the step markers.
func (s *Sequence) StepIndex(m string) (int, bool) {
	i, ok := s.stepIndices[m]
	return i, ok
}

// StepMarker returns the step marker at position i.
func (s *Sequence) StepMarker(i int) (string, bool) {
	if i < 0 || i >= len(s.stepMarkers) {
		return "", false
	}
	return s.stepMarkers[i], true
}

// Before reports whether a comes strictly before b. Unknown markers are
// never before anything.
func (s *Sequence) Before(a, b string) bool {
	ia, okA := s.indices[a]
	ib, okB := s.indices[b]
	return okA && okB && ia < ib
}
