// Package dataset holds the column-typed tables a story manipulates and
// the facade through which every mutation passes.
//
// Tables store values column-wise. Every column accepts nil for a missing
// value. The Facade wraps a Collection: UpdateValue and AddRow write to the
// table and, when the table and column match the watch Policy and the gate
// allows it, forward the full affected row to a Sink. The facade does not
// deduplicate; callers that must not submit the same row twice check Find
// first.
package dataset
