// Package persist mirrors story state and measurements to the remote store.
//
// The Synchronizer implements four channels with distinct failure
// policies:
//
//   - FetchOnStart: once per session; any failure is logged and reported
//     as "no prior state" so the caller keeps its defaults.
//   - WriteOnEvent: fire-and-forget, gated by Gate.SyncEnabled; failures
//     are logged and never roll back local state.
//   - SubmitMeasurement: fire-and-forget; the row is mapped to the
//     external payload and stamped with the current student id.
//   - RequestNewStudent: blocking; errors propagate because no session can
//     proceed without a student.
//
// Fire-and-forget work runs on goroutines owned by a dispatcher. Results
// that must touch state are handed to an engine.Poster so they re-enter
// the single state-mutation thread. Every network call is bounded by the
// configured timeout, and a timeout is treated as a failure.
//
// When a Journal is configured each write and submission is recorded in
// an outbox as pending and later marked sent or failed. The journal is an
// audit trail; nothing is retried from it.
package persist
