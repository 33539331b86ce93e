// Package harness runs scripted story sessions and checks what they did.
//
// A scenario is a YAML document naming a story, a student, the state the
// remote store already holds, and a list of steps (set_marker,
// select_galaxy, measure_wavelength, ...). Run opens a story.App against a
// testutil.RecordingClient, performs the steps one at a time and waits for
// the synchronizer after each, so every remote call a step caused is
// recorded right after that step's completion.
//
// # Trace
//
// The trace interleaves three kinds of events, each stamped by a logical
// clock:
//
//   - invocation: the step op and its args
//   - completion: ok or error, plus the marker, step_index and op result
//   - remote: a call that reached the remote store, summarized
//
// Remote calls issued by one step run concurrently, so they are sorted by
// op and arguments before they are appended.
//
// # Assertions
//
//   - trace_contains: an event of op with matching args
//   - trace_order: the first occurrences of ops are ordered
//   - trace_count: exactly count events of op
//   - final_state: app, story or stage fields, or a measurement row
//
// # Golden files
//
// RunWithGolden renders the trace as canonical JSON and compares it with
// testdata/golden/<name>.golden using goldie. Pass -update to regenerate.
//
// Example scenario:
//
//	name: choose_row_skips_ahead
//	description: selecting a galaxy at cho_row1 moves to mee_spe1
//	student_id: 7
//	session_token: golden-session
//	steps:
//	  - op: start
//	  - op: select_galaxy
//	    args:
//	      galaxy: {name: NGC 4414, type: Sp, z: 0.0024}
//	  - op: set_marker
//	    args: {marker: cho_row1}
//	  - op: select_row
//	    args: {index: 0}
//	    expect:
//	      result: {marker: mee_spe1, step_index: 1}
//	assertions:
//	  - type: trace_count
//	    op: write_story_state
//	    event: remote
//	    count: 1
package harness
