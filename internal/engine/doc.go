// Package engine is the single logical thread every state mutation runs on.
//
// A session's containers, marker machine and dataset facade are not safe
// for concurrent use. Instead of locking them, all work that touches them
// is funnelled through one Engine:
//
//   - Post enqueues a closure from any goroutine.
//   - Run drains the queue in FIFO order on exactly one goroutine.
//   - Call posts a closure and waits for it to finish.
//
// Network operations run elsewhere (see package persist) and re-enter the
// loop by posting their result. A closure that returns an error or panics
// is logged and the loop moves on; the next event is unaffected.
//
// Every accepted event is stamped with a sequence number from a logical
// Clock so log lines and traces can be ordered without wall-clock time.
package engine
