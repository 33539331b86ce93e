// Package remote speaks the story-state persistence protocol.
//
// Four JSON-over-HTTP operations are defined:
//
//	GET  /story-state/{studentId}/{storyName}  -> {"state": object | null}
//	PUT  /story-state/{studentId}/{storyName}     body: serialized state
//	POST /new-dummy-student                       body: {"seed", "team_member"}
//	PUT  /submit-measurement                      body: measurement.Payload
//
// Client is the seam the synchronizer depends on; HTTPClient is the
// production implementation. Every failure is reported as either a
// *NetworkError (transport, timeout, non-2xx status, unreadable envelope)
// or a *SerializationError (the envelope parsed but its contents do not
// have the expected shape).
package remote
