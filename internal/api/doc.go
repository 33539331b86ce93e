// Package api serves the remote persistence protocol over a sqlite store.
//
// Routes:
//
//	GET  /story-state/:student/:story   {"state": <object> | null}
//	PUT  /story-state/:student/:story   body is the state object
//	POST /new-dummy-student             {"seed": bool, "team_member": id|null}
//	PUT  /submit-measurement            measurement payload
//	GET  /measurements/:student         stored measurements
//	GET  /healthz
//
// Failures reply with {"error": "..."} and a 4xx or 5xx status.
package api
