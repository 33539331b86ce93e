// Package state implements observable state containers.
//
// A Container is a record with a fixed, typed field table. Writing a field
// through Set notifies every handler registered for that field, in
// registration order, synchronously, before Set returns. Handlers may call
// Set on this or any other container; cascades run depth-first within the
// same call. There is no cycle detection: controllers that mirror two
// fields into each other guard the reverse path themselves.
//
// Notification for a field can be suppressed for the duration of a scoped
// body with WithSuppressed. Suppression is always released when the body
// exits, whether it returns normally, returns an error or panics.
//
// Containers are not shared by value. Controllers own their containers and
// communicate through registered handlers only.
package state
