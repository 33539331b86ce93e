// Package story composes the session controllers: the application, the
// story and its stages.
//
// An App owns the application-level state container, the story container,
// the measurement tables and the persistence synchronizer. A Stage binds a
// marker machine to its own stage container and mutates tables only through
// the dataset facade, so tracked measurement changes reach the remote store.
// Controllers talk to each other only through container handlers.
//
// Story definitions are written in CUE and compiled against an embedded
// schema; see LoadCatalog.
//
// None of the controllers are safe for concurrent use. Drive them from one
// goroutine, typically an engine.Engine.
package story
