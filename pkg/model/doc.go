// Package model defines the appdock resource graph.
//
// An application is declared as a set of named, typed resources (containers,
// executables, connection strings, value providers), each carrying an ordered,
// append-only collection of typed annotations: container image references,
// endpoint descriptors, deferred environment contributors, connection-string
// capabilities, and manifest export hints.
//
// Dependency edges are first-class and explicit. They are declared with
// Resource.AddReference or carried by annotations implementing Referencer, so
// the sealed graph can be traversed deterministically without executing
// callbacks.
//
// The build phase ends with Builder.Seal, which validates references, rejects
// cycles, and computes the topological start order. The sealed Graph is
// read-mostly: concurrent readers never block each other, and only the typed
// callback pattern (environment contributors running at resolution time) can
// observe values that were unknown at declaration time.
package model
