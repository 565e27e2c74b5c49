// Package manifest renders a sealed resource graph into a versioned
// deployment manifest document.
//
// Each resource becomes one entry keyed by name, typed with a versioned
// string such as "container.v0" or an explicit override like
// "postgres.connection.v0". Entries carry the static declaration only:
// connection strings in their format-only form, bindings with declared
// shapes. Publish hooks may amend an entry before serialization, and the
// final document is validated against an embedded JSON schema so a malformed
// manifest fails at export time rather than at the consumer.
package manifest
