// Package resolve turns static resource declarations plus runtime-allocated
// endpoints into concrete environment variables and connection strings.
//
// Resolution is deferred: nothing evaluates at declaration time, and nothing
// is cached across allocation events, so re-resolving after a restart always
// reflects the live allocation. Each resolution pass works on a map private
// to that pass; concurrent resolutions of different resources never share
// mutable state.
//
// Connection strings come in three forms. A literal is returned verbatim. A
// template expands against the referenced resource's allocated endpoint and
// credential fields; before an endpoint is even declared the format-only
// rendering is produced, with host and port placeholders left intact. A based
// connection string resolves another resource's connection string and appends
// a suffix, relying on the convention that a bare connection string ends with
// the ";" field separator.
package resolve
