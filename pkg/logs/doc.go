// Package logs aggregates the output of running resources and serves it to
// any number of concurrent watchers.
//
// Each resource owns an append-only buffer of sequenced lines. Watchers keep
// independent cursors into the buffer: a slow watcher never blocks appends or
// other watchers, and a watcher that attaches late replays the stream from
// the very first line. When a resource's stream is completed, watchers finish
// draining the backlog before their channels close, so completion never
// truncates delivery.
package logs
