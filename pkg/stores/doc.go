// Package stores persists orchestration history in SQLite: one session per
// application run, with the lifecycle transitions, endpoint allocations, and
// image build outcomes observed during it. The schema is managed with
// embedded migrations.
package stores
