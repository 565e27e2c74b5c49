package logs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/appdock/appdock/pkg/telemetry"
)

// Stream identifies the output stream a log line was read from.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Entry is one captured log line. Seq is 1-based and gapless per resource, so
// a consumer can detect that it has seen everything up to a point.
type Entry struct {
	// Seq is the per-resource sequence number, assigned on append.
	Seq uint64 `json:"seq"`

	// Timestamp is when the line was captured.
	Timestamp time.Time `json:"timestamp"`

	// Stream is the source stream.
	Stream Stream `json:"stream"`

	// Line is the log line without a trailing newline.
	Line string `json:"line"`
}

// defaultBatchCapacity bounds the number of entries delivered per batch.
const defaultBatchCapacity = 64

// stream holds the append-only buffer and watcher registry for one resource.
type stream struct {
	entries  []Entry
	complete bool

	// watchers maps watcher id to its wakeup channel (buffered, capacity 1).
	watchers    map[uint64]chan struct{}
	nextWatcher uint64
}

// Service aggregates log lines per resource and serves watchers. Every
// watcher replays the buffer from the first line regardless of when it
// attached; a watcher attached after completion still receives the full
// backlog before its channel closes.
type Service struct {
	mu      sync.Mutex
	streams map[string]*stream

	log     *telemetry.Logger
	metrics *telemetry.Metrics
	batch   int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service's logger.
func WithLogger(log *telemetry.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithBatchCapacity sets the maximum entries delivered per watch batch.
func WithBatchCapacity(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batch = n
		}
	}
}

// NewService creates an empty log service.
func NewService(opts ...Option) *Service {
	s := &Service{
		streams: make(map[string]*stream),
		log:     telemetry.Nop(),
		batch:   defaultBatchCapacity,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics, _ = telemetry.NewMetrics(telemetry.MetricsConfig{})
	}
	return s
}

// Append records a log line for a resource and wakes its watchers. Appending
// to a completed resource fails; completion is final.
func (s *Service) Append(resource string, src Stream, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.streamLocked(resource)
	if st.complete {
		return fmt.Errorf("log stream for resource %q is complete", resource)
	}
	st.entries = append(st.entries, Entry{
		Seq:       uint64(len(st.entries) + 1),
		Timestamp: time.Now(),
		Stream:    src,
		Line:      line,
	})
	s.metrics.RecordLogLine(string(src))
	st.wakeLocked()
	return nil
}

// Complete marks a resource's log stream as finished. Watchers drain the
// remaining backlog and then their channels close. Completing twice is a
// no-op.
func (s *Service) Complete(resource string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.streamLocked(resource)
	if st.complete {
		return
	}
	st.complete = true
	s.log.WithResource(resource).Debugf("log stream complete at %d lines", len(st.entries))
	st.wakeLocked()
}

// Entries returns a snapshot of all captured lines for a resource.
func (s *Service) Entries(resource string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.streamLocked(resource)
	return append([]Entry(nil), st.entries...)
}

// Watch streams a resource's log in batches. Delivery always starts at the
// first line; there is no tail-only mode, so no watcher can observe a gap.
// The returned channel closes once the stream is complete and the backlog is
// delivered, or when ctx is done.
func (s *Service) Watch(ctx context.Context, resource string) <-chan []Entry {
	s.mu.Lock()
	st := s.streamLocked(resource)
	id := st.nextWatcher
	st.nextWatcher++
	wake := make(chan struct{}, 1)
	st.watchers[id] = wake
	s.mu.Unlock()

	s.metrics.WatcherAdded()
	out := make(chan []Entry)

	go func() {
		defer func() {
			close(out)
			s.mu.Lock()
			delete(st.watchers, id)
			s.mu.Unlock()
			s.metrics.WatcherRemoved()
		}()

		var cursor int
		for {
			s.mu.Lock()
			batch := st.entries[cursor:]
			if len(batch) > s.batch {
				batch = batch[:s.batch]
			}
			batch = append([]Entry(nil), batch...)
			done := st.complete && cursor+len(batch) == len(st.entries)
			s.mu.Unlock()

			if len(batch) > 0 {
				select {
				case out <- batch:
					cursor += len(batch)
				case <-ctx.Done():
					return
				}
				continue
			}
			if done {
				return
			}

			select {
			case <-wake:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// streamLocked returns the resource's stream, creating it on first use.
// Callers hold s.mu.
func (s *Service) streamLocked(resource string) *stream {
	st, ok := s.streams[resource]
	if !ok {
		st = &stream{watchers: make(map[uint64]chan struct{})}
		s.streams[resource] = st
	}
	return st
}

// wakeLocked nudges every watcher of the stream. The wake channels are
// buffered, so a watcher that already has a pending wakeup is skipped.
func (st *stream) wakeLocked() {
	for _, wake := range st.watchers {
		select {
		case wake <- struct{}{}:
		default:
		}
	}
}
