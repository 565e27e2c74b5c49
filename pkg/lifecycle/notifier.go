package lifecycle

import (
	"sync"

	"github.com/appdock/appdock/pkg/telemetry"
)

// defaultWatchBuffer is the per-watcher queue size.
const defaultWatchBuffer = 16

// notifier fans accepted state transitions out to an unbounded number of
// independent watchers. Delivery policy: every watcher has its own bounded
// queue; when a watcher falls behind, the oldest queued snapshot is dropped
// to make room, so producers never block on slow consumers. Ordering is
// preserved per resource among the snapshots a watcher does receive.
type notifier struct {
	mu      sync.Mutex
	subs    map[string]map[uint64]chan Snapshot
	nextID  uint64
	bufSize int
	metrics *telemetry.Metrics
}

func newNotifier(bufSize int, metrics *telemetry.Metrics) *notifier {
	if bufSize <= 0 {
		bufSize = defaultWatchBuffer
	}
	if metrics == nil {
		metrics, _ = telemetry.NewMetrics(telemetry.MetricsConfig{})
	}
	return &notifier{
		subs:    make(map[string]map[uint64]chan Snapshot),
		bufSize: bufSize,
		metrics: metrics,
	}
}

// subscribe registers a watcher channel for a resource and, when seed is
// non-nil, queues the current snapshot as its first element. Registration and
// seeding happen under the notifier lock, so no accepted transition can slip
// between the seed and the live stream.
func (n *notifier) subscribe(resource string, seed *Snapshot) (uint64, chan Snapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	ch := make(chan Snapshot, n.bufSize)
	if n.subs[resource] == nil {
		n.subs[resource] = make(map[uint64]chan Snapshot)
	}
	n.subs[resource][id] = ch
	if seed != nil {
		ch <- *seed
	}
	n.metrics.WatcherAdded()
	return id, ch
}

// unsubscribe removes a watcher and closes its channel. Sends only happen
// under the notifier lock, so closing here cannot race a publish.
func (n *notifier) unsubscribe(resource string, id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	subs := n.subs[resource]
	ch, ok := subs[id]
	if !ok {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(n.subs, resource)
	}
	close(ch)
	n.metrics.WatcherRemoved()
}

// publish delivers a snapshot to every watcher of the resource, dropping the
// oldest queued snapshot of any watcher whose queue is full.
func (n *notifier) publish(resource string, snap Snapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs[resource] {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
				n.metrics.RecordNotificationDropped()
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
