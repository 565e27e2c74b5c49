package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/appdock/appdock/pkg/model"
	"github.com/appdock/appdock/pkg/telemetry"
)

// Machine tracks the lifecycle state of every resource in a sealed graph.
// It only accepts transitions reported by the external lifecycle driver,
// keeps the full ordered history per resource, fans accepted transitions out
// to watchers, and holds endpoint allocations. It implements
// model.EndpointView for the resolver.
type Machine struct {
	graph    *model.Graph
	log      *telemetry.Logger
	metrics  *telemetry.Metrics
	notifier *notifier

	mu          sync.RWMutex
	current     map[string]Snapshot
	history     map[string][]Snapshot
	allocations map[string]map[string]model.AllocatedEndpoint
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the machine's logger.
func WithLogger(log *telemetry.Logger) Option {
	return func(m *Machine) { m.log = log }
}

// WithMetrics sets the machine's metrics collector.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(m *Machine) { m.metrics = metrics }
}

// WithWatchBuffer sets the per-watcher queue size.
func WithWatchBuffer(n int) Option {
	return func(m *Machine) { m.notifier = newNotifier(n, m.metrics) }
}

// NewMachine creates a lifecycle machine over a sealed graph. Every resource
// starts in NotStarted.
func NewMachine(graph *model.Graph, opts ...Option) *Machine {
	m := &Machine{
		graph:       graph,
		log:         telemetry.Nop(),
		current:     make(map[string]Snapshot),
		history:     make(map[string][]Snapshot),
		allocations: make(map[string]map[string]model.AllocatedEndpoint),
	}
	if m.metrics == nil {
		m.metrics, _ = telemetry.NewMetrics(telemetry.MetricsConfig{})
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.notifier == nil {
		m.notifier = newNotifier(0, m.metrics)
	}
	for _, r := range graph.Resources() {
		snap := Snapshot{State: StateNotStarted, Timestamp: time.Now()}
		m.current[r.Name()] = snap
		m.history[r.Name()] = []Snapshot{snap}
	}
	return m
}

// Report applies a driver-reported state transition. A report whose timestamp
// is older than the last accepted one is dropped, not applied; the drop is
// observable through the false return value, a diagnostic log line, and the
// dropped-transitions counter, but it is not an error. State values need not
// be monotonic: a driver may report Unhealthy and then Running again.
func (m *Machine) Report(resource string, snap Snapshot) (bool, error) {
	if err := snap.State.Validate(); err != nil {
		return false, model.NewLifecycleError("invalid state report", err).WithResource(resource)
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now()
	}

	m.mu.Lock()
	last, ok := m.current[resource]
	if !ok {
		m.mu.Unlock()
		return false, model.NewLifecycleError(
			fmt.Sprintf("unknown resource %q", resource), nil,
		).WithResource(resource)
	}
	if snap.Timestamp.Before(last.Timestamp) {
		m.mu.Unlock()
		m.log.WithResource(resource).Debugf(
			"dropping stale state report %s (%s is newer)", snap.State, last.State)
		m.metrics.RecordDroppedTransition(resource)
		return false, nil
	}
	m.current[resource] = snap
	m.history[resource] = append(m.history[resource], snap)
	// Publish before releasing the state lock: a watcher subscribing
	// concurrently seeds from current under the same lock, so seed and live
	// stream stay ordered.
	m.notifier.publish(resource, snap)
	m.mu.Unlock()

	m.log.WithResource(resource).Debugf("state %s -> %s", last.State, snap.State)
	m.metrics.RecordTransition(string(snap.State))
	return true, nil
}

// Current returns the latest accepted snapshot for a resource.
func (m *Machine) Current(resource string) (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.current[resource]
	return snap, ok
}

// History returns the full ordered state history of a resource.
func (m *Machine) History(resource string) []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Snapshot(nil), m.history[resource]...)
}

// Restart re-enters NotStarted and invalidates the resource's endpoint
// allocations: a restarted resource requires a fresh allocation from the
// driver before its endpoints resolve again.
func (m *Machine) Restart(resource string) error {
	m.mu.Lock()
	last, ok := m.current[resource]
	if !ok {
		m.mu.Unlock()
		return model.NewLifecycleError(
			fmt.Sprintf("unknown resource %q", resource), nil,
		).WithResource(resource)
	}
	ts := time.Now()
	if ts.Before(last.Timestamp) {
		ts = last.Timestamp
	}
	snap := Snapshot{State: StateNotStarted, Label: "restarted", Timestamp: ts}
	m.current[resource] = snap
	m.history[resource] = append(m.history[resource], snap)
	delete(m.allocations, resource)
	m.notifier.publish(resource, snap)
	m.mu.Unlock()

	m.log.WithResource(resource).Info("restarted, endpoint allocations invalidated")
	m.metrics.RecordTransition(string(snap.State))
	return nil
}

// AllocateEndpoint binds a declared endpoint to a concrete host/port.
// Allocation happens at most once per endpoint per process lifetime; a second
// allocation without a restart fails.
func (m *Machine) AllocateEndpoint(resource, endpoint, host string, port int) error {
	r, ok := m.graph.Resource(resource)
	if !ok {
		return model.NewLifecycleError(
			fmt.Sprintf("unknown resource %q", resource), nil,
		).WithResource(resource)
	}
	declared := false
	for _, ep := range model.AnnotationsOf[model.EndpointAnnotation](r) {
		if ep.Name == endpoint {
			declared = true
			break
		}
	}
	if !declared {
		return model.NewLifecycleError(
			fmt.Sprintf("endpoint %q is not declared on resource %q", endpoint, resource), nil,
		).WithCode(model.ErrCodeEndpointNotDeclared).WithResource(resource)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.allocations[resource] == nil {
		m.allocations[resource] = make(map[string]model.AllocatedEndpoint)
	}
	if _, exists := m.allocations[resource][endpoint]; exists {
		return model.NewLifecycleError(
			fmt.Sprintf("endpoint %q on %q is already allocated", endpoint, resource), nil,
		).WithCode(model.ErrCodeAllocationConflict).WithResource(resource)
	}
	m.allocations[resource][endpoint] = model.AllocatedEndpoint{
		EndpointName: endpoint,
		Host:         host,
		Port:         port,
	}
	m.log.WithResource(resource).WithEndpoint(endpoint).Debugf("allocated %s:%d", host, port)
	return nil
}

// AllocatedEndpoint implements model.EndpointView. Reading an endpoint the
// driver has not bound yet fails with an ENDPOINT_NOT_ALLOCATED resolution
// error; callers must sequence startup so dependencies allocate first.
func (m *Machine) AllocatedEndpoint(resource, endpoint string) (model.AllocatedEndpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if alloc, ok := m.allocations[resource][endpoint]; ok {
		return alloc, nil
	}
	return model.AllocatedEndpoint{}, model.NewResolutionError(
		fmt.Sprintf("endpoint %q of resource %q is not yet allocated", endpoint, resource), nil,
	).WithCode(model.ErrCodeEndpointNotAllocated).WithResource(resource)
}

// Watch streams state snapshots for a resource. The first element is the
// current snapshot; subsequent elements are accepted transitions in
// acceptance order. The channel closes when ctx is cancelled. Cancelling one
// watcher never affects other watchers or the resource itself.
func (m *Machine) Watch(ctx context.Context, resource string) (<-chan Snapshot, error) {
	// Hold the state lock across subscription so the seed and the live
	// stream cannot reorder or duplicate.
	m.mu.RLock()
	snap, ok := m.current[resource]
	if !ok {
		m.mu.RUnlock()
		return nil, model.NewLifecycleError(
			fmt.Sprintf("unknown resource %q", resource), nil,
		).WithResource(resource)
	}
	id, ch := m.notifier.subscribe(resource, &snap)
	m.mu.RUnlock()

	go func() {
		<-ctx.Done()
		m.notifier.unsubscribe(resource, id)
	}()
	return ch, nil
}

// WaitForState suspends until the resource's state satisfies the target set.
// The current state is checked first, so a waiter subscribing after the
// resource already reached a target (or any terminal state, when the target
// set contains a terminal state) resolves immediately instead of blocking on
// a past event.
func (m *Machine) WaitForState(ctx context.Context, resource string, targets ...State) (Snapshot, error) {
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := m.Watch(watchCtx, resource)
	if err != nil {
		return Snapshot{}, err
	}
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return Snapshot{}, ctx.Err()
			}
			if matches(snap.State, targets) {
				return snap, nil
			}
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		}
	}
}
