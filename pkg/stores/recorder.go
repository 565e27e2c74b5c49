package stores

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/appdock/appdock/pkg/lifecycle"
	"github.com/appdock/appdock/pkg/model"
	"github.com/appdock/appdock/pkg/telemetry"
)

// Recorder follows a lifecycle machine's notification streams and persists
// every accepted transition into a session. Persistence is off the report
// path: a slow database never delays state reporting, it only lags the
// recorded history.
type Recorder struct {
	store   *HistoryStore
	machine *lifecycle.Machine
	graph   *model.Graph
	session *Session
	log     *telemetry.Logger
}

// NewRecorder creates a recorder writing into the given session.
func NewRecorder(store *HistoryStore, machine *lifecycle.Machine, graph *model.Graph, session *Session, log *telemetry.Logger) *Recorder {
	if log == nil {
		log = telemetry.Nop()
	}
	return &Recorder{
		store:   store,
		machine: machine,
		graph:   graph,
		session: session,
		log:     log,
	}
}

// Run watches every resource and persists transitions until ctx is done.
// Each resource is followed on its own watch stream, so one resource's
// transition burst cannot stall another's persistence.
func (r *Recorder) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, res := range r.graph.Resources() {
		name := res.Name()
		ch, err := r.machine.Watch(ctx, name)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return r.follow(ctx, name, ch)
		})
	}
	return g.Wait()
}

// AllocateEndpoint routes an endpoint allocation through the machine and
// persists the accepted binding into the session. Allocation failures are
// returned as-is; a persistence failure only lags the recorded history.
func (r *Recorder) AllocateEndpoint(ctx context.Context, resource, endpoint, host string, port int) error {
	if err := r.machine.AllocateEndpoint(resource, endpoint, host, port); err != nil {
		return err
	}
	rec := &AllocationRecord{
		SessionID:   r.session.ID,
		Resource:    resource,
		Endpoint:    endpoint,
		Host:        host,
		Port:        port,
		AllocatedAt: time.Now().UTC(),
	}
	if err := r.store.RecordAllocation(ctx, rec); err != nil {
		r.log.WithResource(resource).WithError(err).Warn("failed to persist allocation")
	}
	return nil
}

// follow persists one resource's snapshots as they arrive.
func (r *Recorder) follow(ctx context.Context, resource string, ch <-chan lifecycle.Snapshot) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-ch:
			if !ok {
				return nil
			}
			rec := &TransitionRecord{
				SessionID:  r.session.ID,
				Resource:   resource,
				State:      string(snap.State),
				Label:      snap.Label,
				ReportedAt: snap.Timestamp,
			}
			if err := r.store.RecordTransition(ctx, rec); err != nil {
				r.log.WithResource(resource).WithError(err).Warn("failed to persist transition")
			}
		}
	}
}
