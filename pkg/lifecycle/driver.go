package lifecycle

import (
	"context"

	"github.com/appdock/appdock/pkg/model"
)

// Driver is the external lifecycle driver boundary. The engine never executes
// containers or processes itself; a driver implementation (Docker, local
// exec, a test fake) starts and stops resources and reports the resulting
// transitions and endpoint allocations back into the Machine.
//
// Contract: the driver allocates a given logical endpoint at most once per
// process lifetime (Machine.AllocateEndpoint enforces this); after
// Machine.Restart a fresh allocation is required before the endpoint resolves
// again.
type Driver interface {
	// StartResource starts a resource. The driver reports Starting/Running
	// (or FailedToStart) through Machine.Report and binds declared endpoints
	// through Machine.AllocateEndpoint before reporting Running.
	StartResource(ctx context.Context, resource *model.Resource) error

	// StopResource stops a resource. The driver reports Stopping/Stopped.
	StopResource(ctx context.Context, name string) error
}
