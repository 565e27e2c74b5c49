package stores

import "time"

// Session is one orchestration run of an application. All persisted
// transitions and allocations hang off a session.
type Session struct {
	// ID is the session UUID.
	ID string `json:"id"`

	// AppName is the application the session orchestrated.
	AppName string `json:"app_name"`

	// StartedAt is when the session began.
	StartedAt time.Time `json:"started_at"`

	// CreatedAt is when the record was written.
	CreatedAt time.Time `json:"created_at"`
}

// TransitionRecord is one persisted lifecycle transition.
type TransitionRecord struct {
	// ID is the record's row id.
	ID int64 `json:"id"`

	// SessionID is the owning session.
	SessionID string `json:"session_id"`

	// Resource is the resource that transitioned.
	Resource string `json:"resource"`

	// State is the state entered.
	State string `json:"state"`

	// Label carries driver-specific detail, such as an exit code.
	Label string `json:"label,omitempty"`

	// ReportedAt is the driver-observed transition time.
	ReportedAt time.Time `json:"reported_at"`

	// CreatedAt is when the record was written.
	CreatedAt time.Time `json:"created_at"`
}

// AllocationRecord is one persisted endpoint allocation.
type AllocationRecord struct {
	// ID is the record's row id.
	ID int64 `json:"id"`

	// SessionID is the owning session.
	SessionID string `json:"session_id"`

	// Resource is the resource owning the endpoint.
	Resource string `json:"resource"`

	// Endpoint is the logical endpoint name.
	Endpoint string `json:"endpoint"`

	// Host is the bound host.
	Host string `json:"host"`

	// Port is the bound port.
	Port int `json:"port"`

	// AllocatedAt is when the driver bound the endpoint.
	AllocatedAt time.Time `json:"allocated_at"`
}

// BuildResultRecord is one persisted image pipeline outcome.
type BuildResultRecord struct {
	// ID is the record's row id.
	ID int64 `json:"id"`

	// SessionID is the owning session.
	SessionID string `json:"session_id"`

	// Resource is the resource whose image was built.
	Resource string `json:"resource"`

	// Image is the full image reference.
	Image string `json:"image"`

	// Status is "ok" or "error".
	Status string `json:"status"`

	// Error is the failure message, empty on success.
	Error string `json:"error,omitempty"`

	// DurationMS covers all executed pipeline steps.
	DurationMS int64 `json:"duration_ms"`

	// FinishedAt is when the pipeline finished the job.
	FinishedAt time.Time `json:"finished_at"`

	// CreatedAt is when the record was written.
	CreatedAt time.Time `json:"created_at"`
}
