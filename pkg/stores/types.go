package stores

import (
	"time"
)

// DetectionMethod records how a guest was resolved.
type DetectionMethod string

const (
	// DetectionMethodExplicit means the inventory pinned the guest.
	DetectionMethodExplicit DetectionMethod = "explicit"

	// DetectionMethodAutodetect means probes resolved the guest.
	DetectionMethodAutodetect DetectionMethod = "autodetect"
)

// RunStatus is the lifecycle state of a capability run.
type RunStatus string

const (
	// RunStatusStarted means the call was dispatched.
	RunStatusStarted RunStatus = "started"

	// RunStatusSucceeded means the capability completed.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed means the capability returned an error.
	RunStatusFailed RunStatus = "failed"

	// RunStatusDenied means policy blocked the call.
	RunStatusDenied RunStatus = "denied"
)

// Machine is a persisted inventory machine.
type Machine struct {
	// ID is the stable machine identifier.
	ID string `json:"id"`

	// Name is the inventory name, unique.
	Name string `json:"name"`

	// Address is the machine address last seen in the inventory.
	Address string `json:"address"`

	// GuestPin is the explicitly pinned guest, empty for autodetect.
	GuestPin string `json:"guest_pin,omitempty"`

	// Labels is the JSON-encoded label map.
	Labels string `json:"labels,omitempty"`

	// CreatedAt is when the machine was first recorded.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the machine record last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// Detection is one guest resolution result.
type Detection struct {
	// ID is assigned by the database.
	ID int64 `json:"id"`

	// MachineID references the machine.
	MachineID string `json:"machine_id"`

	// Guest is the resolved guest identifier.
	Guest string `json:"guest"`

	// Method is how the guest was resolved.
	Method DetectionMethod `json:"method"`

	// Chain is the JSON-encoded ancestry chain, most specific first.
	Chain string `json:"chain"`

	// Duration is how long detection took.
	Duration time.Duration `json:"duration"`

	// DetectedAt is when detection completed.
	DetectedAt time.Time `json:"detected_at"`
}

// CapabilityRun is one capability dispatch and its outcome.
type CapabilityRun struct {
	// ID is assigned by the database.
	ID int64 `json:"id"`

	// MachineID references the machine.
	MachineID string `json:"machine_id"`

	// Guest is the resolved guest the call dispatched through.
	Guest string `json:"guest"`

	// Capability is the capability name.
	Capability string `json:"capability"`

	// Args is the JSON-encoded argument list.
	Args string `json:"args,omitempty"`

	// Status is the run outcome.
	Status RunStatus `json:"status"`

	// Output is the capability result, when any.
	Output string `json:"output,omitempty"`

	// Error is the failure or denial message, when any.
	Error string `json:"error,omitempty"`

	// StartedAt is when the call was dispatched.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the call finished. Nil while running.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
