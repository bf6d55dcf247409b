package guest

import (
	"context"
)

// ID identifies a guest OS family, e.g. "linux", "debian", "windows".
type ID string

// Machine is the narrow view of a managed machine the resolver and its
// collaborators need. The concrete machine type lives in pkg/machine;
// tests substitute fakes.
type Machine interface {
	// ExplicitGuest returns the guest ID pinned in the machine's
	// configuration, or "" when autodetection should run.
	ExplicitGuest() string

	// Run executes a shell command on the machine and returns its
	// stdout and stderr. Detectors and capabilities use this for
	// probing and for effecting changes.
	Run(ctx context.Context, cmd string) (stdout string, stderr string, err error)
}

// Detector answers whether a machine runs a particular guest. One
// instance is created per guest per resolution and discarded afterwards;
// implementations must not retain resolver state.
type Detector interface {
	Detect(ctx context.Context, m Machine) (bool, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, m Machine) (bool, error)

// Detect implements Detector.
func (f DetectorFunc) Detect(ctx context.Context, m Machine) (bool, error) {
	return f(ctx, m)
}

// Definition describes a registered guest: how to build its detector
// and where it sits in the guest forest. Definitions are immutable
// after registration.
type Definition struct {
	// ID is the unique guest identifier.
	ID ID

	// Parent is the ID of the guest this one specializes, or "" for a
	// root guest. Parents form a forest: each guest has at most one.
	Parent ID

	// NewDetector builds a fresh detector instance for this guest.
	NewDetector func() Detector
}

// Capability is an OS-specific operation implemented per guest. The
// resolver forwards arguments and the result unchanged; side effects
// are entirely the implementation's concern.
type Capability func(ctx context.Context, m Machine, args ...any) (any, error)
