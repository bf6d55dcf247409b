package guest

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// chainEntry pairs a guest ID with the detector instance built for the
// resolved chain.
type chainEntry struct {
	id       ID
	detector Detector
}

// Resolver resolves the guest of one machine and dispatches capability
// calls over the resolved ancestry chain.
//
// A Resolver is single-owner: Detect and Capability must not be called
// concurrently. The registries it reads may be shared freely.
type Resolver struct {
	machine Machine
	guests  *Registry
	caps    *CapabilityRegistry
	logger  zerolog.Logger

	resolved ID
	chain    []chainEntry
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver's logger. The default discards.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger.With().Str("component", "guest-resolver").Logger()
	}
}

// NewResolver creates a resolver for one machine over the given
// registries. The registries must be fully populated before this call.
func NewResolver(m Machine, guests *Registry, caps *CapabilityRegistry, opts ...Option) *Resolver {
	r := &Resolver{
		machine: m,
		guests:  guests,
		caps:    caps,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Detect resolves the machine's guest and builds the resolution chain.
//
// When the machine configuration pins a guest, that guest is used
// without probing any detector; an unknown pinned value fails with
// CodeExplicitNotDetected. Otherwise registered guests are probed in
// strictly descending ancestor-depth order (most specific first,
// registration order within one depth) and the first detector returning
// true wins.
//
// On success the previous chain, if any, is fully replaced. On failure
// the resolver state is left unset.
func (r *Resolver) Detect(ctx context.Context) error {
	r.resolved = ""
	r.chain = nil

	id, err := r.resolveID(ctx)
	if err != nil {
		return err
	}

	chain, err := r.buildChain(id)
	if err != nil {
		return err
	}

	r.resolved = id
	r.chain = chain

	r.logger.Debug().
		Str("guest", string(id)).
		Int("chain_length", len(chain)).
		Msg("guest resolved")

	return nil
}

// Resolved returns the resolved guest ID, or "" before a successful
// Detect.
func (r *Resolver) Resolved() ID {
	return r.resolved
}

// Ready returns true once a Detect call has succeeded.
func (r *Resolver) Ready() bool {
	return len(r.chain) > 0
}

// Chain returns the guest IDs of the resolution chain, most specific
// first. Empty before a successful Detect.
func (r *Resolver) Chain() []ID {
	ids := make([]ID, len(r.chain))
	for i, e := range r.chain {
		ids[i] = e.id
	}
	return ids
}

// HasCapability reports whether name resolves to a capability entry
// somewhere in the chain. It returns false before a successful Detect.
func (r *Resolver) HasCapability(name string) bool {
	_, _, ok := r.lookupCapability(name)
	return ok
}

// Capability dispatches a capability call over the resolved chain. The
// chain is walked from the resolved guest toward its root ancestor and
// the first guest whose table contains name wins, so a specific guest's
// implementation always overrides an ancestor's. Arguments and the
// result are forwarded unchanged.
func (r *Resolver) Capability(ctx context.Context, name string, args ...any) (any, error) {
	if !r.Ready() {
		return nil, &Error{Code: CodeNotDetected, Err: fmt.Errorf("capability %q requested before guest detection", name)}
	}

	fn, owner, ok := r.lookupCapability(name)
	if !ok {
		return nil, NewCapabilityNotFoundError(name, r.resolved)
	}
	if fn == nil {
		return nil, NewCapabilityInvalidError(name, r.resolved)
	}

	r.logger.Debug().
		Str("capability", name).
		Str("guest", string(r.resolved)).
		Str("owner", string(owner)).
		Msg("dispatching capability")

	return fn(ctx, r.machine, args...)
}

// lookupCapability walks the chain and returns the first matching
// binding with the guest that owns it.
func (r *Resolver) lookupCapability(name string) (Capability, ID, bool) {
	for _, e := range r.chain {
		set := r.caps.Lookup(e.id)
		if set == nil {
			continue
		}
		if fn, ok := set[name]; ok {
			return fn, e.id, true
		}
	}
	return nil, "", false
}

// resolveID picks the guest ID, honoring the explicit override before
// running autodetection.
func (r *Resolver) resolveID(ctx context.Context) (ID, error) {
	if explicit := r.machine.ExplicitGuest(); explicit != "" {
		if _, ok := r.guests.Lookup(ID(explicit)); !ok {
			return "", NewExplicitNotDetectedError(explicit)
		}
		r.logger.Debug().Str("guest", explicit).Msg("using configured guest")
		return ID(explicit), nil
	}
	return r.autodetect(ctx)
}

// autodetect probes registered guests grouped by ancestor depth, most
// specific group first, and returns the first match.
func (r *Resolver) autodetect(ctx context.Context) (ID, error) {
	groups := make(map[int][]ID)
	depths := make([]int, 0)

	for _, id := range r.guests.IDs() {
		depth, err := r.guests.Depth(id)
		if err != nil {
			return "", err
		}
		if _, seen := groups[depth]; !seen {
			depths = append(depths, depth)
		}
		groups[depth] = append(groups[depth], id)
	}

	sort.Sort(sort.Reverse(sort.IntSlice(depths)))

	for _, depth := range depths {
		for _, id := range groups[depth] {
			def, _ := r.guests.Lookup(id)

			match, err := def.NewDetector().Detect(ctx, r.machine)
			if err != nil {
				return "", fmt.Errorf("probing guest %s: %w", id, err)
			}

			r.logger.Trace().
				Str("guest", string(id)).
				Int("depth", depth).
				Bool("match", match).
				Msg("probed guest")

			if match {
				return id, nil
			}
		}
	}

	return "", NewNotDetectedError()
}

// buildChain expands id into its ancestry chain, most specific first.
// Fresh detector instances are created for the chain; detection-phase
// instances are never reused. A parent missing from the registry ends
// the chain; a parent cycle fails with CodeCycle.
func (r *Resolver) buildChain(id ID) ([]chainEntry, error) {
	def, ok := r.guests.Lookup(id)
	if !ok {
		return nil, NewExplicitNotDetectedError(string(id))
	}

	chain := []chainEntry{{id: id, detector: def.NewDetector()}}
	seen := map[ID]struct{}{id: {}}

	for def.Parent != "" {
		parent, ok := r.guests.Lookup(def.Parent)
		if !ok {
			break
		}
		if _, dup := seen[def.Parent]; dup {
			return nil, NewCycleError(def.Parent)
		}
		seen[def.Parent] = struct{}{}

		chain = append(chain, chainEntry{id: def.Parent, detector: parent.NewDetector()})
		def = parent
	}

	return chain, nil
}
