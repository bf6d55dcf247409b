// Package guest implements guest OS resolution and capability dispatch
// for managed machines.
//
// A "guest" is a recognized operating-system family (debian, redhat,
// darwin, ...) with pluggable detection and capability logic. Guests
// are registered in a flat table with optional parent pointers, forming
// a forest: debian is a child of linux, ubuntu a child of debian. A
// Resolver either honors an explicitly configured guest or autodetects
// one by probing registered guests most-specific-first, then materializes
// the ancestry chain of the winner.
//
// Capabilities are named, OS-specific operations (package.install,
// hostname.set, ...) registered per guest. Dispatch walks the resolved
// chain from the detected guest toward its root ancestor and invokes
// the first implementation found, so a specialized guest always
// overrides a more generic one.
//
// # Usage
//
//	reg := guest.NewRegistry()
//	reg.Register(guest.Definition{ID: "linux", NewDetector: newLinuxDetector})
//	reg.Register(guest.Definition{ID: "debian", Parent: "linux", NewDetector: newDebianDetector})
//
//	caps := guest.NewCapabilityRegistry()
//	caps.Register("debian", "package.install", installWithApt)
//
//	r := guest.NewResolver(m, reg, caps)
//	if err := r.Detect(ctx); err != nil {
//	    return err
//	}
//	out, err := r.Capability(ctx, "package.install", "curl")
//
// Registries are populated once at startup and are read-only afterwards;
// they may be shared across any number of resolvers. Each Resolver owns
// private mutable state and is intended for single-owner use.
package guest
