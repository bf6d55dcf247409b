// Package guests ships the built-in guest definitions and capability
// implementations: the linux distribution family, the kernel roots
// (darwin, freebsd, windows) and their OS-specific operations. It also
// supports user-defined guests whose detection logic is a Starlark
// script.
//
// The package only populates guest registries; resolution and dispatch
// live in pkg/guest.
package guests
