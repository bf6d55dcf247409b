// Package config loads gantry's two configuration surfaces: the tool
// configuration (YAML) controlling logging, metrics, tracing, policy
// and storage, and the machine inventory (CUE) describing managed
// machines and user-defined script guests.
//
// The inventory is CUE so entries can share defaults through
// unification:
//
//	base: {user: "ops", key_path: "~/.ssh/ops_ed25519"}
//	machines: {
//		web01: base & {address: "10.0.0.11", labels: {env: "prod"}}
//		web02: base & {address: "10.0.0.12", labels: {env: "prod"}}
//	}
package config
