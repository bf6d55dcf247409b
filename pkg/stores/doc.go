// Package stores persists gantry's operational history in SQLite:
// known machines, guest detection results, and capability call
// outcomes. The schema is managed with embedded golang-migrate
// migrations and the database runs in WAL mode.
package stores
