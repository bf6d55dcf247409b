package config

import (
	"fmt"

	"github.com/gantry-io/gantry/pkg/guests"
	"github.com/gantry-io/gantry/pkg/machine"
)

// Config is the tool configuration, loaded from YAML.
type Config struct {
	// Logging configures structured log output.
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Tracing configures OpenTelemetry trace export.
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`

	// Policy configures capability policy enforcement.
	Policy PolicyConfig `yaml:"policy" json:"policy"`

	// Store configures the local state database.
	Store StoreConfig `yaml:"store" json:"store"`
}

// LoggingConfig controls log level and format.
type LoggingConfig struct {
	// Level is the minimum level to emit.
	Level string `yaml:"level" json:"level" validate:"omitempty,oneof=trace debug info warn error"`

	// Format selects json or human-readable console output.
	Format string `yaml:"format" json:"format" validate:"omitempty,oneof=json console"`
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	// Enabled turns the endpoint on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Listen is the host:port to serve /metrics on.
	Listen string `yaml:"listen" json:"listen" validate:"omitempty,hostname_port"`
}

// TracingConfig controls OpenTelemetry export.
type TracingConfig struct {
	// Enabled turns tracing on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Exporter selects the span exporter.
	Exporter string `yaml:"exporter" json:"exporter" validate:"omitempty,oneof=otlp stdout none"`

	// Endpoint is the OTLP collector address.
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// SampleRate is the trace sampling ratio in [0, 1].
	SampleRate float64 `yaml:"sample_rate" json:"sample_rate" validate:"gte=0,lte=1"`
}

// PolicyConfig controls capability policy enforcement.
type PolicyConfig struct {
	// Enabled turns policy evaluation on. When off every capability
	// call is allowed.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Dir is the directory of .rego policy files. Empty means the
	// built-in policy only.
	Dir string `yaml:"dir" json:"dir"`

	// Watch reloads policies when files in Dir change.
	Watch bool `yaml:"watch" json:"watch"`
}

// StoreConfig controls the local SQLite state database.
type StoreConfig struct {
	// Path is the database file path. Empty disables persistence.
	Path string `yaml:"path" json:"path"`
}

// Inventory is the parsed machine inventory.
type Inventory struct {
	// Machines are the managed machine entries, sorted by name.
	Machines []machine.Config

	// ScriptGuests are user-defined guests registered on top of the
	// built-in forest.
	ScriptGuests []guests.ScriptGuest

	// SourceFiles are the CUE files the inventory was loaded from.
	SourceFiles []string
}

// Machine returns the inventory entry with the given name.
func (inv *Inventory) Machine(name string) (machine.Config, bool) {
	for _, m := range inv.Machines {
		if m.Name == name {
			return m, true
		}
	}
	return machine.Config{}, false
}

// ValidationError is a configuration error with source location.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number, 1-indexed.
	Line int `json:"line,omitempty"`

	// Column is the column number, 1-indexed.
	Column int `json:"column,omitempty"`

	// Path is the configuration path of the error, like
	// "machines.web01.address".
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	switch {
	case e.File != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
	case e.Path != "":
		return e.Path + ": " + e.Message
	default:
		return e.Message
	}
}
