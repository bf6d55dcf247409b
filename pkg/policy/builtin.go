package policy

import (
	"time"
)

// GetBuiltinPolicies returns the policies compiled into gantry.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		protectedMachinesPolicy(),
		productionChangesPolicy(),
	}
}

// protectedMachinesPolicy blocks disruptive capabilities on machines
// labeled protected=true.
func protectedMachinesPolicy() Policy {
	return Policy{
		Name:        "protected-machines",
		Description: "Blocks reboot and hostname changes on machines labeled protected=true",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package gantry.policies.protected

import rego.v1

disruptive := {"reboot", "hostname.set"}

deny contains violation if {
	input.machine.labels.protected == "true"
	input.capability in disruptive
	violation := {
		"message": sprintf("capability %s is not allowed on protected machine %s", [input.capability, input.machine.name]),
		"severity": "error",
	}
}
`,
	}
}

// productionChangesPolicy warns on every capability call against
// machines labeled env=prod. It never blocks.
func productionChangesPolicy() Policy {
	return Policy{
		Name:        "production-changes",
		Description: "Warns when capabilities run against env=prod machines",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"audit"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package gantry.policies.production

import rego.v1

deny contains violation if {
	input.machine.labels.env == "prod"
	violation := {
		"message": sprintf("capability %s targets production machine %s", [input.capability, input.machine.name]),
		"severity": "warning",
	}
}
`,
	}
}
