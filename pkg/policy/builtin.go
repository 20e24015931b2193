package policy

import "time"

// GetBuiltinPolicies returns the policies shipped with buildwave.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		excludedPackagesPolicy(),
		unknownTierPolicy(),
		oversizedWavePolicy(),
	}
}

// excludedPackagesPolicy blocks packages that must never be rebuilt from
// source: virtuals, live ebuilds, and the bootstrap toolchain snapshot.
func excludedPackagesPolicy() Policy {
	return Policy{
		Name:        "excluded-packages",
		Description: "Blocks packages that are excluded from source rebuilds",
		Severity:    SeverityError,
		Enabled:     true,
		CreatedAt:   time.Now(),
		Rego: `package buildwave.policies.exclusions

import rego.v1

excluded_prefixes := ["virtual/", "acct-group/", "acct-user/"]

excluded_atoms := {
	"sys-kernel/linux-headers",
	"dev-lang/rust-bin",
}

deny contains violation if {
	input.package
	some prefix in excluded_prefixes
	startswith(input.package.atom, prefix)
	violation := {
		"message": sprintf("package %s is excluded from builds (%s*)", [input.package.atom, prefix]),
		"severity": "error",
		"package": input.package.atom,
	}
}

deny contains violation if {
	input.package
	input.package.atom in excluded_atoms
	violation := {
		"message": sprintf("package %s is excluded from builds", [input.package.atom]),
		"severity": "error",
		"package": input.package.atom,
	}
}
`,
	}
}

// unknownTierPolicy flags packages the tier metadata never classified.
func unknownTierPolicy() Policy {
	return Policy{
		Name:        "unknown-tier",
		Description: "Warns about packages without a tier classification",
		Severity:    SeverityWarning,
		Enabled:     true,
		CreatedAt:   time.Now(),
		Rego: `package buildwave.policies.tiers

import rego.v1

deny contains violation if {
	input.package
	input.package.tier in {"", "unknown"}
	violation := {
		"message": sprintf("package %s has no tier classification", [input.package.atom]),
		"severity": "warning",
		"package": input.package.atom,
	}
}
`,
	}
}

// oversizedWavePolicy flags waves too wide to schedule sensibly, which
// usually means the edge extraction missed dependencies.
func oversizedWavePolicy() Policy {
	return Policy{
		Name:        "oversized-wave",
		Description: "Warns when a wave holds more than 128 packages",
		Severity:    SeverityWarning,
		Enabled:     true,
		CreatedAt:   time.Now(),
		Rego: `package buildwave.policies.waves

import rego.v1

deny contains violation if {
	input.package
	input.package.wave_size > 128
	violation := {
		"message": sprintf("wave %d holds %d packages, dependency extraction may be incomplete", [input.package.wave, input.package.wave_size]),
		"severity": "warning",
		"package": input.package.atom,
	}
}
`,
	}
}
