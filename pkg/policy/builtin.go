package policy

// BuiltinPolicies returns the policies shipped with forge.
func BuiltinPolicies() []Policy {
	return []Policy{
		pillarValuesPolicy(),
		packageListsPolicy(),
		bootstrapFlagPolicy(),
		traitsShapePolicy(),
		emptyProfilePolicy(),
	}
}

// pillarValuesPolicy flags pillar entries that select nothing.
func pillarValuesPolicy() Policy {
	return Policy{
		Name:        "pillar-values",
		Description: "Pillar entries must be a step list, \"all\" or true",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Rego: `package forge.policies.pillars

import rego.v1

deny contains violation if {
	some name, value in input.config.pillars
	not selects_steps(value)
	violation := {
		"message": sprintf("pillar %s has value %v and will not run", [name, value]),
		"key": sprintf("pillars.%s", [name]),
	}
}

deny contains violation if {
	some name, value in input.config.pillars
	is_array(value)
	some step in value
	not is_string(step)
	violation := {
		"message": sprintf("step %v of pillar %s is not a name", [step, name]),
		"key": sprintf("pillars.%s", [name]),
		"severity": "error",
	}
}

deny contains violation if {
	input.config.pillars
	not is_object(input.config.pillars)
	violation := {
		"message": "pillars must be a mapping of pillar name to selection",
		"key": "pillars",
		"severity": "error",
	}
}

selects_steps(value) if is_array(value)

selects_steps(value) if value == true

selects_steps(value) if {
	is_string(value)
	lower(value) == "all"
}
`,
	}
}

// packageListsPolicy checks the per-platform package lists.
func packageListsPolicy() Policy {
	return Policy{
		Name:        "package-lists",
		Description: "Package lists must be non-empty lists of package names without duplicates",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Rego: `package forge.policies.packages

import rego.v1

deny contains violation if {
	some platform, pkgs in input.config.packages
	not is_array(pkgs)
	violation := {
		"message": sprintf("packages for %s must be a list", [platform]),
		"key": sprintf("packages.%s", [platform]),
		"severity": "error",
	}
}

deny contains violation if {
	some platform, pkgs in input.config.packages
	is_array(pkgs)
	count(pkgs) == 0
	violation := {
		"message": sprintf("package list for %s is empty", [platform]),
		"key": sprintf("packages.%s", [platform]),
	}
}

deny contains violation if {
	some platform, pkgs in input.config.packages
	is_array(pkgs)
	some i, pkg in pkgs
	some j, other in pkgs
	i < j
	pkg == other
	violation := {
		"message": sprintf("package %v is listed more than once", [pkg]),
		"key": sprintf("packages.%s", [platform]),
	}
}

deny contains violation if {
	input.context.platform
	input.config.packages
	is_object(input.config.packages)
	not input.config.packages[input.context.platform]
	violation := {
		"message": sprintf("no packages are listed for platform %s", [input.context.platform]),
		"key": "packages",
		"severity": "info",
	}
}
`,
	}
}

// bootstrapFlagPolicy asks for an explicit boolean bootstrap flag.
func bootstrapFlagPolicy() Policy {
	return Policy{
		Name:        "bootstrap-flag",
		Description: "bootstrap should be a boolean",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Rego: `package forge.policies.bootstrap

import rego.v1

deny contains violation if {
	"bootstrap" in object.keys(input.config)
	not is_boolean(input.config.bootstrap)
	violation := {
		"message": sprintf("bootstrap is %v, not a boolean; its truthiness is used", [input.config.bootstrap]),
		"key": "bootstrap",
	}
}
`,
	}
}

// traitsShapePolicy checks the traits list.
func traitsShapePolicy() Policy {
	return Policy{
		Name:        "traits-shape",
		Description: "traits must be a list of names without duplicates",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Rego: `package forge.policies.traits

import rego.v1

deny contains violation if {
	"traits" in object.keys(input.config)
	not is_array(input.config.traits)
	not is_string(input.config.traits)
	violation := {
		"message": "traits must be a list of trait names",
		"key": "traits",
		"severity": "error",
	}
}

deny contains violation if {
	is_array(input.config.traits)
	some i, name in input.config.traits
	some j, other in input.config.traits
	i < j
	name == other
	violation := {
		"message": sprintf("trait %v is listed more than once", [name]),
		"key": "traits",
	}
}
`,
	}
}

// emptyProfilePolicy flags profiles that provision nothing.
func emptyProfilePolicy() Policy {
	return Policy{
		Name:        "empty-profile",
		Description: "A profile should provision something",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Rego: `package forge.policies.empty

import rego.v1

deny contains "profile disables bootstrap and selects no pillars or packages" if {
	input.config.bootstrap == false
	count(object.get(input.config, "pillars", {})) == 0
	count(object.get(input.config, "packages", {})) == 0
}
`,
	}
}
