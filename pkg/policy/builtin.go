package policy

// BuiltinPolicies returns the policies every engine starts with.
func BuiltinPolicies() []Policy {
	return []Policy{
		unresolvedTokenPolicy(),
		vmidRangePolicy(),
		templateRangePolicy(),
	}
}

// unresolvedTokenPolicy blocks runs whose variable document still carries
// reference tokens after all resolution passes.
func unresolvedTokenPolicy() Policy {
	return Policy{
		Name:        "unresolved-tokens",
		Description: "Blocks runs with unresolved reference tokens in the variable document",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"resolution"},
		Rego: `package proxforge.policies.resolution

import rego.v1

token_pattern := "((vault|inventory|config):[A-Za-z0-9_-]+(\\.[A-Za-z0-9_-]+)+|(vm|lxc):id:[A-Za-z0-9_-]+|ip:[A-Za-z0-9_-]+:[A-Za-z0-9_-]+|host:ip)"

deny contains violation if {
	some path, value
	walk(input.vars, [path, value])
	is_string(value)
	regex.match(token_pattern, value)
	violation := {
		"message": sprintf("unresolved reference token in %q", [value]),
		"severity": "error",
		"path": concat(".", [sprintf("%v", [p]) | some p in path]),
	}
}
`,
	}
}

// vmidRangePolicy enforces the fixed VM ID range per host type.
func vmidRangePolicy() Policy {
	return Policy{
		Name:        "vmid-ranges",
		Description: "Enforces the per-type VM ID ranges on inventory hosts",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"inventory", "vmid"},
		Rego: `package proxforge.policies.vmid

import rego.v1

ranges := {
	"baremetal": [0, 99],
	"vm": [100, 199],
	"lxc": [200, 299],
}

deny contains violation if {
	some host in input.inventory.hosts
	r := ranges[host.type]
	host.vmid < r[0]
	violation := out_of_range(host)
}

deny contains violation if {
	some host in input.inventory.hosts
	r := ranges[host.type]
	host.vmid > r[1]
	violation := out_of_range(host)
}

out_of_range(host) := {
	"message": sprintf("host %s has vmid %d outside the %s range", [host.name, host.vmid, host.type]),
	"severity": "error",
}
`,
	}
}

// templateRangePolicy keeps template VM IDs inside the template range.
func templateRangePolicy() Policy {
	return Policy{
		Name:        "template-ranges",
		Description: "Keeps template VM IDs inside the 300-399 range",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"inventory", "vmid"},
		Rego: `package proxforge.policies.templates

import rego.v1

deny contains violation if {
	some tpl in input.inventory.templates
	not in_range(tpl.vmid)
	violation := {
		"message": sprintf("template %s has vmid %d outside the template range", [tpl.name, tpl.vmid]),
		"severity": "error",
	}
}

in_range(vmid) if {
	vmid >= 300
	vmid <= 399
}
`,
	}
}
