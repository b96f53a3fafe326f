package resolve

import (
	"regexp"
	"strings"
)

// Token grammars, case-sensitive. Lookup tokens (vault/inventory/config) may
// appear embedded inside a longer string; allocation tokens must be the
// entire string value, since their replacements are not always strings.
var (
	vaultPattern     = regexp.MustCompile(`vault:[A-Za-z0-9_-]+(?:\.[A-Za-z0-9_-]+)+`)
	inventoryPattern = regexp.MustCompile(`inventory:[A-Za-z0-9_-]+(?:\.[A-Za-z0-9_-]+)*`)
	configPattern    = regexp.MustCompile(`config:[A-Za-z0-9_-]+(?:\.[A-Za-z0-9_-]+)*`)

	vmidPattern = regexp.MustCompile(`^(vm|lxc):id:([A-Za-z0-9_-]+)$`)
	ipPattern   = regexp.MustCompile(`^ip:([A-Za-z0-9_-]+):([A-Za-z0-9_-]+)$`)

	// anyTokenPattern recognizes every grammar; used to flag leftovers at a
	// must-be-concrete boundary.
	anyTokenPattern = regexp.MustCompile(
		`vault:[A-Za-z0-9_-]+(?:\.[A-Za-z0-9_-]+)+` +
			`|inventory:[A-Za-z0-9_-]+(?:\.[A-Za-z0-9_-]+)*` +
			`|config:[A-Za-z0-9_-]+(?:\.[A-Za-z0-9_-]+)*` +
			`|^(?:vm|lxc):id:[A-Za-z0-9_-]+$` +
			`|^ip:[A-Za-z0-9_-]+:[A-Za-z0-9_-]+$` +
			`|^host:ip$`)
)

// hostIPToken resolves to an interface address of the build host.
const hostIPToken = "host:ip"

// splitPath splits the payload of a lookup token into path segments.
func splitPath(payload string) []string {
	return strings.Split(payload, ".")
}
