package resolve

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/proxforge/proxforge/pkg/alloc"
	"github.com/proxforge/proxforge/pkg/inventory"
	"github.com/proxforge/proxforge/pkg/ledger"
	"github.com/proxforge/proxforge/pkg/vault"
)

// Engine runs the ordered resolution passes over decoded JSON documents.
type Engine struct {
	logger zerolog.Logger
}

// NewEngine creates a resolution engine.
func NewEngine() *Engine {
	return &Engine{
		logger: log.With().Str("component", "resolve").Logger(),
	}
}

// Decode parses raw JSON into the tree form the passes operate on.
func Decode(raw []byte) (any, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// Encode serializes a resolved tree back to JSON.
func Encode(doc any) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

// VaultPass substitutes vault:<secret>.<field...> tokens from a previously
// fetched secret list. Only plain-string results are substituted; a missing
// secret or field leaves the token in place, since vaults are routinely
// only partially populated.
func (e *Engine) VaultPass(doc any, secrets []vault.Secret) (any, error) {
	root := make([]any, 0, len(secrets))
	for _, s := range secrets {
		tree, err := toTree(s)
		if err != nil {
			return nil, fmt.Errorf("vault pass: %w", err)
		}
		root = append(root, tree)
	}
	return e.lookupPass(doc, vaultPattern, "vault:", any(root), true), nil
}

// InventoryPass substitutes inventory:<path...> tokens from the inventory
// document. Values of any JSON type substitute when the token is the whole
// string; embedded tokens substitute scalars only.
func (e *Engine) InventoryPass(doc any, inv *inventory.Inventory) (any, error) {
	root, err := toTree(inv)
	if err != nil {
		return nil, fmt.Errorf("inventory pass: %w", err)
	}
	return e.lookupPass(doc, inventoryPattern, "inventory:", root, false), nil
}

// ConfigPass substitutes config:<path...> tokens from the document itself,
// letting one part of a manifest reference a sibling field. Lookups run
// against a snapshot taken before any rewriting, so the pass result does not
// depend on traversal order.
func (e *Engine) ConfigPass(doc any) (any, error) {
	snapshot, err := toTree(doc)
	if err != nil {
		return nil, fmt.Errorf("config pass: %w", err)
	}
	return e.lookupPass(doc, configPattern, "config:", snapshot, false), nil
}

// AllocationPass replaces vm:id:<label>, lxc:id:<label>, and
// ip:<network>:<label> tokens with reserved values from the ledger. The
// token text is the refId, so a repeated label resolves to the same value.
//
// In destroy mode the pass releases bindings instead of creating them,
// substituting the previously bound value so the document still describes
// the resources being torn down. A destroy token with no binding is left in
// place for CheckResolved to flag.
func (e *Engine) AllocationPass(doc any, led *ledger.Ledger, destroy bool) (any, error) {
	return walk(doc, func(s string) (any, bool, error) {
		if m := vmidPattern.FindStringSubmatch(s); m != nil {
			return e.resolveVMID(led, alloc.ResourceType(m[1]), s, destroy)
		}
		if m := ipPattern.FindStringSubmatch(s); m != nil {
			return e.resolveIP(led, m[1], s, destroy)
		}
		return nil, false, nil
	})
}

// HostIPPass replaces the host:ip token with the first of the given
// interface addresses that falls inside the target network's subnet: the
// address masked by the network's prefix length must equal the network's
// base address masked the same way.
func (e *Engine) HostIPPass(doc any, network inventory.Network, addrs []netip.Prefix) (any, error) {
	subnet, err := netip.ParsePrefix(network.Subnet)
	if err != nil {
		return nil, fmt.Errorf("host ip pass: bad subnet %q: %w", network.Subnet, err)
	}

	var hostAddr netip.Addr
	for _, candidate := range addrs {
		if subnet.Contains(candidate.Addr().Unmap()) {
			hostAddr = candidate.Addr().Unmap()
			break
		}
	}

	return walk(doc, func(s string) (any, bool, error) {
		if s != hostIPToken {
			return nil, false, nil
		}
		if !hostAddr.IsValid() {
			return nil, false, fmt.Errorf("host ip pass: no interface address inside network %q (%s)", network.Name, network.Subnet)
		}
		e.logger.Debug().Str("network", network.Name).Str("ip", hostAddr.String()).Msg("host ip resolved")
		return hostAddr.String(), true, nil
	})
}

// Unresolved returns every token of any grammar still present in the
// document, in deterministic traversal order.
func Unresolved(doc any) []string {
	var tokens []string
	_, _ = walk(doc, func(s string) (any, bool, error) {
		tokens = append(tokens, anyTokenPattern.FindAllString(s, -1)...)
		return nil, false, nil
	})
	return tokens
}

// CheckResolved fails with an UnresolvedError if any token survives. Call
// it at the boundary where the document is handed to external tooling.
func CheckResolved(doc any) error {
	if tokens := Unresolved(doc); len(tokens) > 0 {
		return &UnresolvedError{Tokens: tokens}
	}
	return nil
}

func (e *Engine) resolveVMID(led *ledger.Ledger, t alloc.ResourceType, refID string, destroy bool) (any, bool, error) {
	if destroy {
		id, ok := led.ReleaseVMID(refID)
		if !ok {
			e.logger.Warn().Str("refId", refID).Msg("destroy found no vmid binding")
			return nil, false, nil
		}
		return float64(id), true, nil
	}
	id, err := led.ReserveVMID(t, refID)
	if err != nil {
		return nil, false, err
	}
	return float64(id), true, nil
}

func (e *Engine) resolveIP(led *ledger.Ledger, networkName, refID string, destroy bool) (any, bool, error) {
	if destroy {
		addr, ok := led.ReleaseIP(refID)
		if !ok {
			e.logger.Warn().Str("refId", refID).Msg("destroy found no ip binding")
			return nil, false, nil
		}
		if network, ok := led.Inventory().Network(networkName); ok {
			if subnet, err := netip.ParsePrefix(network.Subnet); err == nil {
				return netip.PrefixFrom(addr, subnet.Bits()).String(), true, nil
			}
		}
		return addr.String(), true, nil
	}
	prefix, err := led.ReserveIP(networkName, refID)
	if err != nil {
		return nil, false, err
	}
	return prefix.String(), true, nil
}

// lookupPass rewrites tokens of one lookup grammar against a navigation
// root. Whole-string tokens substitute structurally; embedded tokens splice
// scalar results into the surrounding string. stringsOnly restricts
// substitution to plain-string results (the vault rule).
func (e *Engine) lookupPass(doc any, pattern *regexp.Regexp, prefix string, root any, stringsOnly bool) any {
	out, _ := walk(doc, func(s string) (any, bool, error) {
		// Whole-string token: the replacement may be any JSON type.
		if pattern.FindString(s) == s {
			value, ok := LookupPath(root, splitPath(strings.TrimPrefix(s, prefix)))
			if !ok {
				e.logger.Debug().Str("token", s).Msg("lookup miss, token left intact")
				return nil, false, nil
			}
			if stringsOnly {
				str, isStr := value.(string)
				if !isStr {
					return nil, false, nil
				}
				return str, true, nil
			}
			return value, true, nil
		}

		// Embedded tokens: splice scalars, leave everything else.
		replaced := false
		rewritten := pattern.ReplaceAllStringFunc(s, func(token string) string {
			value, ok := LookupPath(root, splitPath(strings.TrimPrefix(token, prefix)))
			if !ok {
				return token
			}
			text, ok := scalarString(value, stringsOnly)
			if !ok {
				return token
			}
			replaced = true
			return text
		})
		if !replaced {
			return nil, false, nil
		}
		return rewritten, true, nil
	})
	return out
}

// scalarString renders a looked-up value for splicing into a string.
func scalarString(value any, stringsOnly bool) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case float64:
		if stringsOnly {
			return "", false
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return string(raw), true
	case bool:
		if stringsOnly {
			return "", false
		}
		return fmt.Sprintf("%t", v), true
	default:
		return "", false
	}
}

// walk rewrites string leaves of a decoded JSON tree. Map keys are visited
// in sorted order so passes with side effects (allocation) are
// deterministic regardless of Go's map iteration order.
func walk(doc any, rewrite func(string) (any, bool, error)) (any, error) {
	switch node := doc.(type) {
	case map[string]any:
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(node))
		for _, k := range keys {
			child, err := walk(node[k], rewrite)
			if err != nil {
				return nil, err
			}
			out[k] = child
		}
		return out, nil
	case []any:
		out := make([]any, len(node))
		for i, el := range node {
			child, err := walk(el, rewrite)
			if err != nil {
				return nil, err
			}
			out[i] = child
		}
		return out, nil
	case string:
		value, replaced, err := rewrite(node)
		if err != nil {
			return nil, err
		}
		if replaced {
			return value, nil
		}
		return node, nil
	default:
		return node, nil
	}
}
