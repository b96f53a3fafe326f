package alloc

import (
	"github.com/proxforge/proxforge/pkg/inventory"
)

// ResourceType selects which fixed VM-ID range an allocation draws from.
type ResourceType string

const (
	TypeBaremetal ResourceType = "baremetal"
	TypeVM        ResourceType = "vm"
	TypeLXC       ResourceType = "lxc"
	TypeTemplate  ResourceType = "template"
)

// IDRange is an inclusive VM-ID interval.
type IDRange struct {
	Start int
	End   int
}

// The ranges are fixed and disjoint. They are not configurable: the split
// is what lets an ID alone tell you what kind of resource it names.
var idRanges = map[ResourceType]IDRange{
	TypeBaremetal: {Start: 0, End: 99},
	TypeVM:        {Start: 100, End: 199},
	TypeLXC:       {Start: 200, End: 299},
	TypeTemplate:  {Start: 300, End: 399},
}

// RangeFor returns the fixed ID range for a resource type.
func RangeFor(t ResourceType) (IDRange, bool) {
	r, ok := idRanges[t]
	return r, ok
}

// NextVMID returns the lowest free VM ID in the type's range.
//
// The used set is the union of committed host IDs, template IDs, and ledger
// reservations. Two legacy code paths disagreed on this set (hosts-only vs
// templates+reserved); the union is the only definition that cannot hand
// out an ID something already answers to.
func NextVMID(t ResourceType, inv *inventory.Inventory) (int, error) {
	r, ok := idRanges[t]
	if !ok {
		return 0, newError(CodeUnknownType, string(t), "no ID range for resource type")
	}

	used := make(map[int]struct{})
	for _, h := range inv.Hosts {
		used[h.VMID] = struct{}{}
	}
	for _, tpl := range inv.Templates {
		used[tpl.VMID] = struct{}{}
	}
	for _, res := range inv.Reserved.VMIDs {
		used[res.VMID] = struct{}{}
	}

	for id := r.Start; id <= r.End; id++ {
		if _, taken := used[id]; !taken {
			return id, nil
		}
	}

	return 0, newError(CodeNoCapacity, string(t), "all IDs in [%d,%d] are in use", r.Start, r.End)
}
