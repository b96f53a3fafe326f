package inventory

import (
	"encoding/json"
)

// Inventory is the root inventory document.
type Inventory struct {
	// Proxmox holds the cluster connection settings. The allocation and
	// resolution layers treat it as opaque; only the Proxmox API client
	// interprets it.
	Proxmox ProxmoxConfig `json:"proxmox" validate:"required"`

	// Terraform carries backend configuration passed through to the
	// Terraform workflow untouched.
	Terraform TerraformConfig `json:"terraform,omitempty"`

	// Networks are the routable networks VMs can be attached to.
	Networks []Network `json:"networks,omitempty" validate:"dive"`

	// Hosts are already-committed resources. Their VM IDs and interface
	// addresses are permanently excluded from allocation.
	Hosts []Host `json:"hosts,omitempty" validate:"dive"`

	// Templates are committed build artifacts. Their VM IDs are excluded
	// from allocation.
	Templates []Template `json:"templates,omitempty" validate:"dive"`

	// Reserved is the persisted state of the reservation ledger.
	Reserved Reserved `json:"reserved,omitempty"`
}

// ProxmoxConfig holds connection settings for the Proxmox VE API.
type ProxmoxConfig struct {
	// Endpoint is the API base URL, e.g. "https://pve.example.com:8006".
	Endpoint string `json:"endpoint" validate:"required,url"`

	// Node is the cluster node new guests are created on.
	Node string `json:"node,omitempty"`

	// TokenID is the API token identifier ("user@realm!tokenid").
	TokenID string `json:"token_id,omitempty"`

	// Secret is the API token secret. Usually injected via a vault
	// reference rather than stored in the inventory file.
	Secret string `json:"secret,omitempty"`

	// Storage is the default storage pool for ISO images.
	Storage string `json:"storage,omitempty"`

	// Insecure disables TLS verification for self-signed clusters.
	Insecure bool `json:"insecure,omitempty"`
}

// TerraformConfig carries opaque Terraform settings.
type TerraformConfig struct {
	// Backend is the backend configuration map, passed through verbatim.
	Backend map[string]any `json:"backend,omitempty"`
}

// Network describes a routable network and the address range ProxForge may
// allocate static IPs from.
type Network struct {
	// Name is the unique key other documents reference the network by.
	Name string `json:"name" validate:"required"`

	// Subnet is the network in CIDR notation, e.g. "10.0.0.0/24".
	Subnet string `json:"subnet" validate:"required,cidr"`

	// Gateway is the default gateway. Implicitly reserved.
	Gateway string `json:"gateway" validate:"required,ip"`

	// DNS is the resolver address. Implicitly reserved.
	DNS string `json:"dns" validate:"required,ip"`

	// StaticRange is the inclusive address interval allocations come from.
	StaticRange StaticRange `json:"static_range" validate:"required"`
}

// StaticRange is an inclusive IP address interval.
type StaticRange struct {
	Start string `json:"start" validate:"required,ip"`
	End   string `json:"end" validate:"required,ip"`
}

// HostType classifies a committed host.
type HostType string

const (
	HostTypeBaremetal HostType = "baremetal"
	HostTypeVM        HostType = "vm"
	HostTypeLXC       HostType = "lxc"
)

// Host is a committed resource whose identifiers are excluded from
// allocation.
type Host struct {
	Name string   `json:"name" validate:"required"`
	VMID int      `json:"vmid"`
	Type HostType `json:"type" validate:"required,oneof=baremetal vm lxc"`

	// Interfaces lists the host's network attachments.
	Interfaces []Interface `json:"interfaces,omitempty" validate:"dive"`
}

// Interface is a single network attachment of a host. IP may carry a prefix
// length suffix ("10.0.0.5/24") or be a bare address.
type Interface struct {
	Network string `json:"network" validate:"required"`
	IP      string `json:"ip" validate:"required"`
}

// Template is a committed Packer build artifact registered in the cluster.
type Template struct {
	// Name is the unique key templates are referenced by.
	Name string `json:"name" validate:"required"`

	// Version is the build version string, e.g. "2024.08.1".
	Version string `json:"version,omitempty"`

	// VMID is the template's VM identifier in the cluster.
	VMID int `json:"vmid"`
}

// Reserved is the persisted reservation ledger state: bindings from a
// reference token to the value allocated for it.
type Reserved struct {
	VMIDs []VMIDReservation `json:"vmids,omitempty" validate:"dive"`
	IPs   []IPReservation   `json:"ips,omitempty" validate:"dive"`
}

// VMIDReservation binds a reference token to an allocated VM ID.
type VMIDReservation struct {
	VMID int `json:"vmid"`

	// RefID is the original textual reference token, e.g. "vm:id:web01".
	// Unique within the list.
	RefID string `json:"refId" validate:"required"`
}

// IPReservation binds a reference token to an allocated IP address.
type IPReservation struct {
	// IP is the bare allocated address, without prefix suffix.
	IP string `json:"ip" validate:"required"`

	// RefID is the original textual reference token, e.g. "ip:lan:web01".
	// Unique within the list.
	RefID string `json:"refId" validate:"required"`
}

// Network returns the named network definition, if present.
func (inv *Inventory) Network(name string) (Network, bool) {
	for _, n := range inv.Networks {
		if n.Name == name {
			return n, true
		}
	}
	return Network{}, false
}

// Template returns the named template, if present.
func (inv *Inventory) Template(name string) (Template, bool) {
	for _, t := range inv.Templates {
		if t.Name == name {
			return t, true
		}
	}
	return Template{}, false
}

// VMIDReservation returns the reservation bound to refID, if any.
func (r *Reserved) VMIDReservation(refID string) (VMIDReservation, bool) {
	for _, res := range r.VMIDs {
		if res.RefID == refID {
			return res, true
		}
	}
	return VMIDReservation{}, false
}

// IPReservation returns the reservation bound to refID, if any.
func (r *Reserved) IPReservation(refID string) (IPReservation, bool) {
	for _, res := range r.IPs {
		if res.RefID == refID {
			return res, true
		}
	}
	return IPReservation{}, false
}

// Clone returns a deep copy of the inventory. Workflows clone the loaded
// snapshot before speculative mutation so a failed run cannot leak state
// into a retained original.
func (inv *Inventory) Clone() (*Inventory, error) {
	raw, err := json.Marshal(inv)
	if err != nil {
		return nil, err
	}
	var out Inventory
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
