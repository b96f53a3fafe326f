package config

import (
	"encoding/json"
)

// RunManifest describes one Terraform run: where the module lives and the
// variable document handed to it after resolution.
type RunManifest struct {
	// Name identifies the run in logs and run history.
	Name string `json:"name" validate:"required"`

	// Dir is the Terraform working directory, relative to the manifest.
	Dir string `json:"dir" validate:"required"`

	// Vars is the variable document passed to Terraform. String values may
	// embed reference tokens; the workflow resolves them before the run.
	Vars json.RawMessage `json:"vars" validate:"required"`
}

// BuildManifest describes one Packer template build.
type BuildManifest struct {
	// Name identifies the build and becomes the template's registry key.
	Name string `json:"name" validate:"required"`

	// Version is the build version recorded in the template registry.
	Version string `json:"version" validate:"required"`

	// Dir is the Packer working directory, relative to the manifest.
	Dir string `json:"dir" validate:"required"`

	// Template is the Packer template file inside Dir.
	Template string `json:"template" validate:"required"`

	// Network names the inventory network the build host lives on; the
	// host:ip token resolves against it.
	Network string `json:"network" validate:"required"`

	// ISO describes the installer image the build boots from.
	ISO ISOSpec `json:"iso" validate:"required"`

	// BuildHost is the machine Packer connects through. Empty host means
	// the build runs on the local machine.
	BuildHost BuildHostSpec `json:"build_host,omitempty"`

	// Vars is the variable document passed to Packer, token rules as in
	// RunManifest.
	Vars json.RawMessage `json:"vars" validate:"required"`
}

// ISOSpec names an installer image and where to fetch it from.
type ISOSpec struct {
	// Name is the image file name on the storage pool.
	Name string `json:"name" validate:"required"`

	// URL is where the cluster downloads the image from if missing.
	URL string `json:"url" validate:"required,url"`

	// Storage overrides the inventory's default ISO storage pool.
	Storage string `json:"storage,omitempty"`
}

// BuildHostSpec is the SSH coordinate of a remote build host.
type BuildHostSpec struct {
	Host    string `json:"host,omitempty"`
	User    string `json:"user,omitempty"`
	KeyPath string `json:"key_path,omitempty"`
}

// Remote reports whether the build runs on a remote host.
func (b BuildHostSpec) Remote() bool {
	return b.Host != ""
}
