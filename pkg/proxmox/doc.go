// Package proxmox is a thin client for the slice of the Proxmox VE REST API
// the build workflow needs: checking and downloading ISO images on a storage
// pool, and querying or deleting VM templates.
//
// The ISO download is the one retry loop in the system: a fixed-interval,
// bounded poll for the image to appear on storage. Everything else is a
// single request.
package proxmox
