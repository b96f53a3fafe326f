// Package workflow orchestrates the end-to-end provisioning flows: resolve
// a manifest's variable document, gate it through policy, hand it to
// Terraform or Packer, and commit the reservation deltas to the inventory
// only after the external tool succeeded. Run history goes to the SQLite
// store when one is configured.
package workflow
