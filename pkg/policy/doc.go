// Package policy gates workflows with Rego policies evaluated through OPA.
//
// Before a Terraform or Packer run touches the cluster, the workflow hands
// the resolved variable document and the current inventory to the policy
// engine. Built-in policies catch leftover reference tokens and VM IDs
// outside their type ranges; operators can layer their own .rego files on
// top. A violation at error severity or above blocks the run.
package policy
