// Package runner executes external tooling (terraform, packer, git, the
// vault CLI) as subprocesses.
//
// The core engine never shells out; everything that does goes through the
// Runner interface so workflows can be tested against a fake. The exec-backed
// implementation streams subprocess output into the structured log as it
// arrives and returns captured stdout when the process exits.
package runner
