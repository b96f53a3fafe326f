package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/proxforge/proxforge/pkg/config"
	"github.com/proxforge/proxforge/pkg/ledger"
	"github.com/proxforge/proxforge/pkg/resolve"
	"github.com/proxforge/proxforge/pkg/runner"
	"github.com/proxforge/proxforge/pkg/stores"
)

// varFileName is the resolved variable file handed to Terraform.
const varFileName = "proxforge.tfvars.json"

// Apply resolves the manifest's variable document, gates it through policy,
// runs terraform init+apply, and commits the reservation deltas on success.
func (w *Workflow) Apply(ctx context.Context, manifest *config.RunManifest) error {
	return w.terraformRun(ctx, manifest, false)
}

// Destroy is the inverse flow: reserved bindings are released instead of
// created, terraform destroy runs against the previously bound values, and
// the releases reach the inventory only after destroy succeeded.
func (w *Workflow) Destroy(ctx context.Context, manifest *config.RunManifest) error {
	return w.terraformRun(ctx, manifest, true)
}

func (w *Workflow) terraformRun(ctx context.Context, manifest *config.RunManifest, destroy bool) (runErr error) {
	operation := "apply"
	if destroy {
		operation = "destroy"
	}
	logger := w.logger.With().Str("run", manifest.Name).Str("operation", operation).Logger()

	started := time.Now()
	ctx, runID := w.beginRun(ctx, manifest.Name, operation)
	defer func() { w.finishRun(ctx, runID, operation, started, runErr) }()

	if err := w.refreshRepo(ctx, manifest.Dir); err != nil {
		w.logEvent(ctx, runID, stores.EventLevelError, err.Error())
		return err
	}

	inv, err := w.Store.Load()
	if err != nil {
		return newError(CodeSchemaInvalid, "load inventory", err)
	}

	// All speculative mutation happens on a clone; the loaded snapshot
	// stays pristine for error reporting.
	snapshot, err := inv.Clone()
	if err != nil {
		return newError(CodeSchemaInvalid, "clone inventory", err)
	}
	led := ledger.New(snapshot)

	secrets, releaseVault, err := w.openVault(ctx)
	defer releaseVault()
	if err != nil {
		return err
	}

	doc, err := resolve.Decode(manifest.Vars)
	if err != nil {
		return newError(CodeSchemaInvalid, "decode variables", err)
	}

	doc, err = w.resolveLookups(doc, snapshot, secrets)
	if err != nil {
		return err
	}

	doc, err = w.resolver.AllocationPass(doc, led, destroy)
	if err != nil {
		w.recordAllocationFailure(err)
		return newError(CodeSchemaInvalid, "allocation pass", err)
	}
	w.logEvent(ctx, runID, stores.EventLevelInfo, "variable document resolved")

	if err := w.gate(ctx, doc, led.Inventory(), operation, manifest.Name); err != nil {
		w.logEvent(ctx, runID, stores.EventLevelError, err.Error())
		return err
	}

	varFile, err := writeVarFile(doc, manifest.Dir, varFileName)
	if err != nil {
		return newError(CodeSchemaInvalid, "write var file", err)
	}
	logger.Debug().Str("var_file", varFile).Msg("variables written")

	tf := runner.Terraform{
		Runner:  w.commandRunner(manifest.Dir),
		VarFile: varFileName,
	}

	if err := w.timedTool(ctx, "terraform", "init", func() error {
		return tf.Init(ctx, inv.Terraform.Backend)
	}); err != nil {
		w.logEvent(ctx, runID, stores.EventLevelError, err.Error())
		return newError(CodeToolFailed, "terraform init", err)
	}

	toolErr := w.timedTool(ctx, "terraform", operation, func() error {
		if destroy {
			return tf.Destroy(ctx)
		}
		return tf.Apply(ctx)
	})
	if toolErr != nil {
		// The inventory file is untouched: nothing was committed, so the
		// next run re-derives the same allocations.
		w.logEvent(ctx, runID, stores.EventLevelError, toolErr.Error())
		return newError(CodeToolFailed, "terraform "+operation, toolErr)
	}
	w.logEvent(ctx, runID, stores.EventLevelInfo, fmt.Sprintf("terraform %s succeeded", operation))

	w.recordAllocations(ctx, runID, led)
	if err := led.Commit(w.Store); err != nil {
		// The cluster now disagrees with the inventory file. Surface loudly;
		// re-running apply is safe because reservation is idempotent.
		w.logEvent(ctx, runID, stores.EventLevelError, err.Error())
		return newError(CodeCommitFailed, "commit reservations", err)
	}
	w.logEvent(ctx, runID, stores.EventLevelInfo, "reservation deltas committed")

	logger.Info().Msg("run completed")
	return nil
}

// timedTool runs fn and observes its duration in metrics.
func (w *Workflow) timedTool(_ context.Context, tool, command string, fn func() error) error {
	start := time.Now()
	err := fn()
	if w.Metrics != nil {
		w.Metrics.RecordToolRun(tool, command, time.Since(start), err)
	}
	return err
}
