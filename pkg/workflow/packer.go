package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/proxforge/proxforge/pkg/alloc"
	"github.com/proxforge/proxforge/pkg/config"
	"github.com/proxforge/proxforge/pkg/inventory"
	"github.com/proxforge/proxforge/pkg/ledger"
	"github.com/proxforge/proxforge/pkg/resolve"
	"github.com/proxforge/proxforge/pkg/runner"
	"github.com/proxforge/proxforge/pkg/stores"
)

// pkrVarFileName is the resolved variable file handed to Packer.
const pkrVarFileName = "proxforge.pkrvars.json"

// templateVMIDVar is the variable the build's allocated template VM ID is
// injected under.
const templateVMIDVar = "template_vmid"

// Build runs a Packer template build end to end: ensure the installer ISO is
// on the cluster, resolve the variable document (including the build host's
// own address for the host:ip token), run packer, and register the resulting
// template in the inventory. Registration replaces a same-name template and
// deletes the old guest from the cluster.
func (w *Workflow) Build(ctx context.Context, manifest *config.BuildManifest) (runErr error) {
	logger := w.logger.With().Str("build", manifest.Name).Str("version", manifest.Version).Logger()

	started := time.Now()
	ctx, runID := w.beginRun(ctx, manifest.Name, "build")
	defer func() { w.finishRun(ctx, runID, "build", started, runErr) }()

	if err := w.refreshRepo(ctx, manifest.Dir); err != nil {
		w.logEvent(ctx, runID, stores.EventLevelError, err.Error())
		return err
	}

	inv, err := w.Store.Load()
	if err != nil {
		return newError(CodeSchemaInvalid, "load inventory", err)
	}
	snapshot, err := inv.Clone()
	if err != nil {
		return newError(CodeSchemaInvalid, "clone inventory", err)
	}
	led := ledger.New(snapshot)

	network, ok := snapshot.Network(manifest.Network)
	if !ok {
		return newError(CodeSchemaInvalid, "build network",
			fmt.Errorf("network %q is not in the inventory", manifest.Network))
	}

	if err := w.ensureISO(ctx, snapshot, manifest); err != nil {
		w.logEvent(ctx, runID, stores.EventLevelError, err.Error())
		return err
	}

	// The template's VM ID is allocated up front so the Packer template can
	// create the guest under its final identifier.
	newVMID, err := alloc.NextVMID(alloc.TypeTemplate, snapshot)
	if err != nil {
		return newError(CodeSchemaInvalid, "allocate template vmid", err)
	}
	logger.Info().Int("vmid", newVMID).Msg("template vmid allocated")

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

	doc, err = w.resolver.AllocationPass(doc, led, false)
	if err != nil {
		w.recordAllocationFailure(err)
		return newError(CodeSchemaInvalid, "allocation pass", err)
	}

	doc, err = w.resolveHostIP(ctx, doc, network, manifest.BuildHost)
	if err != nil {
		w.logEvent(ctx, runID, stores.EventLevelError, err.Error())
		return err
	}

	vars, ok := doc.(map[string]any)
	if !ok {
		return newError(CodeSchemaInvalid, "variable document", fmt.Errorf("vars must be a JSON object"))
	}
	vars[templateVMIDVar] = float64(newVMID)
	w.logEvent(ctx, runID, stores.EventLevelInfo, "variable document resolved")

	if err := w.gate(ctx, vars, led.Inventory(), "build", manifest.Name); err != nil {
		w.logEvent(ctx, runID, stores.EventLevelError, err.Error())
		return err
	}

	if _, err := writeVarFile(vars, manifest.Dir, pkrVarFileName); err != nil {
		return newError(CodeSchemaInvalid, "write var file", err)
	}

	packer := runner.Packer{Runner: w.commandRunner(manifest.Dir)}
	if err := w.timedTool(ctx, "packer", "build", func() error {
		return packer.Build(ctx, manifest.Template, pkrVarFileName)
	}); err != nil {
		w.logEvent(ctx, runID, stores.EventLevelError, err.Error())
		return newError(CodeToolFailed, "packer build", err)
	}
	w.logEvent(ctx, runID, stores.EventLevelInfo, "packer build succeeded")

	if err := w.registerTemplate(ctx, led, manifest, newVMID); err != nil {
		w.logEvent(ctx, runID, stores.EventLevelError, err.Error())
		return err
	}
	w.logEvent(ctx, runID, stores.EventLevelInfo,
		fmt.Sprintf("template %s %s registered as vmid %d", manifest.Name, manifest.Version, newVMID))

	logger.Info().Msg("build completed")
	return nil
}

// ensureISO makes sure the installer image is on the cluster's storage,
// downloading it when missing. A nil Proxmox client skips the step; the
// template is then expected to reference an image that already exists.
func (w *Workflow) ensureISO(ctx context.Context, inv *inventory.Inventory, manifest *config.BuildManifest) error {
	if w.Proxmox == nil {
		w.logger.Debug().Msg("no proxmox client, skipping iso check")
		return nil
	}

	storage := manifest.ISO.Storage
	if storage == "" {
		storage = inv.Proxmox.Storage
	}
	if storage == "" {
		return newError(CodeSchemaInvalid, "iso storage",
			fmt.Errorf("no storage pool named in manifest or inventory"))
	}

	present, err := w.Proxmox.CheckISO(ctx, storage, manifest.ISO.Name)
	if err != nil {
		return newError(CodeToolFailed, "ensure iso", err)
	}
	if present {
		w.logger.Debug().Str("iso", manifest.ISO.Name).Msg("iso already on storage")
		return nil
	}

	if err := w.Proxmox.DownloadISO(ctx, storage, manifest.ISO.Name, manifest.ISO.URL); err != nil {
		return newError(CodeToolFailed, "ensure iso", err)
	}
	return nil
}

// resolveHostIP runs the host:ip pass against the build host's interface
// addresses.
func (w *Workflow) resolveHostIP(ctx context.Context, doc any, network inventory.Network, spec config.BuildHostSpec) (any, error) {
	addrs, err := w.buildHostAddrs(ctx, spec)
	if err != nil {
		return nil, newError(CodeToolFailed, "build host addresses", err)
	}
	doc, err = w.resolver.HostIPPass(doc, network, addrs)
	if err != nil {
		return nil, newError(CodeUnresolved, "host ip pass", err)
	}
	return doc, nil
}

// registerTemplate records the built template in the inventory and removes a
// replaced template's guest from the cluster. The inventory write is the
// commit point; it happens only after the build succeeded.
func (w *Workflow) registerTemplate(ctx context.Context, led *ledger.Ledger, manifest *config.BuildManifest, vmid int) error {
	snapshot := led.Inventory()

	old, existed := snapshot.Template(manifest.Name)
	entry := inventory.Template{Name: manifest.Name, Version: manifest.Version, VMID: vmid}
	if existed {
		for i := range snapshot.Templates {
			if snapshot.Templates[i].Name == manifest.Name {
				snapshot.Templates[i] = entry
			}
		}
	} else {
		snapshot.Templates = append(snapshot.Templates, entry)
	}

	if led.Dirty() {
		if err := led.Commit(w.Store); err != nil {
			return newError(CodeCommitFailed, "commit template", err)
		}
	} else if err := w.Store.Persist(snapshot); err != nil {
		return newError(CodeCommitFailed, "commit template", err)
	}

	if existed && old.VMID != vmid && w.Proxmox != nil {
		if err := w.Proxmox.DeleteTemplate(ctx, old.VMID); err != nil {
			// The new template is registered; a stale guest is an operator
			// cleanup, not a failed build.
			w.logger.Warn().Err(err).Int("vmid", old.VMID).Msg("old template not deleted")
		}
	}
	return nil
}
