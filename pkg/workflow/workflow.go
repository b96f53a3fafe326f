package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"

	"github.com/proxforge/proxforge/pkg/alloc"
	"github.com/proxforge/proxforge/pkg/inventory"
	"github.com/proxforge/proxforge/pkg/ledger"
	"github.com/proxforge/proxforge/pkg/policy"
	"github.com/proxforge/proxforge/pkg/resolve"
	"github.com/proxforge/proxforge/pkg/runner"
	"github.com/proxforge/proxforge/pkg/stores"
	"github.com/proxforge/proxforge/pkg/telemetry"
	"github.com/proxforge/proxforge/pkg/vault"
)

// ProxmoxAPI is the slice of the Proxmox client the build workflow uses.
type ProxmoxAPI interface {
	CheckISO(ctx context.Context, storage, isoName string) (bool, error)
	DownloadISO(ctx context.Context, storage, isoName, sourceURL string) error
	DeleteTemplate(ctx context.Context, vmid int) error
}

// Workflow carries the collaborators every flow shares. Zero-value optional
// fields (Vault, Proxmox, History, Metrics) disable the corresponding step.
type Workflow struct {
	// Store is the inventory file store. Required.
	Store *inventory.Store

	// Policy gates resolved documents before external tools run. Required.
	Policy *policy.Engine

	// NewRunner builds the command runner for a working directory. Swapped
	// out in tests; nil means runner.NewExecRunner.
	NewRunner func(dir string) runner.Runner

	// Vault supplies secrets for the vault pass. Nil skips the pass.
	Vault vault.Client

	// VaultPassword unlocks the vault when set.
	VaultPassword string

	// Proxmox talks to the cluster for ISO and template management.
	Proxmox ProxmoxAPI

	// History records runs, events and allocations. Nil disables history.
	History stores.Store

	// Metrics records run and allocation counters. Nil disables metrics.
	Metrics *telemetry.Metrics

	// Tracer wraps each run in a span. Nil disables tracing.
	Tracer *telemetry.Tracer

	// RefreshRepo fast-forwards the manifest's git checkout before each
	// run, so the external tool sees the latest committed sources.
	RefreshRepo bool

	resolver *resolve.Engine
	logger   zerolog.Logger
}

// New creates a workflow around the required collaborators.
func New(store *inventory.Store, policyEngine *policy.Engine) *Workflow {
	return &Workflow{
		Store:    store,
		Policy:   policyEngine,
		resolver: resolve.NewEngine(),
		logger:   log.With().Str("component", "workflow").Logger(),
	}
}

func (w *Workflow) commandRunner(dir string) runner.Runner {
	if w.NewRunner != nil {
		return w.NewRunner(dir)
	}
	return runner.NewExecRunner(dir)
}

// openVault opens the vault session and lists its items. The returned
// release locks the session again, and logs out when this run performed the
// login; callers defer it so no exit path leaves the session open. A nil
// vault client yields no secrets and a no-op release. The release is valid
// even when openVault returns an error.
func (w *Workflow) openVault(ctx context.Context) ([]vault.Secret, func(), error) {
	if w.Vault == nil {
		return nil, func() {}, nil
	}
	performedLogin, err := w.Vault.Login(ctx)
	if err != nil {
		return nil, func() {}, newError(CodeVaultFailed, "vault login", err)
	}
	release := func() {
		if err := w.Vault.Lock(ctx); err != nil {
			w.logger.Warn().Err(err).Msg("vault session still unlocked")
		}
		if performedLogin {
			if err := w.Vault.Logout(ctx); err != nil {
				w.logger.Warn().Err(err).Msg("vault session not ended")
			}
		}
	}

	if err := w.Vault.Unlock(ctx, w.VaultPassword); err != nil {
		return nil, release, newError(CodeVaultFailed, "vault unlock", err)
	}
	secrets, err := w.Vault.List(ctx)
	if err != nil {
		return nil, release, newError(CodeVaultFailed, "vault list", err)
	}
	return secrets, release, nil
}

// refreshRepo fast-forwards the manifest's checkout. A no-op unless
// RefreshRepo is set.
func (w *Workflow) refreshRepo(ctx context.Context, dir string) error {
	if !w.RefreshRepo {
		return nil
	}
	g := runner.Git{Runner: w.commandRunner(dir)}
	if err := g.Pull(ctx); err != nil {
		return newError(CodeToolFailed, "git pull", err)
	}
	head, err := g.RevParse(ctx)
	if err != nil {
		return newError(CodeToolFailed, "git rev-parse", err)
	}
	w.logger.Info().Str("commit", head).Msg("manifest checkout refreshed")
	return nil
}

// resolveLookups runs the ordered lookup passes: vault, inventory, config.
// The allocation pass is the caller's, because terraform and packer flows
// differ in what they allocate.
func (w *Workflow) resolveLookups(doc any, inv *inventory.Inventory, secrets []vault.Secret) (any, error) {
	before := len(resolve.Unresolved(doc))
	var err error

	doc, err = w.timedPass("vault", doc, func(d any) (any, error) {
		return w.resolver.VaultPass(d, secrets)
	})
	if err != nil {
		return nil, newError(CodeSchemaInvalid, "vault pass", err)
	}
	doc, err = w.timedPass("inventory", doc, func(d any) (any, error) {
		return w.resolver.InventoryPass(d, inv)
	})
	if err != nil {
		return nil, newError(CodeSchemaInvalid, "inventory pass", err)
	}
	doc, err = w.timedPass("config", doc, w.resolver.ConfigPass)
	if err != nil {
		return nil, newError(CodeSchemaInvalid, "config pass", err)
	}

	w.logger.Debug().
		Int("tokens_before", before).
		Int("tokens_after", len(resolve.Unresolved(doc))).
		Msg("lookup passes finished")
	return doc, nil
}

// timedPass runs one resolution pass and observes its duration and the number
// of tokens it eliminated.
func (w *Workflow) timedPass(name string, doc any, fn func(any) (any, error)) (any, error) {
	before := len(resolve.Unresolved(doc))
	start := time.Now()
	out, err := fn(doc)
	if err != nil {
		return nil, err
	}
	if w.Metrics != nil {
		w.Metrics.RecordPass(name, time.Since(start), before-len(resolve.Unresolved(out)))
	}
	return out, nil
}

// gate evaluates the resolved document and inventory against policy, then
// checks that no token survived resolution.
func (w *Workflow) gate(ctx context.Context, doc any, inv *inventory.Inventory, operation, run string) error {
	invTree, err := toTree(inv)
	if err != nil {
		return newError(CodeSchemaInvalid, "policy input", err)
	}

	result, err := w.Policy.Evaluate(ctx, &policy.Input{
		Vars:      doc,
		Inventory: invTree,
		Operation: operation,
		Run:       run,
	})
	if err != nil {
		return newError(CodePolicyDenied, "policy evaluation", err)
	}
	for _, v := range result.Violations {
		w.logger.Warn().
			Str("policy", v.Policy).
			Str("severity", string(v.Severity)).
			Msg(v.Message)
		if w.Metrics != nil {
			w.Metrics.RecordPolicyViolation(v.Policy, string(v.Severity))
		}
	}
	if !result.Allowed {
		return newError(CodePolicyDenied, "policy gate", fmt.Errorf("%d violation(s)", len(result.Violations)))
	}

	if err := resolve.CheckResolved(doc); err != nil {
		return newError(CodeUnresolved, "final check", err)
	}
	return nil
}

// writeVarFile serializes the resolved document next to the tool's working
// directory and returns its path.
func writeVarFile(doc any, dir, name string) (string, error) {
	raw, err := resolve.Encode(doc)
	if err != nil {
		return "", fmt.Errorf("serialize variables: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, append(raw, '\n'), 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// beginRun opens a run record in history and, when a tracer is configured,
// starts the run's span on the returned context.
func (w *Workflow) beginRun(ctx context.Context, manifest, operation string) (context.Context, string) {
	runID := uuid.NewString()
	if w.Tracer != nil {
		ctx, _ = w.Tracer.StartRunSpan(ctx, runID, operation)
	}
	if w.Metrics != nil {
		w.Metrics.RecordRunStarted(operation)
	}
	if w.History == nil {
		return ctx, runID
	}

	now := time.Now()
	err := w.History.CreateRun(ctx, &stores.Run{
		ID:        runID,
		Manifest:  manifest,
		Operation: operation,
		Status:    stores.RunStatusRunning,
		StartedAt: now,
		Metadata:  "{}",
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		w.logger.Warn().Err(err).Msg("run history unavailable")
	}
	return ctx, runID
}

// finishRun closes the run record, ends the run span, and observes run
// metrics. History failures only log; they never turn a successful apply into
// a failed run.
func (w *Workflow) finishRun(ctx context.Context, runID, operation string, started time.Time, runErr error) {
	if w.Tracer != nil {
		span := trace.SpanFromContext(ctx)
		if runErr != nil {
			telemetry.RecordError(span, runErr)
		} else {
			telemetry.RecordSuccess(span)
		}
		span.End()
	}

	status := stores.RunStatusCompleted
	var errMsg *string
	if runErr != nil {
		status = stores.RunStatusFailed
		msg := runErr.Error()
		errMsg = &msg
	}
	if w.Metrics != nil {
		w.Metrics.RecordRunCompleted(operation, string(status), time.Since(started))
	}
	if w.History == nil {
		return
	}
	if err := w.History.UpdateRunStatus(ctx, runID, status, errMsg); err != nil {
		w.logger.Warn().Err(err).Msg("run history unavailable")
	}
}

// logEvent appends an event to the run's history log.
func (w *Workflow) logEvent(ctx context.Context, runID string, level stores.EventLevel, message string) {
	if w.History == nil {
		return
	}
	err := w.History.AppendEvent(ctx, &stores.Event{
		RunID:     runID,
		Level:     level,
		Message:   message,
		Timestamp: time.Now(),
	})
	if err != nil {
		w.logger.Warn().Err(err).Msg("run history unavailable")
	}
}

// recordAllocationFailure classifies a failed allocation for metrics. VM ID
// errors carry the resource type as their resource; IP errors carry the
// network name.
func (w *Workflow) recordAllocationFailure(err error) {
	if w.Metrics == nil {
		return
	}
	var allocErr *alloc.Error
	if !errors.As(err, &allocErr) {
		return
	}
	kind := "ip"
	if _, ok := alloc.RangeFor(alloc.ResourceType(allocErr.Resource)); ok {
		kind = "vmid"
	}
	w.Metrics.RecordAllocationFailure(kind, string(allocErr.Code))
}

// recordAllocations writes the ledger's committed deltas to run history and
// metrics.
func (w *Workflow) recordAllocations(ctx context.Context, runID string, led *ledger.Ledger) {
	now := time.Now()
	for _, res := range led.PendingVMIDs() {
		if w.Metrics != nil {
			w.Metrics.RecordAllocation("vmid")
		}
		if w.History != nil {
			_ = w.History.RecordAllocation(ctx, &stores.Allocation{
				RunID:     runID,
				Kind:      "vmid",
				RefID:     res.RefID,
				Value:     fmt.Sprintf("%d", res.VMID),
				CreatedAt: now,
			})
		}
	}
	for _, res := range led.PendingIPs() {
		if w.Metrics != nil {
			w.Metrics.RecordAllocation("ip")
		}
		if w.History != nil {
			_ = w.History.RecordAllocation(ctx, &stores.Allocation{
				RunID:     runID,
				Kind:      "ip",
				RefID:     res.RefID,
				Value:     res.IP,
				CreatedAt: now,
			})
		}
	}
	vmids, ips := led.Released()
	if w.Metrics != nil {
		for range vmids {
			w.Metrics.RecordRelease("vmid")
		}
		for range ips {
			w.Metrics.RecordRelease("ip")
		}
	}
}

// toTree converts a typed value into the decoded JSON form policies and
// passes operate on.
func toTree(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
