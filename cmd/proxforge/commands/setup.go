package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/proxforge/proxforge/pkg/inventory"
	"github.com/proxforge/proxforge/pkg/policy"
	"github.com/proxforge/proxforge/pkg/proxmox"
	"github.com/proxforge/proxforge/pkg/runner"
	"github.com/proxforge/proxforge/pkg/stores"
	"github.com/proxforge/proxforge/pkg/telemetry"
	"github.com/proxforge/proxforge/pkg/vault"
	"github.com/proxforge/proxforge/pkg/workflow"
)

// vaultPasswordEnv holds the master password the vault session is unlocked
// with. It is never accepted as a flag.
const vaultPasswordEnv = "PROXFORGE_VAULT_PASSWORD"

// buildWorkflow wires a workflow from the global flags. The returned cleanup
// closes the history store when one was opened.
func buildWorkflow(ctx context.Context) (*workflow.Workflow, func(), error) {
	cleanup := func() {}

	store := inventory.NewStore(inventoryPath)

	engine, err := policy.NewEngine(log.Logger)
	if err != nil {
		return nil, cleanup, fmt.Errorf("policy engine: %w", err)
	}
	if len(policyPaths) > 0 {
		if err := engine.LoadPolicies(ctx, policyPaths); err != nil {
			return nil, cleanup, fmt.Errorf("load policies: %w", err)
		}
	}

	w := workflow.New(store, engine)
	w.RefreshRepo = gitRefresh

	if useVault {
		w.Vault = vault.NewCLI(runner.NewExecRunner(""))
		w.VaultPassword = os.Getenv(vaultPasswordEnv)
	}

	// The Proxmox client needs the cluster endpoint from the inventory. A
	// missing endpoint just disables ISO and template management.
	if inv, err := store.Load(); err == nil && inv.Proxmox.Endpoint != "" {
		w.Proxmox = proxmox.NewClient(inv.Proxmox)
	}

	var history *stores.SQLiteStore
	if historyPath != "" {
		history, err = stores.NewSQLiteStore(stores.Config{Path: historyPath})
		if err != nil {
			return nil, cleanup, fmt.Errorf("open history store: %w", err)
		}
		if err := history.Init(ctx); err != nil {
			return nil, cleanup, fmt.Errorf("init history store: %w", err)
		}
		if err := history.Migrate(ctx); err != nil {
			_ = history.Close()
			return nil, cleanup, fmt.Errorf("migrate history store: %w", err)
		}
		w.History = history
	}

	var tel *telemetry.Telemetry
	if metricsListen != "" || traceExporter != "" {
		cfg := telemetry.DefaultConfig()
		if metricsListen != "" {
			cfg.Metrics.Enabled = true
			cfg.Metrics.ListenAddress = metricsListen
		}
		if traceExporter != "" {
			cfg.Tracing.Enabled = true
			cfg.Tracing.Exporter = traceExporter
		}

		tel, err = telemetry.New(cfg)
		if err != nil {
			if history != nil {
				_ = history.Close()
			}
			return nil, cleanup, fmt.Errorf("telemetry: %w", err)
		}
		w.Metrics = tel.Metrics
		if cfg.Tracing.Enabled {
			w.Tracer = tel.Tracer
		}
		if cfg.Metrics.Enabled {
			if err := tel.Metrics.StartMetricsServer(); err != nil {
				log.Warn().Err(err).Msg("metrics endpoint unavailable")
			}
		}
	}

	cleanup = func() {
		if tel != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = tel.Shutdown(shutdownCtx)
			cancel()
		}
		if history != nil {
			_ = history.Close()
		}
	}
	return w, cleanup, nil
}

// render writes v to stdout honoring the --json and --yaml flags. The
// fallback is a plain line-oriented form produced by the caller.
func render(v any, plain func()) error {
	switch {
	case jsonOutput:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case yamlOutput:
		out, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	default:
		plain()
		return nil
	}
}
