package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	inventoryPath string
	policyPaths   []string
	historyPath   string
	useVault      bool
	gitRefresh    bool
	metricsListen string
	traceExporter string
	verbose       bool
	jsonOutput    bool
	yamlOutput    bool
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "proxforge",
		Short: "ProxForge - Proxmox provisioning orchestrator",
		Long: `ProxForge provisions VMs and containers on a Proxmox VE cluster by
orchestrating Terraform and Packer around a single inventory file.

It allocates unique VM IDs and static IP addresses deterministically,
resolves reference tokens (vault, inventory, config, allocation) in
manifest variable documents, and commits reservations to the inventory
only after the external tool has succeeded.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&inventoryPath, "inventory", "i", "inventory.json", "inventory file path")
	rootCmd.PersistentFlags().StringSliceVar(&policyPaths, "policy", nil, "extra policy files or directories (.rego, .json)")
	rootCmd.PersistentFlags().StringVar(&historyPath, "history", "", "run history database path (empty disables history)")
	rootCmd.PersistentFlags().BoolVar(&useVault, "vault", false, "resolve vault references via the bw CLI")
	rootCmd.PersistentFlags().BoolVar(&gitRefresh, "git-refresh", false, "git pull --ff-only the manifest directory before each run")
	rootCmd.PersistentFlags().StringVar(&metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address (empty disables)")
	rootCmd.PersistentFlags().StringVar(&traceExporter, "trace", "", "trace exporter: otlp or stdout (empty disables)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&yamlOutput, "yaml", false, "output in YAML format")

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newDestroyCommand())
	rootCmd.AddCommand(newBuildCommand())
	rootCmd.AddCommand(newInventoryCommand())
	rootCmd.AddCommand(newRunsCommand())
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}
