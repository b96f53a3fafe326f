package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/proxforge/proxforge/pkg/config"
	"github.com/proxforge/proxforge/pkg/workflow"
)

func newApplyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <manifest>",
		Short: "Apply a Terraform run manifest",
		Long: `Apply a Terraform run manifest against the Proxmox cluster.

The manifest's variable document is resolved through the ordered passes
(vault, inventory, config, allocation), checked against policy, and
written as a tfvars file before terraform runs. VM ID and IP
reservations reach the inventory only after terraform apply succeeds.`,
		Example: `  # Apply a run with the default inventory
  proxforge apply runs/cluster.json

  # Apply with vault references and run history
  proxforge --vault --history proxforge.db apply runs/cluster.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := config.NewParser().LoadRunManifest(args[0])
			if err != nil {
				return err
			}

			w, cleanup, err := buildWorkflow(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if err := w.Apply(cmd.Context(), manifest); err != nil {
				if workflow.IsPolicyDenied(err) {
					return fmt.Errorf("apply blocked by policy: %w", err)
				}
				return err
			}

			log.Info().Str("run", manifest.Name).Msg("apply completed")
			return nil
		},
	}

	return cmd
}
