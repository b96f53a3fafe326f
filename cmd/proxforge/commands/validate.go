package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/proxforge/proxforge/pkg/config"
	"github.com/proxforge/proxforge/pkg/inventory"
)

func newValidateCommand() *cobra.Command {
	var (
		runManifests   []string
		buildManifests []string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the inventory and manifests",
		Long: `Validate the inventory file and any named manifests.

The inventory is checked for schema validity, unique names and VM IDs,
addresses inside their network's subnet, and static ranges that do not
cover the gateway or resolver. Manifests are checked against their CUE
schemas without running anything.`,
		Example: `  # Validate the inventory alone
  proxforge validate

  # Validate the inventory plus manifests
  proxforge validate --run runs/cluster.json --build builds/debian.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := inventory.NewStore(inventoryPath)
			inv, err := store.Load()
			if err != nil {
				return fmt.Errorf("inventory: %w", err)
			}
			if err := inventory.Validate(inv); err != nil {
				return fmt.Errorf("inventory: %w", err)
			}
			fmt.Printf("inventory %s: ok (%d networks, %d hosts, %d templates)\n",
				inventoryPath, len(inv.Networks), len(inv.Hosts), len(inv.Templates))

			parser := config.NewParser()
			for _, path := range runManifests {
				m, err := parser.LoadRunManifest(path)
				if err != nil {
					return fmt.Errorf("run manifest %s: %w", path, err)
				}
				fmt.Printf("run manifest %s: ok (%s)\n", path, m.Name)
			}
			for _, path := range buildManifests {
				m, err := parser.LoadBuildManifest(path)
				if err != nil {
					return fmt.Errorf("build manifest %s: %w", path, err)
				}
				if _, ok := inv.Network(m.Network); !ok {
					return fmt.Errorf("build manifest %s: network %q is not in the inventory", path, m.Network)
				}
				fmt.Printf("build manifest %s: ok (%s %s)\n", path, m.Name, m.Version)
			}

			return nil
		},
	}

	cmd.Flags().StringSliceVar(&runManifests, "run", nil, "run manifests to validate")
	cmd.Flags().StringSliceVar(&buildManifests, "build", nil, "build manifests to validate")

	return cmd
}
