package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/proxforge/proxforge/pkg/config"
)

func newDestroyCommand() *cobra.Command {
	var autoApprove bool

	cmd := &cobra.Command{
		Use:   "destroy <manifest>",
		Short: "Destroy the resources of a Terraform run manifest",
		Long: `Destroy the resources a run manifest created.

Allocation tokens resolve to the values already bound in the inventory,
so the plan still names the resources being removed. The reservations
are released from the inventory only after terraform destroy succeeds.`,
		Example: `  # Destroy with a confirmation prompt
  proxforge destroy runs/cluster.json

  # Destroy without prompting
  proxforge destroy --auto-approve runs/cluster.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := config.NewParser().LoadRunManifest(args[0])
			if err != nil {
				return err
			}

			if !autoApprove {
				fmt.Printf("Destroy resources of run %q? Only 'yes' confirms: ", manifest.Name)
				reader := bufio.NewReader(os.Stdin)
				answer, _ := reader.ReadString('\n')
				if strings.TrimSpace(answer) != "yes" {
					fmt.Println("Destroy cancelled.")
					return nil
				}
			}

			w, cleanup, err := buildWorkflow(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if err := w.Destroy(cmd.Context(), manifest); err != nil {
				return err
			}

			log.Info().Str("run", manifest.Name).Msg("destroy completed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "skip the confirmation prompt")

	return cmd
}
