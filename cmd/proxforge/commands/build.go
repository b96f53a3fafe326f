package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/proxforge/proxforge/pkg/config"
)

func newBuildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build <manifest>",
		Short: "Build a VM template with Packer",
		Long: `Build a VM template from a Packer build manifest.

The installer ISO is downloaded to the cluster's storage when missing,
a VM ID from the template range is allocated up front and injected as
the template_vmid variable, and the finished template is registered in
the inventory. A template with the same name is replaced and its old
guest removed from the cluster.`,
		Example: `  # Build a template
  proxforge build builds/debian-base.json

  # Build on a remote build host named in the manifest
  proxforge --vault build builds/debian-base.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := config.NewParser().LoadBuildManifest(args[0])
			if err != nil {
				return err
			}

			w, cleanup, err := buildWorkflow(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if err := w.Build(cmd.Context(), manifest); err != nil {
				return err
			}

			log.Info().
				Str("template", manifest.Name).
				Str("version", manifest.Version).
				Msg("build completed")
			return nil
		},
	}

	return cmd
}
