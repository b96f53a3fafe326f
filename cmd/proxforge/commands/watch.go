package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/proxforge/proxforge/pkg/policy"
)

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch policy paths and reload on change",
		Long: `Watch the paths named by --policy and reload the policy engine
whenever a .rego or .json file changes. Compile errors keep the previous
policy set active. Runs until interrupted.`,
		Example: `  proxforge --policy policies/ watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(policyPaths) == 0 {
				return fmt.Errorf("watch needs at least one --policy path")
			}

			ctx := cmd.Context()

			engine, err := policy.NewEngine(log.Logger)
			if err != nil {
				return err
			}
			if err := engine.LoadPolicies(ctx, policyPaths); err != nil {
				return err
			}
			for _, p := range engine.ListPolicies() {
				log.Info().Str("policy", p.Name).Str("severity", string(p.Severity)).Msg("policy active")
			}

			loader := policy.NewLoader(log.Logger)
			err = loader.Watch(ctx, policyPaths, func(policies []policy.Policy) error {
				if err := engine.ReplacePolicies(ctx, policies); err != nil {
					return err
				}
				log.Info().Int("policies", len(engine.ListPolicies())).Msg("policies reloaded")
				return nil
			})
			if err != nil {
				return err
			}
			defer loader.StopWatching()

			<-ctx.Done()
			log.Info().Msg("watch stopped")
			return nil
		},
	}

	return cmd
}
