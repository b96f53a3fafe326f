package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/proxforge/proxforge/pkg/stores"
)

func newRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect run history",
		Long: `Inspect the run history database.

History is recorded when --history names a database path; runs executed
without it leave no trace here.`,
	}

	cmd.AddCommand(newRunsListCommand())
	cmd.AddCommand(newRunsShowCommand())

	return cmd
}

// openHistory opens the history store named by the --history flag.
func openHistory(ctx context.Context) (*stores.SQLiteStore, error) {
	if historyPath == "" {
		return nil, fmt.Errorf("run history needs --history <path>")
	}
	history, err := stores.NewSQLiteStore(stores.Config{Path: historyPath})
	if err != nil {
		return nil, err
	}
	if err := history.Init(ctx); err != nil {
		return nil, err
	}
	if err := history.Migrate(ctx); err != nil {
		_ = history.Close()
		return nil, err
	}
	return history, nil
}

func newRunsListCommand() *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Example: `  proxforge --history proxforge.db runs list
  proxforge --history proxforge.db runs list --limit 5 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := openHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer history.Close()

			runs, err := history.ListRuns(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}

			return render(runs, func() {
				if len(runs) == 0 {
					fmt.Println("No runs recorded.")
					return
				}
				fmt.Printf("%-36s  %-20s  %-8s  %-9s  %s\n",
					"ID", "MANIFEST", "OP", "STATUS", "STARTED")
				for _, run := range runs {
					fmt.Printf("%-36s  %-20s  %-8s  %-9s  %s\n",
						run.ID, run.Manifest, run.Operation, run.Status,
						run.StartedAt.Format(time.RFC3339))
				}
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")

	return cmd
}

func newRunsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run with its events and allocations",
		Example: `  proxforge --history proxforge.db runs show 4f1c...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := openHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer history.Close()

			run, err := history.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			events, err := history.ListEvents(cmd.Context(), run.ID, 0, 0)
			if err != nil {
				return err
			}
			allocations, err := history.ListAllocationsByRun(cmd.Context(), run.ID)
			if err != nil {
				return err
			}

			detail := struct {
				Run         *stores.Run          `json:"run"`
				Events      []*stores.Event      `json:"events"`
				Allocations []*stores.Allocation `json:"allocations"`
			}{run, events, allocations}

			return render(detail, func() {
				fmt.Printf("Run %s\n", run.ID)
				fmt.Printf("  manifest:  %s\n", run.Manifest)
				fmt.Printf("  operation: %s\n", run.Operation)
				fmt.Printf("  status:    %s\n", run.Status)
				fmt.Printf("  started:   %s\n", run.StartedAt.Format(time.RFC3339))
				if run.CompletedAt != nil {
					fmt.Printf("  completed: %s\n", run.CompletedAt.Format(time.RFC3339))
				}
				if run.Error != nil {
					fmt.Printf("  error:     %s\n", *run.Error)
				}
				if len(allocations) > 0 {
					fmt.Println("Allocations:")
					for _, a := range allocations {
						fmt.Printf("  %-5s %-24s -> %s\n", a.Kind, a.RefID, a.Value)
					}
				}
				if len(events) > 0 {
					fmt.Println("Events:")
					for _, e := range events {
						fmt.Printf("  %s [%s] %s\n",
							e.Timestamp.Format(time.RFC3339), e.Level, e.Message)
					}
				}
			})
		},
	}
}
