package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/BhekumusaEric/apply4me-sub001/internal/store"
)

// newRunCmd runs one registered task to completion and prints its result.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <task-id>",
		Short: "Runs a single task once and prints the run summary",
		Long: `Triggers one registered task outside its cron schedule, waits for it
to finish and prints the run record as JSON. The command fails when the
run fails.`,
		Example: "  apply4me run institution-discovery",
		Args:    cobra.ExactArgs(1),
		RunE:    runTaskCommand,
	}
}

func runTaskCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	res, err := appInstance.RunTask(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if res.Status == store.RunFailed {
		return fmt.Errorf("task %s failed: %w", res.TaskID, res.Err)
	}
	return nil
}

// newSweepCmd removes duplicate entities without going through the scheduler.
func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Removes duplicate entities from the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			res, err := appInstance.Sweep(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
