package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/mailvault/internal/sync"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	JSON bool
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync against the provider's latest position",
		Long: `Ask the provider for its current position and run the sync engine
once, as if a notification for that position had arrived.

On the very first run this only seeds the cursor; nothing is archived.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print results as JSON")

	return cmd
}

func runSync(cmd *cobra.Command, opts *SyncOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rt, err := buildRuntime(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(ctx, opts.Config.Sync.Timeout)
	defer cancel()

	results, err := rt.poller.RunOnce(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "sync failed", err)
	}
	return printResults(cmd, results, opts.JSON)
}

func printResults(cmd *cobra.Command, results []sync.Result, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	for _, res := range results {
		fmt.Fprintf(out, "%s: %s, archived %d of %d, cursor %d\n",
			res.Decision, res.Outcome, res.Archived, res.Fetched, res.CursorAfter)
	}
	return nil
}
