package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/mailvault/internal/model"
)

// NewCursorCommand creates the cursor command group.
func NewCursorCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cursor",
		Short: "Inspect or advance the stored cursor",
	}
	cmd.AddCommand(newCursorShowCommand(rootOpts))
	cmd.AddCommand(newCursorSetCommand(rootOpts))
	return cmd
}

func newCursorShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the stored cursor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, cursors, err := openBackend(opts)
			if err != nil {
				return err
			}
			defer backend.Close()

			cur, err := cursors.Load(commandContext(cmd))
			if err != nil {
				return WrapExitError(ExitFailure, "failed to load cursor", err)
			}

			out := cmd.OutOrStdout()
			if cur == nil {
				fmt.Fprintf(out, "no cursor stored for %s\n", opts.Config.Source.Mailbox)
				return nil
			}
			fmt.Fprintf(out, "slot:     %s\n", cur.Slot)
			fmt.Fprintf(out, "position: %d\n", cur.Position)
			fmt.Fprintf(out, "updated:  %s\n", cur.UpdatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func newCursorSetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <position>",
		Short: "Advance the stored cursor",
		Long: `Advance the stored cursor to position. The cursor never moves
backwards; a position at or below the stored one leaves it unchanged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid position", err)
			}

			backend, cursors, err := openBackend(opts)
			if err != nil {
				return err
			}
			defer backend.Close()

			ctx := commandContext(cmd)
			var prior *model.Position
			if cur, err := cursors.Load(ctx); err != nil {
				return WrapExitError(ExitFailure, "failed to load cursor", err)
			} else if cur != nil {
				prior = cur.Position.Ptr()
			}

			advanced, err := cursors.Save(ctx, model.Position(n), prior)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to save cursor", err)
			}
			if advanced {
				fmt.Fprintf(cmd.OutOrStdout(), "cursor advanced to %d\n", n)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "cursor already at or past %d; unchanged\n", n)
			}
			return nil
		},
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
