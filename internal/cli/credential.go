package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewCredentialCommand creates the credential command group.
func NewCredentialCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage secrets in the system keyring",
	}
	cmd.AddCommand(newCredentialSetCommand(rootOpts))
	return cmd
}

func newCredentialSetCommand(opts *RootOptions) *cobra.Command {
	var value string

	cmd := &cobra.Command{
		Use:   "set <key>",
		Short: "Store a secret under key",
		Long: `Store a secret in the system keyring. The value is read from --value
or, when omitted, from the first line of standard input.

Keys used by mailvault:
  <credential.key>                access token, refresh token or IMAP password
  <credential.key>-client-secret  OAuth client secret

Example:
  echo "$REFRESH_TOKEN" | mailvault credential set gmail-token`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(args[0])
			if key == "" {
				return WrapExitError(ExitCommandError, "empty credential key", nil)
			}

			if value == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return WrapExitError(ExitCommandError, "reading secret from stdin", err)
				}
				value = line
			}
			value = strings.TrimSpace(value)
			if value == "" {
				return WrapExitError(ExitCommandError, "secret is empty", errors.New("nothing to store"))
			}

			if err := opts.StoreSecret(key, value); err != nil {
				return WrapExitError(ExitFailure, "failed to store credential", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored credential %q\n", key)
			return nil
		},
	}

	cmd.Flags().StringVar(&value, "value", "", "secret value (read from stdin when omitted)")

	return cmd
}
