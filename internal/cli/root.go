package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/mailvault/internal/credential"
	"github.com/nhle/mailvault/internal/model"
)

// RootOptions holds global flags and the state shared by subcommands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool

	// Config and Logger are populated before any subcommand runs.
	Config *model.AppConfig
	Logger *slog.Logger

	// LookupSecret and StoreSecret access the credential store. They
	// default to the system keyring.
	LookupSecret func(key string) (string, error)
	StoreSecret  func(key, value string) error

	// LogOutput receives log lines; defaults to stderr.
	LogOutput io.Writer
}

// NewRootCommand creates the root command for the mailvault CLI.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithOptions(&RootOptions{})
}

// NewRootCommandWithOptions is NewRootCommand with injectable options.
func NewRootCommandWithOptions(opts *RootOptions) *cobra.Command {
	if opts.LookupSecret == nil {
		opts.LookupSecret = credential.Get
	}
	if opts.StoreSecret == nil {
		opts.StoreSecret = credential.Set
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}

	cmd := &cobra.Command{
		Use:   "mailvault",
		Short: "Archive new mail exactly where the cursor says to",
		Long: `mailvault receives mailbox change notifications, lists the messages
added since the last processed position, archives each one to a document
store and then advances a durable cursor.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := model.LoadConfig(opts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			opts.Config = cfg
			opts.Logger = newLogger(opts.LogOutput, cfg.Log.Level, opts.Verbose)
			slog.SetDefault(opts.Logger)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", model.DefaultConfigPath(), "path to config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewCursorCommand(opts))
	cmd.AddCommand(NewCredentialCommand(opts))

	return cmd
}

func newLogger(w io.Writer, level string, verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return GetExitCode(err)
	}
	return ExitSuccess
}
