// Package cli provides the command-line interface for querygen.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/leapstack-labs/querygen/internal/cli/commands"
	"github.com/leapstack-labs/querygen/internal/cli/config"
	"github.com/spf13/cobra"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "querygen",
		Short: "querygen - SQLite statement annotation and type inference",
		Long: `querygen resolves annotated SQLite statements against a schema.

For every statement it infers parameter and result field types, applies
@@ annotations, computes the tables a statement may modify (including
declared cascades) and validates shared result declarations, producing the
metadata a code emitter needs.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" || cmd.Name() == "version" {
				return nil
			}

			loaded, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			if _, err := loaded.Validate(); err != nil {
				return err
			}

			level := slog.LevelWarn
			if loaded.Verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			if loaded.File != "" {
				logger.Debug("using config file", slog.String("path", loaded.File))
			}

			ctx := config.NewContext(cmd.Context(), loaded.Config)
			ctx = config.WithLogger(ctx, logger)
			cmd.SetContext(ctx)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	// Global persistent flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: querygen.yaml in the project root)")
	pf.String("schema", "", "SQLite database, DDL directory or goose migrations directory")
	pf.String("schema-kind", "", "Schema source kind (auto|sqlite|ddl|migrations)")
	pf.String("queries-dir", "", "Directory of statement skeletons, one subdirectory per namespace")
	pf.StringP("output", "o", "", "Where generate writes metadata ('-' for stdout)")
	pf.String("format", "", "Metadata encoding (json|yaml)")
	pf.String("property-naming", "", "Default property naming (lowerCamelCase|upperCamelCase|snake_case|plain)")
	pf.String("state", "", "Path to the run history database")
	pf.Bool("history", true, "Record generation runs in the state database")
	pf.BoolP("verbose", "v", false, "Verbose output")
	pf.String("output-format", "", "Command output format (auto|text|markdown|json)")

	completions := map[string][]string{
		"schema-kind":     {"auto", "sqlite", "ddl", "migrations"},
		"format":          {"json", "yaml"},
		"property-naming": {"lowerCamelCase", "upperCamelCase", "snake_case", "plain"},
		"output-format":   {"auto", "text", "markdown", "json"},
	}
	for flag, values := range completions {
		_ = rootCmd.RegisterFlagCompletionFunc(flag, func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
			return values, cobra.ShellCompDirectiveNoFileComp
		})
	}

	rootCmd.AddCommand(commands.NewVersionCommand(Version, GitCommit, BuildDate))
	rootCmd.AddCommand(commands.NewGenerateCommand())
	rootCmd.AddCommand(commands.NewInspectCommand())
	rootCmd.AddCommand(commands.NewAffectedCommand())
	rootCmd.AddCommand(commands.NewHistoryCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for querygen.

To load completions:

Bash:
  $ source <(querygen completion bash)

Zsh:
  $ querygen completion zsh > "${fpath[1]}/_querygen"

Fish:
  $ querygen completion fish | source

PowerShell:
  PS> querygen completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
