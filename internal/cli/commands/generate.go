package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewGenerateCommand creates the generate command.
func NewGenerateCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:     "generate",
		Aliases: []string{"gen"},
		Short:   "Resolve all statements and write the generation metadata",
		Long: `Resolve every statement skeleton against the schema and write the
resolved metadata (parameters, fields, types, affected tables and shared
results) for the code emitter.

Each run is independent: the schema is reopened and every statement is
resolved again. Runs are recorded in the state database unless --history=false.`,
		Example: `  # Write metadata as JSON to stdout
  querygen generate

  # Write YAML to a file
  querygen generate --format yaml -o build/queries.yaml

  # Regenerate whenever a skeleton or the schema changes
  querygen generate --watch -o build/queries.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd, watch)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Watch queries and schema for changes and regenerate")

	return cmd
}

func runGenerate(cmd *cobra.Command, watch bool) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd, true)
	if err != nil {
		return err
	}
	defer cleanup()

	if watch {
		return runWatch(cmd.Context(), cmdCtx)
	}
	return generateOnce(cmd.Context(), cmdCtx)
}

// generateOnce performs one run and writes its result.
func generateOnce(ctx context.Context, c *CommandContext) error {
	res, err := c.Engine.Run(ctx)
	if err != nil {
		return err
	}

	if c.Cfg.Output == "" || c.Cfg.Output == "-" {
		return res.Encode(c.Renderer.Writer(), c.Settings.Format)
	}
	if err := res.WriteFile(c.Cfg.Output, c.Settings.Format); err != nil {
		return err
	}
	c.Renderer.Success(fmt.Sprintf("Generated %d statements and %d shared results to %s",
		len(res.Statements), len(res.SharedResults), c.Cfg.Output))
	return nil
}
