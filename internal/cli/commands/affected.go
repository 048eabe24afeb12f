package commands

import (
	"fmt"

	"github.com/leapstack-labs/querygen/internal/cli/output"
	"github.com/leapstack-labs/querygen/pkg/core"
	"github.com/spf13/cobra"
)

// affectedOutput is the JSON shape of the affected command.
type affectedOutput struct {
	Statement string   `json:"statement"`
	Kind      string   `json:"kind"`
	Tables    []string `json:"tables"`
}

// NewAffectedCommand creates the affected command.
func NewAffectedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "affected <namespace/statement>",
		Short: "List the tables a statement modifies, including cascades",
		Long: `Show the tables whose contents may change when the statement executes:
its direct targets, tables reached through views, WITH clause tables and
every table reached through declared cascade notifications.`,
		Example: `  querygen affected person/deleteById`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd, false)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := cmdCtx.Engine.Run(cmd.Context())
			if err != nil {
				return err
			}
			stmt := res.Statement(args[0])
			if stmt == nil {
				return fmt.Errorf("%w: statement %q not found", core.ErrConfiguration, args[0])
			}

			r := cmdCtx.Renderer
			tables := stmt.AffectedTables
			if tables == nil {
				tables = []string{}
			}
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(affectedOutput{Statement: stmt.ID, Kind: string(stmt.Kind), Tables: tables})
			}

			r.Header(1, fmt.Sprintf("Affected by %s (%s)", stmt.ID, stmt.Kind))
			if len(tables) == 0 {
				r.Println("(none)")
				return nil
			}
			for _, t := range tables {
				r.Println("- " + t)
			}
			return nil
		},
	}
	return cmd
}
