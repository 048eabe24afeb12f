package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/querygen/internal/cli/output"
	"github.com/leapstack-labs/querygen/internal/engine"
	"github.com/leapstack-labs/querygen/pkg/core"
	"github.com/spf13/cobra"
)

// NewInspectCommand creates the inspect command.
func NewInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [namespace/statement]",
		Short: "Show resolved statements, parameters and fields",
		Long: `Resolve all statements and show a summary table, or the parameters and
fields of one statement with their inferred types.

Output adapts to environment:
  - Terminal: aligned tables
  - Piped/Scripted: Markdown format (agent-friendly)

Use --output-format to override: auto, text, markdown, json`,
		Example: `  # Summarise every statement
  querygen inspect

  # Show the types of one statement
  querygen inspect person/selectById

  # As JSON
  querygen inspect person/selectById --output-format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, args)
		},
	}
	return cmd
}

func runInspect(cmd *cobra.Command, args []string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd, false)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := cmdCtx.Engine.Run(cmd.Context())
	if err != nil {
		return err
	}
	r := cmdCtx.Renderer

	if len(args) == 0 {
		return inspectAll(r, res)
	}
	stmt := res.Statement(args[0])
	if stmt == nil {
		return fmt.Errorf("%w: statement %q not found", core.ErrConfiguration, args[0])
	}
	return inspectStatement(r, stmt)
}

func inspectAll(r *output.Renderer, res *engine.Result) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(res)
	}

	r.Header(1, fmt.Sprintf("Statements (%d total)", len(res.Statements)))
	rows := make([][]string, 0, len(res.Statements))
	for _, s := range res.Statements {
		rows = append(rows, []string{
			s.ID,
			string(s.Kind),
			strconv.Itoa(len(s.Parameters)),
			strconv.Itoa(len(s.Fields)),
			s.SharedResult,
			strings.Join(s.AffectedTables, ", "),
		})
	}
	if err := r.Table([]string{"Statement", "Kind", "Params", "Fields", "Shared Result", "Affected"}, rows); err != nil {
		return err
	}

	if len(res.SharedResults) > 0 {
		r.Println("")
		r.Header(2, "Shared Results")
		shared := make([][]string, 0, len(res.SharedResults))
		for _, sr := range res.SharedResults {
			shared = append(shared, []string{sr.Namespace + "/" + sr.Name, sr.Canonical, strings.Join(sr.Statements, ", ")})
		}
		return r.Table([]string{"Shared Result", "Canonical", "Statements"}, shared)
	}
	return nil
}

func inspectStatement(r *output.Renderer, s *engine.Statement) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(s)
	}

	r.Header(1, s.ID)
	r.KeyValue("Kind", string(s.Kind))
	if s.File != "" {
		r.KeyValue("File", s.File)
	}
	if s.SharedResult != "" {
		r.KeyValue("Shared Result", s.SharedResult)
	}
	if s.Implements != "" {
		r.KeyValue("Implements", s.Implements)
	}
	if len(s.AffectedTables) > 0 {
		r.KeyValue("Affected Tables", strings.Join(s.AffectedTables, ", "))
	}
	if len(s.BindingOrder) > 0 {
		r.KeyValue("Binding Order", strings.Join(s.BindingOrder, ", "))
	}

	if len(s.Parameters) > 0 {
		r.Println("")
		r.Header(2, "Parameters")
		rows := make([][]string, 0, len(s.Parameters))
		for _, p := range s.Parameters {
			rows = append(rows, []string{p.Name, p.PropertyName, p.Type.String(), p.Source})
		}
		if err := r.Table([]string{"Name", "Property", "Type", "Source"}, rows); err != nil {
			return err
		}
	}

	if len(s.Fields) > 0 {
		r.Println("")
		r.Header(2, "Fields")
		rows := make([][]string, 0, len(s.Fields))
		for _, f := range s.Fields {
			source := f.Source
			if f.Dynamic {
				source = "(dynamic)"
			}
			rows = append(rows, []string{f.Name, f.PropertyName, f.Type.String(), source})
		}
		if err := r.Table([]string{"Name", "Property", "Type", "Source"}, rows); err != nil {
			return err
		}
	}
	return nil
}
