package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/leapstack-labs/querygen/internal/cli/output"
	sharedcfg "github.com/leapstack-labs/querygen/internal/config"
	"github.com/leapstack-labs/querygen/internal/state"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// historyRun is the JSON shape of one history entry.
type historyRun struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"`
	SchemaPath    string     `json:"schemaPath"`
	QueriesDir    string     `json:"queriesDir"`
	StartedAt     time.Time  `json:"startedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	DurationMs    int64      `json:"durationMs"`
	Statements    int        `json:"statements"`
	SharedResults int        `json:"sharedResults"`
	Error         string     `json:"error,omitempty"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent generation runs",
		Long: `Show the most recent generation runs recorded in the state database,
newest first, with their status, counts and failure reason.`,
		Example: `  querygen history
  querygen history --limit 5 --output-format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", sharedcfg.DefaultHistoryLimit, "Maximum number of runs to show")

	return cmd
}

func runHistory(cmd *cobra.Command, limit int) error {
	cmdCtx, err := NewCommandContextWithoutEngine(cmd)
	if err != nil {
		return err
	}
	if limit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", limit)
	}

	store, err := openStore(cmd.Context(), cmdCtx.Cfg.StatePath, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer closeStore(store, cmdCtx.Logger)

	runs, err := store.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}
	return renderHistory(cmdCtx.Renderer, runs)
}

func renderHistory(r *output.Renderer, runs []*state.Run) error {
	if r.EffectiveMode() == output.ModeJSON {
		out := make([]historyRun, 0, len(runs))
		for _, run := range runs {
			out = append(out, historyRun{
				ID:            run.ID,
				Status:        string(run.Status),
				SchemaPath:    run.SchemaPath,
				QueriesDir:    run.QueriesDir,
				StartedAt:     run.StartedAt,
				CompletedAt:   run.CompletedAt,
				DurationMs:    run.Duration().Milliseconds(),
				Statements:    run.Statements,
				SharedResults: run.SharedResults,
				Error:         run.Error,
			})
		}
		return r.JSON(out)
	}

	titleCaser := cases.Title(language.English)
	r.Header(1, fmt.Sprintf("Runs (%d shown)", len(runs)))
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		duration := "-"
		if run.CompletedAt != nil {
			duration = run.Duration().Round(time.Millisecond).String()
		}
		rows = append(rows, []string{
			shortID(run.ID),
			titleCaser.String(string(run.Status)),
			run.StartedAt.Local().Format(time.DateTime),
			duration,
			strconv.Itoa(run.Statements),
			strconv.Itoa(run.SharedResults),
			run.Error,
		})
	}
	return r.Table([]string{"Run", "Status", "Started", "Duration", "Statements", "Shared", "Error"}, rows)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
