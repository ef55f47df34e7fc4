package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/intent-engine/ie/internal/models"
	"github.com/intent-engine/ie/internal/output"
	"github.com/intent-engine/ie/internal/planner"
)

// NewPlanCmd applies a declarative batch reconciliation document read from
// stdin, the primary task mutation entry point.
func NewPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Apply a declarative task plan read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := io.ReadAll(os.Stdin)
			if err != nil {
				return cmdErr(fmt.Errorf("read plan document from stdin: %w", err))
			}

			var req planner.Request
			if err := json.Unmarshal(body, &req); err != nil {
				return cmdErr(models.NewPlanValidationError("invalid JSON: "+err.Error(), nil))
			}

			var result *planner.Result
			if err := withDB(func(db *DB) error {
				r, err := planner.Plan(db, req, callerIsAI())
				if err != nil {
					return err
				}
				result = r
				return nil
			}); err != nil {
				return err
			}

			notifyAfter("TaskChanged", map[string]any{
				"tasks_created": result.TasksCreated,
				"tasks_updated": result.TasksUpdated,
			})
			return output.PrintSuccess(result)
		},
	}

	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}
