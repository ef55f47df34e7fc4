package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/intent-engine/ie/internal/models"
	"github.com/intent-engine/ie/internal/output"
	"github.com/intent-engine/ie/internal/store"
)

// NewEventCmd creates the event command group.
func NewEventCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Log and list immutable task events",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newEventLogCmd())
	cmd.AddCommand(newEventListCmd())

	namespaceIndex(cmd)
	return cmd
}

func newEventLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Append an event (decision|blocker|milestone|note)",
		RunE: func(cmd *cobra.Command, args []string) error {
			kindStr, _ := cmd.Flags().GetString("type")
			message, _ := cmd.Flags().GetString("message")
			if message == "" {
				return cmdErr(errors.New("--message is required"))
			}
			kind := models.EventKind(kindStr)
			if !kind.Valid() {
				return cmdErr(errors.New("--type must be one of decision, blocker, milestone, note"))
			}

			taskID := optionalInt64Flag(cmd.Flags(), "task-id")

			var event *models.Event
			if err := withDB(func(db *DB) error {
				e, err := store.AppendEvent(db, taskID, kind, message)
				if err != nil {
					return err
				}
				event = e
				return nil
			}); err != nil {
				return err
			}

			notifyAfter("EventAdded", map[string]any{"task_id": event.TaskID, "event_id": event.ID})
			return output.PrintSuccess(event)
		},
	}

	cmd.Flags().String("type", "", "Event type: decision|blocker|milestone|note (required)")
	cmd.Flags().String("message", "", "Event body, markdown allowed (required)")
	cmd.Flags().Int64("task-id", 0, "Task id; defaults to the current focused task")

	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}

func newEventListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events for a task, most-recent-first",
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := requiredInt64Flag(cmd.Flags(), "task-id")
			if err != nil {
				return cmdErr(err)
			}

			f := store.EventListFilter{}
			if kindStr, _ := cmd.Flags().GetString("type"); kindStr != "" {
				kind := models.EventKind(kindStr)
				if !kind.Valid() {
					return cmdErr(errors.New("--type must be one of decision, blocker, milestone, note"))
				}
				f.Kind = &kind
			}
			f.Since, _ = cmd.Flags().GetString("since")
			f.Limit, _ = cmd.Flags().GetInt("limit")

			var events []*models.Event
			if err := withReadDB(func(db *DB) error {
				e, err := store.ListEvents(db, taskID, f)
				if err != nil {
					return err
				}
				events = e
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Count  int             `json:"count"`
				Events []*models.Event `json:"events"`
			}
			return output.PrintSuccess(resp{Count: len(events), Events: events})
		},
	}

	cmd.Flags().Int64("task-id", 0, "Task id (required)")
	cmd.Flags().String("type", "", "Filter by type: decision|blocker|milestone|note")
	cmd.Flags().String("since", "", `Relative duration ("24h", "7d") or RFC3339 instant`)
	cmd.Flags().Int("limit", 0, "Max events to return (0 = no limit)")
	return cmd
}
