package commands

import (
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/intent-engine/ie/internal/models"
	"github.com/intent-engine/ie/internal/output"
	"github.com/intent-engine/ie/internal/store"
)

// statusView is the "session restore" payload: enough context
// for an AI assistant to resume work on a task without replaying history.
type statusView struct {
	Focused       *models.Task    `json:"focused"`
	Ancestry      []*models.Task  `json:"ancestry,omitempty"`
	Children      []*models.Task  `json:"children,omitempty"`
	RecentEvents  []*models.Event `json:"recent_events,omitempty"`
	SiblingsTotal int             `json:"siblings_total"`
	SiblingsDone  int             `json:"siblings_done"`
}

// NewStatusCmd renders the status view for the focused task, or an explicit
// --id override.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the session-restore view for the focused (or given) task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := optionalInt64Flag(cmd.Flags(), "id")

			var view *statusView
			if err := withReadDB(func(db *DB) error {
				v, err := buildStatusView(db, id)
				if err != nil {
					return err
				}
				view = v
				return nil
			}); err != nil {
				return err
			}

			return output.PrintSuccess(view)
		},
	}

	cmd.Flags().Int64("id", 0, "Task id to show status for; defaults to the current focus")
	return cmd
}

func buildStatusView(db *sql.DB, id *int64) (*statusView, error) {
	focusID := id
	if focusID == nil {
		current, err := store.GetCurrentTaskID(db)
		if err != nil {
			return nil, err
		}
		focusID = current
	}

	view := &statusView{}
	if focusID == nil {
		return view, nil
	}

	task, err := store.GetTask(db, *focusID)
	if err != nil {
		return nil, err
	}
	view.Focused = task

	ancestry, err := store.GetAncestry(db, task.ID)
	if err != nil {
		return nil, err
	}
	view.Ancestry = ancestry

	children, err := store.FindTasks(db, store.FindTasksFilter{ParentID: &task.ID})
	if err != nil {
		return nil, err
	}
	view.Children = children

	recent, err := store.ListEvents(db, task.ID, store.EventListFilter{Limit: 10})
	if err != nil {
		return nil, err
	}
	view.RecentEvents = recent

	if task.ParentID != nil {
		siblings, err := store.FindTasks(db, store.FindTasksFilter{ParentID: task.ParentID})
		if err != nil {
			return nil, err
		}
		view.SiblingsTotal = len(siblings)
		for _, s := range siblings {
			if s.Status == models.TaskStatusDone {
				view.SiblingsDone++
			}
		}
	}

	return view, nil
}
