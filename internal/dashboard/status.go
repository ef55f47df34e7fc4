package dashboard

import (
	"database/sql"

	"github.com/intent-engine/ie/internal/models"
	"github.com/intent-engine/ie/internal/store"
)

// statusView mirrors the CLI's session-restore view (internal/commands
// status.go) for dashboard clients that want the same "resume work" payload
// over HTTP instead of a subprocess call.
type statusView struct {
	Focused       *models.Task    `json:"focused"`
	Ancestry      []*models.Task  `json:"ancestry,omitempty"`
	Children      []*models.Task  `json:"children,omitempty"`
	RecentEvents  []*models.Event `json:"recent_events,omitempty"`
	SiblingsTotal int             `json:"siblings_total"`
	SiblingsDone  int             `json:"siblings_done"`
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
		for _, sib := range siblings {
			if sib.Status == models.TaskStatusDone {
				view.SiblingsDone++
			}
		}
	}

	return view, nil
}
