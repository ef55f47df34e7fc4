package commands

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/intent-engine/ie/internal/models"
	"github.com/intent-engine/ie/internal/output"
	"github.com/intent-engine/ie/internal/store"
)

// NewTaskCmd creates the task command group covering the full task engine
// surface.
func NewTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create, query, and transition tasks",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newTaskCreateCmd())
	cmd.AddCommand(newTaskGetCmd())
	cmd.AddCommand(newTaskAncestryCmd())
	cmd.AddCommand(newTaskSubtreeCmd())
	cmd.AddCommand(newTaskFindCmd())
	cmd.AddCommand(newTaskListCmd())
	cmd.AddCommand(newTaskUpdateCmd())
	cmd.AddCommand(newTaskDeleteCmd())
	cmd.AddCommand(newTaskStartCmd())
	cmd.AddCommand(newTaskDoneCmd())
	cmd.AddCommand(newTaskSpawnSubtaskCmd())
	cmd.AddCommand(newTaskSwitchCmd())
	cmd.AddCommand(newTaskPickNextCmd())
	cmd.AddCommand(newTaskAddDepCmd())
	cmd.AddCommand(newTaskRemoveDepCmd())

	namespaceIndex(cmd)
	return cmd
}

func newTaskCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new todo task",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			spec, _ := cmd.Flags().GetString("spec")
			if name == "" {
				return cmdErr(errors.New("--name is required"))
			}

			parentID := optionalInt64Flag(cmd.Flags(), "parent-id")

			var task *models.Task
			if err := withDB(func(db *DB) error {
				t, err := store.CreateTask(db, name, spec, parentID, models.Owner(ownerForCreate()))
				if err != nil {
					return err
				}
				task = t
				return nil
			}); err != nil {
				return err
			}

			notifyAfter("TaskChanged", map[string]any{"task_id": task.ID, "action": "created"})
			return output.PrintSuccess(task)
		},
	}

	cmd.Flags().String("name", "", "Task name (required)")
	cmd.Flags().String("spec", "", "Task spec body")
	cmd.Flags().Int64("parent-id", 0, "Parent task id")

	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}

func newTaskGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Get a task, optionally with its event summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := requiredInt64Flag(cmd.Flags(), "id")
			if err != nil {
				return cmdErr(err)
			}
			withEvents, _ := cmd.Flags().GetBool("with-events")
			recent, _ := cmd.Flags().GetInt("recent")

			var out any
			if err := withReadDB(func(db *DB) error {
				if withEvents {
					twe, err := store.GetTaskWithEvents(db, id, recent)
					if err != nil {
						return err
					}
					out = twe
					return nil
				}
				t, err := store.GetTask(db, id)
				if err != nil {
					return err
				}
				out = t
				return nil
			}); err != nil {
				return err
			}

			return output.PrintSuccess(out)
		},
	}

	cmd.Flags().Int64("id", 0, "Task id (required)")
	cmd.Flags().Bool("with-events", false, "Include the compact event summary")
	cmd.Flags().Int("recent", 5, "Number of recent events to include with --with-events")
	return cmd
}

func newTaskAncestryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ancestry",
		Short: "Get the root-to-self chain for a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := requiredInt64Flag(cmd.Flags(), "id")
			if err != nil {
				return cmdErr(err)
			}

			var chain []*models.Task
			if err := withReadDB(func(db *DB) error {
				c, err := store.GetAncestry(db, id)
				if err != nil {
					return err
				}
				chain = c
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Ancestry []*models.Task `json:"ancestry"`
			}
			return output.PrintSuccess(resp{Ancestry: chain})
		},
	}
	cmd.Flags().Int64("id", 0, "Task id (required)")
	return cmd
}

func newTaskSubtreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subtree",
		Short: "Get all direct and transitive children of a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := requiredInt64Flag(cmd.Flags(), "id")
			if err != nil {
				return cmdErr(err)
			}

			var subtree []*models.Task
			if err := withReadDB(func(db *DB) error {
				s, err := store.GetSubtree(db, id)
				if err != nil {
					return err
				}
				subtree = s
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Subtree []*models.Task `json:"subtree"`
			}
			return output.PrintSuccess(resp{Subtree: subtree})
		},
	}
	cmd.Flags().Int64("id", 0, "Task id (required)")
	return cmd
}

func newTaskFindCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find",
		Short: "Find tasks by status and/or parent",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := store.FindTasksFilter{}
			if status, _ := cmd.Flags().GetString("status"); status != "" {
				s := models.TaskStatus(status)
				if !s.Valid() {
					return cmdErr(errors.New("--status must be one of todo, doing, done"))
				}
				f.Status = &s
			}
			if cmd.Flags().Changed("top-level") {
				f.TopLevel = true
			} else if cmd.Flags().Changed("parent-id") {
				id, _ := cmd.Flags().GetInt64("parent-id")
				f.ParentID = &id
			}

			var tasks []*models.Task
			if err := withReadDB(func(db *DB) error {
				t, err := store.FindTasks(db, f)
				if err != nil {
					return err
				}
				tasks = t
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Count int            `json:"count"`
				Tasks []*models.Task `json:"tasks"`
			}
			return output.PrintSuccess(resp{Count: len(tasks), Tasks: tasks})
		},
	}

	cmd.Flags().String("status", "", "Filter by status: todo|doing|done")
	cmd.Flags().Int64("parent-id", 0, "Filter by exact parent id")
	cmd.Flags().Bool("top-level", false, "Only tasks with no parent")
	return cmd
}

func newTaskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every task in the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			var tasks []*models.Task
			if err := withReadDB(func(db *DB) error {
				t, err := store.ListAllTasks(db)
				if err != nil {
					return err
				}
				tasks = t
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Count int            `json:"count"`
				Tasks []*models.Task `json:"tasks"`
			}
			return output.PrintSuccess(resp{Count: len(tasks), Tasks: tasks})
		},
	}
}

func newTaskUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Partially update a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := requiredInt64Flag(cmd.Flags(), "id")
			if err != nil {
				return cmdErr(err)
			}

			u := store.TaskUpdate{}
			if cmd.Flags().Changed("name") {
				v, _ := cmd.Flags().GetString("name")
				u.Name = &v
			}
			if cmd.Flags().Changed("spec") {
				v, _ := cmd.Flags().GetString("spec")
				u.Spec = &v
			}
			if cmd.Flags().Changed("active-form") {
				v, _ := cmd.Flags().GetString("active-form")
				u.ActiveForm = &v
			}
			if cmd.Flags().Changed("priority") {
				v, _ := cmd.Flags().GetInt("priority")
				u.Priority = &v
			}
			if cmd.Flags().Changed("complexity") {
				v, _ := cmd.Flags().GetInt("complexity")
				u.Complexity = &v
			}
			if cmd.Flags().Changed("status") {
				v, _ := cmd.Flags().GetString("status")
				status := models.TaskStatus(v)
				if !status.Valid() {
					return cmdErr(errors.New("--status must be one of todo, doing, done"))
				}
				u.Status = &status
			}
			if cmd.Flags().Changed("clear-parent") {
				u.ParentSet = true
				u.ParentID = nil
			} else if cmd.Flags().Changed("parent-id") {
				v, _ := cmd.Flags().GetInt64("parent-id")
				u.ParentSet = true
				u.ParentID = &v
			}

			var task *models.Task
			if err := withDB(func(db *DB) error {
				t, err := store.UpdateTask(db, id, u, callerIsAI())
				if err != nil {
					return err
				}
				task = t
				return nil
			}); err != nil {
				return err
			}

			notifyAfter("TaskChanged", map[string]any{"task_id": task.ID, "action": "updated"})
			return output.PrintSuccess(task)
		},
	}

	cmd.Flags().Int64("id", 0, "Task id (required)")
	cmd.Flags().String("name", "", "New name")
	cmd.Flags().String("spec", "", "New spec body")
	cmd.Flags().String("active-form", "", "New active-form label")
	cmd.Flags().Int("priority", 0, "New priority (1=critical .. 4=low)")
	cmd.Flags().Int("complexity", 0, "New complexity estimate")
	cmd.Flags().String("status", "", "New status: todo|doing|done")
	cmd.Flags().Int64("parent-id", 0, "New parent id")
	cmd.Flags().Bool("clear-parent", false, "Detach from parent, making the task top-level")

	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}

func newTaskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a childless task",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := requiredInt64Flag(cmd.Flags(), "id")
			if err != nil {
				return cmdErr(err)
			}

			if err := withDB(func(db *DB) error {
				return store.DeleteTask(db, id)
			}); err != nil {
				return err
			}

			notifyAfter("TaskChanged", map[string]any{"task_id": id, "action": "deleted"})
			type resp struct {
				TaskID int64 `json:"task_id"`
			}
			return output.PrintSuccess(resp{TaskID: id})
		},
	}
	cmd.Flags().Int64("id", 0, "Task id to delete (required)")
	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}

func newTaskStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Transition a task to doing and focus it",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := requiredInt64Flag(cmd.Flags(), "id")
			if err != nil {
				return cmdErr(err)
			}

			var task *models.Task
			if err := withDB(func(db *DB) error {
				t, err := store.StartTask(db, id)
				if err != nil {
					return err
				}
				task = t
				return nil
			}); err != nil {
				return err
			}

			notifyAfter("WorkspaceChanged", map[string]any{"current_task_id": task.ID})
			return output.PrintSuccess(task)
		},
	}
	cmd.Flags().Int64("id", 0, "Task id (required)")
	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}

func newTaskDoneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "done",
		Short: "Complete the current focused task and clear focus",
		RunE: func(cmd *cobra.Command, args []string) error {
			var task *models.Task
			if err := withDB(func(db *DB) error {
				t, err := store.DoneTask(db, callerIsAI())
				if err != nil {
					return err
				}
				task = t
				return nil
			}); err != nil {
				return err
			}

			notifyAfter("WorkspaceChanged", map[string]any{"current_task_id": nil})
			notifyAfter("TaskChanged", map[string]any{"task_id": task.ID, "action": "done"})
			return output.PrintSuccess(task)
		},
	}
	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}

func newTaskSpawnSubtaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spawn-subtask",
		Short: "Create a doing child of the current focus and refocus onto it",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			spec, _ := cmd.Flags().GetString("spec")
			if name == "" {
				return cmdErr(errors.New("--name is required"))
			}

			var task *models.Task
			if err := withDB(func(db *DB) error {
				t, err := store.SpawnSubtask(db, name, spec, models.Owner(ownerForCreate()))
				if err != nil {
					return err
				}
				task = t
				return nil
			}); err != nil {
				return err
			}

			notifyAfter("WorkspaceChanged", map[string]any{"current_task_id": task.ID})
			return output.PrintSuccess(task)
		},
	}
	cmd.Flags().String("name", "", "Subtask name (required)")
	cmd.Flags().String("spec", "", "Subtask spec body")
	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}

func newTaskSwitchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "switch",
		Short: "Refocus the workspace onto a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := requiredInt64Flag(cmd.Flags(), "id")
			if err != nil {
				return cmdErr(err)
			}

			var task *models.Task
			if err := withDB(func(db *DB) error {
				t, err := store.SwitchTask(db, id)
				if err != nil {
					return err
				}
				task = t
				return nil
			}); err != nil {
				return err
			}

			notifyAfter("WorkspaceChanged", map[string]any{"current_task_id": task.ID})
			return output.PrintSuccess(task)
		},
	}
	cmd.Flags().Int64("id", 0, "Task id (required)")
	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}

func newTaskPickNextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pick-next",
		Short: "Recommend the next task to work on",
		RunE: func(cmd *cobra.Command, args []string) error {
			var task *models.Task
			if err := withReadDB(func(db *DB) error {
				t, err := store.PickNext(db)
				if err != nil {
					return err
				}
				task = t
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Task *models.Task `json:"task"`
			}
			return output.PrintSuccess(resp{Task: task})
		},
	}
}

func newTaskAddDepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-dep",
		Short: "Add a dependency: --id cannot be doing until --depends-on is done",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := requiredInt64Flag(cmd.Flags(), "id")
			if err != nil {
				return cmdErr(err)
			}
			dependsOn, err := requiredInt64Flag(cmd.Flags(), "depends-on")
			if err != nil {
				return cmdErr(err)
			}

			if err := withDB(func(db *DB) error {
				return store.AddDependency(db, id, dependsOn)
			}); err != nil {
				return err
			}

			notifyAfter("TaskChanged", map[string]any{"task_id": id, "action": "dependency_added"})
			type resp struct {
				BlockedTaskID  int64 `json:"blocked_task_id"`
				BlockingTaskID int64 `json:"blocking_task_id"`
			}
			return output.PrintSuccess(resp{BlockedTaskID: id, BlockingTaskID: dependsOn})
		},
	}
	cmd.Flags().Int64("id", 0, "Blocked task id (required)")
	cmd.Flags().Int64("depends-on", 0, "Blocking task id (required)")
	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}

func newTaskRemoveDepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove-dep",
		Short: "Remove a dependency edge",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := requiredInt64Flag(cmd.Flags(), "id")
			if err != nil {
				return cmdErr(err)
			}
			dependsOn, err := requiredInt64Flag(cmd.Flags(), "depends-on")
			if err != nil {
				return cmdErr(err)
			}

			if err := withDB(func(db *DB) error {
				return store.RemoveDependency(db, id, dependsOn)
			}); err != nil {
				return err
			}

			notifyAfter("TaskChanged", map[string]any{"task_id": id, "action": "dependency_removed"})
			type resp struct {
				BlockedTaskID  int64 `json:"blocked_task_id"`
				BlockingTaskID int64 `json:"blocking_task_id"`
			}
			return output.PrintSuccess(resp{BlockedTaskID: id, BlockingTaskID: dependsOn})
		},
	}
	cmd.Flags().Int64("id", 0, "Blocked task id (required)")
	cmd.Flags().Int64("depends-on", 0, "Blocking task id (required)")
	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}

func requiredInt64Flag(fs *pflag.FlagSet, name string) (int64, error) {
	if !fs.Changed(name) {
		return 0, errors.New("--" + name + " is required")
	}
	return fs.GetInt64(name)
}

// optionalInt64Flag returns the flag's value only if it was explicitly set.
func optionalInt64Flag(fs *pflag.FlagSet, name string) *int64 {
	if !fs.Changed(name) {
		return nil
	}
	v, _ := fs.GetInt64(name)
	return &v
}
