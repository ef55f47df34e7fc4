package commands

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/intent-engine/ie/internal/app"
	"github.com/intent-engine/ie/internal/output"
	"github.com/intent-engine/ie/internal/store"
)

// pruneOldEvents deletes events past the project's configured retention
// window, in batches (config keys events_retention_days / events_prune_batch).
// Task-defining rows are never touched; only the immutable event log is
// pruned, and only under the explicit --gc flag.
func pruneOldEvents(db *sql.DB, root string) (int, error) {
	settings := app.EffectiveEventMaintenanceSettings(root)
	res, err := db.ExecContext(context.Background(), `
		DELETE FROM events WHERE id IN (
			SELECT id FROM events
			WHERE timestamp < datetime('now', ?)
			ORDER BY timestamp ASC
			LIMIT ?
		)
	`, "-"+strconv.Itoa(settings.RetentionDays)+" days", settings.PruneBatch)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// NewDoctorCmd runs read-only consistency diagnostics against the store,
// plus optional maintenance levers gated behind explicit flags.
func NewDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check store consistency (schema, FTS sync, dangling parents, cycles, focus)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			checkpointMode, _ := cmd.Flags().GetString("checkpoint")
			runGC, _ := cmd.Flags().GetBool("gc")

			var (
				diags          []store.Diagnostic
				root, dbPath   string
				checkpointedOK bool
				prunedEvents   int
			)

			if err := withReadDB(func(db *DB) error {
				d, err := store.RunDiagnostics(db)
				if err != nil {
					return err
				}
				diags = d
				return nil
			}); err != nil {
				return err
			}

			if resolved, err := app.Resolve(false); err == nil {
				root, dbPath = resolved.Root, resolved.DBPath
			}

			if checkpointMode != "" || runGC {
				if err := withDB(func(db *DB) error {
					if checkpointMode != "" {
						if err := store.CheckpointWAL(context.Background(), db, checkpointMode); err != nil {
							return err
						}
						checkpointedOK = true
					}
					if runGC {
						n, err := pruneOldEvents(db, root)
						if err != nil {
							return err
						}
						prunedEvents = n
					}
					return nil
				}); err != nil {
					return err
				}
			}

			healthy := true
			for _, d := range diags {
				if d.Level == "error" {
					healthy = false
					break
				}
			}

			type resp struct {
				Root         string             `json:"root"`
				DBPath       string             `json:"db_path"`
				Diagnostics  []store.Diagnostic `json:"diagnostics"`
				Healthy      bool               `json:"healthy"`
				Checkpointed bool               `json:"checkpointed,omitempty"`
				PrunedEvents int                `json:"pruned_events,omitempty"`
			}
			return output.PrintSuccess(resp{
				Root:         root,
				DBPath:       dbPath,
				Diagnostics:  diags,
				Healthy:      healthy,
				Checkpointed: checkpointedOK,
				PrunedEvents: prunedEvents,
			})
		},
	}

	cmd.Flags().String("checkpoint", "", "Trigger a WAL checkpoint: PASSIVE|FULL|TRUNCATE|RESTART")
	cmd.Flags().Bool("gc", false, "Prune events past the configured retention window")
	return cmd
}
