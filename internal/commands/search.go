package commands

import (
	"github.com/spf13/cobra"

	"github.com/intent-engine/ie/internal/output"
	"github.com/intent-engine/ie/internal/store"
)

// NewSearchCmd wraps the full-text search engine.
func NewSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Full-text search over tasks and events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := store.DefaultSearchOptions()
			opts.IncludeTasks, _ = cmd.Flags().GetBool("tasks")
			opts.IncludeEvents, _ = cmd.Flags().GetBool("events")
			opts.Limit, _ = cmd.Flags().GetInt("limit")
			opts.Offset, _ = cmd.Flags().GetInt("offset")
			opts.SortByPriority, _ = cmd.Flags().GetBool("sort-by-priority")

			var results *store.SearchResults
			if err := withReadDB(func(db *DB) error {
				r, err := store.Search(db, args[0], opts)
				if err != nil {
					return err
				}
				results = r
				return nil
			}); err != nil {
				return err
			}

			return output.PrintSuccess(results)
		},
	}

	cmd.Flags().Bool("tasks", true, "Include task hits")
	cmd.Flags().Bool("events", true, "Include event hits")
	cmd.Flags().Int("limit", 20, "Max merged results to return")
	cmd.Flags().Int("offset", 0, "Pagination offset")
	cmd.Flags().Bool("sort-by-priority", false, "Use priority as a secondary sort key")
	return cmd
}
