package commands

import (
	"github.com/spf13/cobra"

	"github.com/intent-engine/ie/internal/output"
	"github.com/intent-engine/ie/internal/store"
)

// NewInitCmd creates the store for the current project, if not already
// present. Idempotent: running it again against an initialized project is a
// no-op that reports the existing store.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the project store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, resolved, err := openDB(true)
			if err != nil {
				return cmdErr(err)
			}
			defer func() { _ = store.CloseDB(db) }()

			type resp struct {
				Root               string `json:"root"`
				DBPath             string `json:"db_path"`
				AlreadyInitialized bool   `json:"already_initialized"`
			}
			return output.PrintSuccess(resp{
				Root:               resolved.Root,
				DBPath:             resolved.DBPath,
				AlreadyInitialized: resolved.StoreExists,
			})
		},
	}
	return cmd
}
