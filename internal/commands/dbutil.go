package commands

import (
	"database/sql"
	"errors"
	"log/slog"

	"github.com/intent-engine/ie/internal/app"
	"github.com/intent-engine/ie/internal/models"
	"github.com/intent-engine/ie/internal/output"
	"github.com/intent-engine/ie/internal/store"
)

// printError renders err as the stable JSON error envelope on stdout.
func printError(err error) error {
	return output.PrintError(err)
}

// DB is an alias so command code doesn't need to import database/sql
// directly.
type DB = sql.DB

// printedError marks an error whose JSON envelope has already been written
// to stdout by cmdErr, so root.go doesn't log it a second time.
type printedError struct {
	err error
}

func (e printedError) Error() string { return "error already printed" }
func (e printedError) Unwrap() error { return e.err }

// openDB resolves the project store and opens it, lazily
// initializing on the write path. write=false fails with NotInitialized if
// no store exists yet.
func openDB(write bool) (*DB, app.ResolvedStore, error) {
	db, resolved, err := store.Open(write)
	if err != nil {
		return nil, app.ResolvedStore{}, err
	}
	if resolved.FallbackWarning != "" {
		slog.Warn(resolved.FallbackWarning)
	}
	return db, resolved, nil
}

// withDB opens the store (write=true, lazily initializing as needed), runs
// fn, closes the connection, and fires a best-effort dashboard notification
// if fn reports one.
func withDB(fn func(db *DB) error) error {
	return withDBMode(true, fn)
}

// withReadDB opens the store read-only: a missing store is a NotInitialized
// error rather than being lazily created.
func withReadDB(fn func(db *DB) error) error {
	return withDBMode(false, fn)
}

func withDBMode(write bool, fn func(db *DB) error) error {
	db, _, err := openDB(write)
	if err != nil {
		return cmdErr(err)
	}
	defer func() { _ = store.CloseDB(db) }()

	if err := fn(db); err != nil {
		return cmdErr(err)
	}
	return nil
}

// cmdErr logs the error once via slog and
// prints the stable JSON error envelope, then returns a sentinel so root.go
// doesn't also log or print it.
func cmdErr(err error) error {
	if err == nil {
		return nil
	}
	attrs := []any{"error", err.Error()}
	var kerr *models.KindError
	if errors.As(err, &kerr) {
		attrs = append(attrs, "kind", string(kerr.Kind))
	}
	slog.Error("command error", attrs...)
	if printErr := printError(err); printErr != nil {
		return printErr
	}
	return printedError{err: err}
}

// callerIsAI is always true for the CLI: the dashboard HTTP API is the
// sole human-owned creation/completion surface.
func callerIsAI() bool { return true }

// ownerForCreate is the owner every task created via this entry surface is
// stamped with. The CLI and the plan reconciler both produce ai-owned tasks;
// only the dashboard HTTP handlers stamp owner=human.
func ownerForCreate() models.Owner { return models.OwnerAI }

// notifyAfter fires a best-effort dashboard change notification after a
// successful mutating command.
func notifyAfter(eventType string, payload map[string]any) {
	notifyDashboard(eventType, payload)
}
