// Package discovery implements the project-root discovery and lazy
// initialization protocol: locate (or materialize) the
// per-project store from any subdirectory.
package discovery

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// StoreDirName is the directory holding the SQLite store under the project root.
const StoreDirName = ".intent-engine"

// markers lists recognized project-root markers, in priority order, used
// when no existing .intent-engine/ is found walking upward.
var markers = []string{
	".git",
	".hg",
	"package.json",
	"Cargo.toml",
	"pyproject.toml",
	"go.mod",
	"pom.xml",
	"build.gradle",
}

// Result is the outcome of a discovery walk.
type Result struct {
	// Root is the resolved project root directory.
	Root string
	// StoreExists reports whether Root/.intent-engine already exists.
	StoreExists bool
	// Fallback reports whether no marker was found and Root is simply the
	// invocation directory. Callers should emit a
	// non-fatal warning on the error channel in this case.
	Fallback bool
}

// StorePath returns the path to the store directory under root.
func StorePath(root string) string {
	return filepath.Join(root, StoreDirName)
}

// DBPath returns the path to the SQLite database file under root's store.
func DBPath(root string) string {
	return filepath.Join(StorePath(root), "project.db")
}

// Discover walks upward from startDir applying the three-step contract:
//  1. the nearest ancestor (including startDir) containing .intent-engine/ wins outright.
//  2. otherwise the nearest ancestor containing any recognized marker;
//     within one directory the marker list is checked in priority order.
//  3. otherwise startDir itself, with Fallback=true.
//
// Symlinks are resolved to their targets before walking so that a symlinked
// working directory behaves as if it were the real path.
func Discover(startDir string) (Result, error) {
	start, err := filepath.Abs(startDir)
	if err != nil {
		return Result{}, err
	}
	start, err = resolveSymlinks(start)
	if err != nil {
		return Result{}, err
	}

	dir := start
	var bestMarker string
	for {
		storeDir := filepath.Join(dir, StoreDirName)
		if exists(storeDir) {
			return Result{Root: dir, StoreExists: true}, nil
		}
		if bestMarker == "" {
			for _, m := range markers {
				if exists(filepath.Join(dir, m)) {
					bestMarker = dir
					break
				}
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if bestMarker != "" {
		return Result{Root: bestMarker, StoreExists: false}, nil
	}

	return Result{Root: start, StoreExists: false, Fallback: true}, nil
}

// resolveSymlinks follows symlinks in path to its real target, tolerating a
// path that does not yet exist (returns the input unchanged in that case).
func resolveSymlinks(path string) (string, error) {
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return path, nil
		}
		return "", err
	}
	return real, nil
}

// exists reports whether path exists (file, directory, or symlink to either).
// Empty marker files count as present: only existence is checked, never content.
func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EnsureStore creates the store directory at root if absent. Safe to call
// concurrently from multiple processes: MkdirAll is idempotent at the
// filesystem layer.
func EnsureStore(root string) error {
	return os.MkdirAll(StorePath(root), 0o755)
}

// WatchWAL watches root's store directory for writes to the SQLite WAL file
// and sends on changed whenever one is observed, so a long-running dashboard
// process can notice a CLI invocation committing from another process and
// nudge connected clients to refresh. This is a best-effort convenience, not
// a source of truth: the dashboard never skips reading the database because
// a watch event failed to fire, and a missed fsnotify event simply means no
// nudge is sent for that write. The returned stop func closes the underlying
// watcher; watching continues until stop is called.
func WatchWAL(root string, changed chan<- struct{}) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(StorePath(root)); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != "project.db-wal" {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				select {
				case changed <- struct{}{}:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return func() { _ = watcher.Close() }, nil
}
