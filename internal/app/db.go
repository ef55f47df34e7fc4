package app

import (
	"os"

	"github.com/intent-engine/ie/internal/discovery"
	"github.com/intent-engine/ie/internal/models"
)

// ProjectEnvOverride lets the test harness pin the project root without
// relying on upward directory walking.
const ProjectEnvOverride = "IE_PROJECT_ROOT"

// dbPathOverride is a process-wide override set by the CLI's --db-path flag.
var dbPathOverride string

// SetDBPathOverride pins an explicit database file path, bypassing discovery
// entirely. Intended for --db-path and tests.
func SetDBPathOverride(path string) { dbPathOverride = path }

// ResolvedStore describes the outcome of resolving which project store a
// command should operate against.
type ResolvedStore struct {
	Root        string
	DBPath      string
	StoreExists bool
	// FallbackWarning is non-empty when no marker was found and the
	// invocation directory was used as-is.
	FallbackWarning string
}

// Resolve locates the project store a command should operate on. write controls
// whether a missing store is an error (read) or merely "not yet created"
// (write, lazily initialized by the caller).
func Resolve(write bool) (ResolvedStore, error) {
	if dbPathOverride != "" {
		exists := fileExists(dbPathOverride)
		if !write && !exists {
			return ResolvedStore{}, models.NewNotInitialized()
		}
		return ResolvedStore{Root: "", DBPath: dbPathOverride, StoreExists: exists}, nil
	}

	if root := os.Getenv(ProjectEnvOverride); root != "" {
		storeExists := fileExists(discovery.StorePath(root))
		if !write && !storeExists {
			return ResolvedStore{}, models.NewNotInitialized()
		}
		return ResolvedStore{Root: root, DBPath: discovery.DBPath(root), StoreExists: storeExists}, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ResolvedStore{}, err
	}

	res, err := discovery.Discover(cwd)
	if err != nil {
		return ResolvedStore{}, err
	}

	if !write && !res.StoreExists {
		return ResolvedStore{}, models.NewNotInitialized()
	}

	out := ResolvedStore{Root: res.Root, DBPath: discovery.DBPath(res.Root), StoreExists: res.StoreExists}
	if res.Fallback {
		out.FallbackWarning = "no .intent-engine/ or recognized project marker found; using the current directory: " + res.Root
	}
	return out, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
