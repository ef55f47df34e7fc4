// Command ie gives AI coding assistants durable, per-project memory:
// tasks, events, dependencies, and workspace focus persisted in SQLite so
// work survives context resets and process restarts.
package main

import (
	"os"
	"runtime/debug"

	"github.com/intent-engine/ie/internal/commands"
)

// version is set via ldflags (-X main.version=v1.0.0) or detected
// automatically from Go module info embedded by go install.
var version = "dev"

func main() {
	if version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
	}
	if err := commands.Execute(version); err != nil {
		os.Exit(1)
	}
}
