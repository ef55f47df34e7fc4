package planner

import (
	"fmt"
	"os"
	"regexp"
)

// fileDirective matches @file(path) or @file(path, keep), capturing the path
// and whether "keep" was requested.
var fileDirective = regexp.MustCompile(`@file\(\s*([^,)]+?)\s*(,\s*keep\s*)?\)`)

// expandFileDirectives replaces every @file(path[, keep]) substring in spec
// with the named file's contents. Paths without ", keep" are queued for
// deletion, performed only after the whole request commits successfully:
// a failure anywhere must not consume the source file. A missing file
// aborts the request before any write.
func expandFileDirectives(spec string, pendingDeletes *[]string) (string, error) {
	var firstErr error
	expanded := fileDirective.ReplaceAllStringFunc(spec, func(match string) string {
		if firstErr != nil {
			return match
		}
		sub := fileDirective.FindStringSubmatch(match)
		path, keep := sub[1], sub[2] != ""
		content, err := os.ReadFile(path)
		if err != nil {
			firstErr = fmt.Errorf("@file(%s): %w", path, err)
			return match
		}
		if !keep {
			*pendingDeletes = append(*pendingDeletes, path)
		}
		return string(content)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return expanded, nil
}
