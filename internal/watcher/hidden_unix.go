//go:build !windows
// +build !windows

package watcher

import "path/filepath"

// isHiddenPath reports whether the file's basename starts with a dot, the
// Unix convention for hidden entries.
func isHiddenPath(path string) bool {
	base := filepath.Base(path)
	return len(base) > 0 && base[0] == '.'
}
