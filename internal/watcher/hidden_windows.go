//go:build windows
// +build windows

package watcher

import (
	"path/filepath"
	"strings"

	"golang.org/x/sys/windows"
)

// isHiddenPath reports whether the file carries the Windows hidden
// attribute. Dot-prefixed names are also treated as hidden so behavior
// matches the Unix build for tools that write them.
func isHiddenPath(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return false
	}
	attrs, err := windows.GetFileAttributes(p)
	if err != nil {
		return false
	}
	return attrs&windows.FILE_ATTRIBUTE_HIDDEN != 0
}
