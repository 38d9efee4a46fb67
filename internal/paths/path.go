// Package paths expands user-supplied path strings (config file paths,
// cache directories) before they reach disk.
package paths

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// Expand expands a leading "~" to the current user's home directory and
// then expands environment variable references via os.ExpandEnv.
func Expand(path string) string {
	path = os.ExpandEnv(path)

	if strings.HasPrefix(path, "~/") {
		if usr, err := user.Current(); err == nil {
			return filepath.Join(usr.HomeDir, path[2:])
		}
	} else if path == "~" {
		if usr, err := user.Current(); err == nil {
			return usr.HomeDir
		}
	}

	return path
}
