package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const timestampLayout = "2006.01.02_15-04-05"

// OutputPath builds
//
//	<dir>/<user>/TK_<user>_<YYYY.MM.DD_HH-MM-SS>[_<label>]_flv.<ext>
//
// The label is only appended when several targets record concurrently.
func OutputPath(dir, username string, at time.Time, label string, multi bool, ext string) string {
	suffix := ""
	if multi && label != "" {
		suffix = "_" + label
	}
	name := fmt.Sprintf("TK_%s_%s%s_flv.%s", username, at.Format(timestampLayout), suffix, strings.TrimPrefix(ext, "."))
	return filepath.Join(dir, username, name)
}

// nextFreePath numbers path when a file of that name already exists, e.g.
// after a restart within the same second.
func nextFreePath(path string) string {
	if _, err := os.Stat(path); err != nil {
		return path
	}
	i := strings.LastIndex(path, "_flv.")
	if i < 0 {
		i = len(path) - len(filepath.Ext(path))
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s_%d%s", path[:i], n, path[i:])
		if _, err := os.Stat(candidate); err != nil {
			return candidate
		}
	}
}
