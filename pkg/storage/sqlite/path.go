package sqlite

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// BackupExt is the file extension of bot database files.
const BackupExt = ".kbp"

// ResolvePath picks the database file. The order is:
//  1. cfg.Path
//  2. the BACKUP_PATH environment variable
//  3. the first *.kbp file in cfg.Dir, by name
//  4. a new kikaiken_<YYYYMMDDhhmmss>.kbp in cfg.Dir
func ResolvePath(cfg Config, now time.Time) string {
	if cfg.Path != "" {
		return cfg.Path
	}

	lookup := cfg.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup("BACKUP_PATH"); ok && v != "" {
		return v
	}

	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	if entries, err := os.ReadDir(dir); err == nil {
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), BackupExt) {
				return filepath.Join(dir, e.Name())
			}
		}
	}

	return filepath.Join(dir, "kikaiken_"+now.Format("20060102150405")+BackupExt)
}
