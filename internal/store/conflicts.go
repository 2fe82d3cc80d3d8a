package store

import (
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Sync clients resolve concurrent writes by duplicating the file under a
// suffixed name: "rec (1).json", "rec (conflicted copy 2025-08-30).json" and
// similar. The logical record is the same; only the name drifted.
var conflictSuffixRe = regexp.MustCompile(`^(.+?) \((?:\d+|[^)]*[Cc]onflict[^)]*[Cc]opy[^)]*|[Cc]onflicted [Cc]opy[^)]*)\)$`)

// CanonicalName returns the unsuffixed form of a possibly conflict-suffixed
// file name, and whether a suffix was present.
func CanonicalName(fileName string) (string, bool) {
	ext := filepath.Ext(fileName)
	stem := strings.TrimSuffix(fileName, ext)
	m := conflictSuffixRe.FindStringSubmatch(stem)
	if m == nil {
		return fileName, false
	}
	return m[1] + ext, true
}

// CleanDuplicates sweeps the shared folder for conflict-suffixed metadata
// and transcript copies. When the canonical file is missing the duplicate
// is promoted (renamed) to become canonical; otherwise the duplicate is
// deleted. The canonical copy always wins because the suffixed copy is the
// write that lost the sync race. Returns the number of files touched.
func (s *Store) CleanDuplicates() int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.Printf("duplicate cleanup: read shared dir: %v", err)
		return 0
	}

	touched := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		ext := filepath.Ext(name)
		if ext != ".json" && ext != ".txt" {
			continue
		}

		canonical, suffixed := CanonicalName(name)
		if !suffixed || canonical == name {
			continue
		}

		dupPath := filepath.Join(s.dir, name)
		canonicalPath := filepath.Join(s.dir, canonical)

		if _, err := os.Stat(canonicalPath); os.IsNotExist(err) {
			if err := os.Rename(dupPath, canonicalPath); err != nil {
				log.Printf("duplicate cleanup: promote %s: %v", name, err)
				continue
			}
			log.Printf("duplicate cleanup: promoted %s -> %s", name, canonical)
			touched++
			continue
		}

		if err := os.Remove(dupPath); err != nil {
			log.Printf("duplicate cleanup: delete %s: %v", name, err)
			continue
		}
		log.Printf("duplicate cleanup: deleted %s (canonical %s present)", name, canonical)
		touched++
	}
	return touched
}
