package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// StateFile persists the processed-set and ignore-list across restarts so
// recordings are not re-enqueued after a relaunch. It lives in the local
// state directory, never in the shared folder.
type StateFile struct {
	mu        sync.Mutex
	path      string
	processed map[string]bool
	ignored   map[string]bool
}

type stateDoc struct {
	Processed []string `json:"processed"`
	Ignored   []string `json:"ignored"`
}

// OpenStateFile loads existing state or starts empty when the file is
// missing.
func OpenStateFile(path string) (*StateFile, error) {
	sf := &StateFile{
		path:      path,
		processed: make(map[string]bool),
		ignored:   make(map[string]bool),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sf, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var doc stateDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	for _, name := range doc.Processed {
		sf.processed[name] = true
	}
	for _, name := range doc.Ignored {
		sf.ignored[name] = true
	}
	return sf, nil
}

// IsProcessed reports whether a recording was already handled.
func (sf *StateFile) IsProcessed(name string) bool {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return sf.processed[name]
}

// MarkProcessed records a recording as handled and persists immediately.
func (sf *StateFile) MarkProcessed(name string) error {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	if sf.processed[name] {
		return nil
	}
	sf.processed[name] = true
	return sf.save()
}

// ClearProcessed removes a recording from the processed set, used by retry.
func (sf *StateFile) ClearProcessed(name string) error {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	if !sf.processed[name] {
		return nil
	}
	delete(sf.processed, name)
	return sf.save()
}

// IsIgnored reports whether the user permanently ignored a recording.
func (sf *StateFile) IsIgnored(name string) bool {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return sf.ignored[name]
}

// Ignore adds a recording to the permanent ignore-list.
func (sf *StateFile) Ignore(name string) error {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	if sf.ignored[name] {
		return nil
	}
	sf.ignored[name] = true
	return sf.save()
}

// save writes the state file; callers hold the lock.
func (sf *StateFile) save() error {
	doc := stateDoc{
		Processed: sortedKeys(sf.processed),
		Ignored:   sortedKeys(sf.ignored),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(sf.path), 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp := sf.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, sf.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
