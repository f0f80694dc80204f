// Package replay loads recorded run documents from disk into the
// in-memory library the engine evaluates against. Runs are normalized on
// load and never mutated afterwards; there is no run database.
package replay

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/halcyon-robotics/runscope/api/run"
	"github.com/halcyon-robotics/runscope/internal/engine/normalize"
)

// Library holds the loaded, immutable run set for one session.
type Library struct {
	runs    []run.Run
	byLabel map[string]int
}

// LoadDir reads every .json document under dir (non-recursive), normalizes
// each into a run, and derives producer-side stats where the document
// carried none. Undecodable documents degrade to empty runs rather than
// failing the load.
func LoadDir(dir string) (*Library, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read run directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	library := &Library{byLabel: make(map[string]int, len(names))}
	for _, name := range names {
		record, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		library.add(record)
	}
	return library, nil
}

// LoadFile reads and normalizes one run document. The filename stem is
// the fallback label.
func LoadFile(path string) (run.Run, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return run.Run{}, fmt.Errorf("read run document: %w", err)
	}
	record := normalize.FromJSON(raw)
	if record.Label == "" {
		record.Label = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	record.Stats = FillStats(record)
	return record, nil
}

func (l *Library) add(record run.Run) {
	label := record.Label
	for i := 1; ; i++ {
		if _, taken := l.byLabel[label]; !taken {
			break
		}
		label = fmt.Sprintf("%s-%d", record.Label, i)
	}
	record.Label = label
	l.byLabel[label] = len(l.runs)
	l.runs = append(l.runs, record)
}

// Runs returns the loaded runs in load order.
func (l *Library) Runs() []run.Run {
	out := make([]run.Run, len(l.runs))
	copy(out, l.runs)
	return out
}

// Get resolves one run by label.
func (l *Library) Get(label string) (run.Run, bool) {
	index, ok := l.byLabel[label]
	if !ok {
		return run.Run{}, false
	}
	return l.runs[index], true
}

// Labels returns the loaded run labels in load order.
func (l *Library) Labels() []string {
	labels := make([]string, 0, len(l.runs))
	for _, record := range l.runs {
		labels = append(labels, record.Label)
	}
	return labels
}
