package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// maxDailyPeriods bounds how many days the counters file keeps.
const maxDailyPeriods = 62

type fileData struct {
	Daily   map[string]map[string]int64 `json:"daily"`
	Monthly map[string]map[string]int64 `json:"monthly"`
}

// FileCounters keeps counters in one JSON document keyed by calendar
// boundary strings. Every increment rewrites the file atomically.
type FileCounters struct {
	mu   sync.Mutex
	path string
	data fileData
}

// OpenFileCounters loads (or starts) the counters file at path.
func OpenFileCounters(path string) (*FileCounters, error) {
	f := &FileCounters{path: path, data: fileData{
		Daily:   map[string]map[string]int64{},
		Monthly: map[string]map[string]int64{},
	}}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return f, nil
	case err != nil:
		return nil, fmt.Errorf("read counters %s: %w", path, err)
	}
	if len(raw) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(raw, &f.data); err != nil {
		return nil, fmt.Errorf("decode counters %s: %w", path, err)
	}
	if f.data.Daily == nil {
		f.data.Daily = map[string]map[string]int64{}
	}
	if f.data.Monthly == nil {
		f.data.Monthly = map[string]map[string]int64{}
	}
	return f, nil
}

func (f *FileCounters) section(s Scope) map[string]map[string]int64 {
	if s == ScopeDaily {
		return f.data.Daily
	}
	return f.data.Monthly
}

// IncrBy adds val to the counter and persists the whole file before returning.
func (f *FileCounters) IncrBy(_ context.Context, key Key, val int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	sec := f.section(key.Scope)
	period, ok := sec[key.Period]
	if !ok {
		period = map[string]int64{}
		sec[key.Period] = period
	}
	period[key.Name] += val
	f.prune()

	if err := f.persist(); err != nil {
		// Undo so memory never runs ahead of disk.
		period[key.Name] -= val
		return err
	}
	return nil
}

// Get returns the counter value, 0 when absent.
func (f *FileCounters) Get(_ context.Context, key Key) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.section(key.Scope)[key.Period][key.Name], nil
}

func (f *FileCounters) prune() {
	if len(f.data.Daily) <= maxDailyPeriods {
		return
	}
	days := make([]string, 0, len(f.data.Daily))
	for d := range f.data.Daily {
		days = append(days, d)
	}
	sort.Strings(days)
	for _, d := range days[:len(days)-maxDailyPeriods] {
		delete(f.data.Daily, d)
	}
}

func (f *FileCounters) persist() error {
	raw, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode counters: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".counters-*")
	if err != nil {
		return fmt.Errorf("create temp counters: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after rename

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write counters: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync counters: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close counters: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("rename counters: %w", err)
	}
	return nil
}
