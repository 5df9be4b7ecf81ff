package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"
)

// Dependency records the state of one file the cached artifact was built
// against.
type Dependency struct {
	// Path is the absolute path of the dependency
	Path string `json:"path"`

	// MTime is the file's modification time (UnixNano) at snapshot time
	MTime int64 `json:"mtime"`

	// Checksum is the file's content checksum at snapshot time
	Checksum string `json:"checksum"`
}

// DependencyRecord is the ordered set of dependencies of one cache entry.
type DependencyRecord []Dependency

// Snapshot stats and checksums each path, returning a record sorted by path.
func Snapshot(paths []string) (DependencyRecord, error) {
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)

	record := make(DependencyRecord, 0, len(sorted))
	for _, path := range sorted {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat dependency %s: %w", path, err)
		}

		sum, err := ChecksumFile(path)
		if err != nil {
			return nil, err
		}

		record = append(record, Dependency{
			Path:     path,
			MTime:    info.ModTime().UnixNano(),
			Checksum: sum,
		})
	}

	return record, nil
}

// Stale reports whether any recorded dependency no longer matches the
// filesystem. A missing dependency is stale: it cannot be tracked, so the
// entry cannot be trusted. A changed mtime alone is not stale - the mtime
// check only decides whether the content checksum needs recomputing, so
// touch-without-change (checkouts, copies) never forces a rebuild.
func (r DependencyRecord) Stale(log *zap.Logger) bool {
	for _, dep := range r {
		info, err := os.Stat(dep.Path)
		if err != nil {
			log.Info("recompiling because dependency is inaccessible",
				zap.String("path", dep.Path), zap.Error(err))
			return true
		}

		if info.ModTime().UnixNano() == dep.MTime {
			continue
		}

		sum, err := ChecksumFile(dep.Path)
		if err != nil {
			log.Info("recompiling because dependency cannot be read",
				zap.String("path", dep.Path), zap.Error(err))
			return true
		}

		if sum != dep.Checksum {
			log.Info("recompiling because dependency was updated",
				zap.String("path", dep.Path))
			return true
		}
	}

	return false
}

// loadRecord reads a dependency record from its fixed file in a cache entry.
func loadRecord(path string) (DependencyRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var record DependencyRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to parse dependency record: %w", err)
	}

	return record, nil
}

// save writes the record to its fixed file in a cache entry.
func (r DependencyRecord) save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal dependency record: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write dependency record: %w", err)
	}

	return nil
}
