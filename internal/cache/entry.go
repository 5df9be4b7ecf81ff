package cache

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Fixed filenames inside a cache entry directory. These are part of the
// on-disk layout shared across processes and must not change without
// bumping the cache format version in DefaultRoot.
const (
	sourceFileName = "source"
	depsFileName   = "deps.json"
)

// entryState tracks the lifecycle of a cache entry directory.
type entryState int

const (
	// entryMissing: no directory on disk
	entryMissing entryState = iota
	// entryFound: directory exists, not yet validated
	entryFound
	// entryValid: validated hit, or freshly committed build
	entryValid
	// entryStale: a recorded dependency changed
	entryStale
	// entryCorrupt: unreadable record, source mismatch or missing artifact
	entryCorrupt
	// entryBuilding: directory reset, build in progress
	entryBuilding
)

// entry is one cache entry directory, named by the cache key. All state
// transitions that discard previous contents go through reset, so no
// half-written entry is ever observable by a process holding the lock.
type entry struct {
	dir   string
	state entryState
}

func openEntry(dir string) *entry {
	e := &entry{dir: dir, state: entryMissing}

	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		e.state = entryFound
	}

	return e
}

func (e *entry) exists() bool {
	return e.state != entryMissing
}

func (e *entry) sourcePath() string {
	return filepath.Join(e.dir, sourceFileName)
}

func (e *entry) depsPath() string {
	return filepath.Join(e.dir, depsFileName)
}

func (e *entry) artifactPath(fileName string) string {
	return filepath.Join(e.dir, fileName)
}

// validate checks an existing entry against the requested source text and
// the current filesystem state of its recorded dependencies. It returns
// true only for a usable hit; otherwise the entry state records why.
func (e *entry) validate(source []byte, artifactName string, log *zap.Logger) bool {
	record, err := loadRecord(e.depsPath())
	if err != nil {
		log.Warn("cache entry has unreadable dependency record, forcing rebuild",
			zap.String("dir", e.dir), zap.Error(err))
		e.state = entryCorrupt
		return false
	}

	if record.Stale(log) {
		e.state = entryStale
		return false
	}

	stored, err := os.ReadFile(e.sourcePath())
	if err != nil {
		log.Info("recompiling because cache entry has no source file",
			zap.String("dir", e.dir))
		e.state = entryCorrupt
		return false
	}

	if !bytes.Equal(stored, source) {
		// Equal keys with different source text should be vanishingly
		// rare; treat it as a forced rebuild, not a failure
		log.Warn("hash collision in compiler cache", zap.String("dir", e.dir))
		e.state = entryCorrupt
		return false
	}

	if _, err := os.Stat(e.artifactPath(artifactName)); err != nil {
		log.Info("recompiling because cached artifact is missing",
			zap.String("dir", e.dir))
		e.state = entryCorrupt
		return false
	}

	e.state = entryValid

	return true
}

// beginBuild erases any previous contents and prepares an empty directory.
func (e *entry) beginBuild() error {
	if err := e.reset(); err != nil {
		return err
	}

	e.state = entryBuilding

	return nil
}

// commit persists the dependency record, completing the build.
func (e *entry) commit(record DependencyRecord) error {
	if record == nil {
		record = DependencyRecord{}
	}

	if err := record.save(e.depsPath()); err != nil {
		return err
	}

	e.state = entryValid

	return nil
}

// abort resets the entry to an empty directory after a failed build so the
// next call sees a plain miss rather than a half-built artifact.
func (e *entry) abort() error {
	if err := e.reset(); err != nil {
		return err
	}

	e.state = entryBuilding

	return nil
}

// reset is the single operation every destructive transition goes through.
func (e *entry) reset() error {
	if err := os.RemoveAll(e.dir); err != nil {
		return fmt.Errorf("failed to erase cache entry: %w", err)
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache entry: %w", err)
	}

	return nil
}
