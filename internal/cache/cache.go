// Package cache implements the jitc compile cache.
//
// Compiled artifacts are cached under a shared root directory, one
// subdirectory per cache key. The key is a digest over the exact source
// text and the toolchain's ABI descriptor, so a flag or compiler change
// never reuses a stale artifact. Each entry stores the original source
// text, a dependency record (path, mtime, checksum per included header)
// and the artifact itself. Entries are validated on every hit: a changed
// header, a source mismatch (hash collision) or an unreadable record
// forces a rebuild.
//
// Multiple processes may share one cache root. A lock file at the root
// serializes all mutations; within a process, concurrent builds of the
// same key are additionally collapsed through singleflight. Entries are
// never garbage-collected; unbounded growth is a known limitation.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/opencontainers/go-digest"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// formatVersion tags the on-disk layout. Bump it when the layout changes
// so incompatible caches never collide.
const formatVersion = 1

// DefaultRoot returns the default cache location: a per-user directory
// under the OS temp dir, namespaced by format version and user id. It
// survives reboots on systems that keep their temp dir, until cleared
// manually.
func DefaultRoot() string {
	return filepath.Join(os.TempDir(),
		fmt.Sprintf("jitc-compiler-cache-v%d-uid%d", formatVersion, os.Getuid()))
}

// BuildFunc performs the actual compilation: it reads the source at
// sourcePath and must produce the artifact at artifactPath, returning a
// *toolchain.CompileError (or any error) on failure.
type BuildFunc func(sourcePath, artifactPath string) error

// DepsFunc lists the header files the compiled source depends on,
// excluding the source itself. Typically toolchain.Toolchain.Dependencies.
type DepsFunc func(sourcePath string) ([]string, error)

// Build describes one compilation request.
type Build struct {
	// ABI is the serialized ABI descriptor of the toolchain. Builds with
	// different descriptors never share a cache entry.
	ABI []byte

	// Source is the exact source text to compile.
	Source []byte

	// Name is the logical module name; the artifact is named
	// Name+Suffix inside the entry directory.
	Name string

	// Suffix is the toolchain-specific artifact suffix (".o", ".so", ...).
	Suffix string

	// Compile builds the artifact. Required.
	Compile BuildFunc

	// Dependencies lists included headers for staleness tracking.
	// Optional; without it the entry has an empty dependency record and
	// is only ever invalidated by source or ABI changes.
	Dependencies DepsFunc
}

// Result is the outcome of CompileOrFetch.
type Result struct {
	// ModuleID is a stable identifier for the compiled module,
	// derived from the cache key and the logical name.
	ModuleID string

	// Path is the location of the artifact.
	Path string

	// Rebuilt is false when the artifact came from the cache.
	Rebuilt bool
}

// Cache is a compile cache over one root directory.
type Cache struct {
	root     string
	disabled bool
	log      *zap.Logger
	registry *registry
	group    singleflight.Group

	lockRetryInterval time.Duration
	lockWarnAttempts  int
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for cache warnings and recompile notices.
func WithLogger(log *zap.Logger) Option {
	return func(c *Cache) { c.log = log }
}

// WithCachingDisabled makes every call rebuild into a throwaway temporary
// directory, bypassing the cache root entirely.
func WithCachingDisabled() Option {
	return func(c *Cache) { c.disabled = true }
}

// WithLockRetry overrides the lock retry interval and the attempt count
// after which a contention warning is logged.
func WithLockRetry(interval time.Duration, warnAttempts int) Option {
	return func(c *Cache) {
		c.lockRetryInterval = interval
		c.lockWarnAttempts = warnAttempts
	}
}

// New opens (creating if needed) the cache rooted at root. An empty root
// selects DefaultRoot.
func New(root string, opts ...Option) (*Cache, error) {
	if root == "" {
		root = DefaultRoot()
	}

	c := &Cache{
		root:              root,
		log:               zap.NewNop(),
		lockRetryInterval: defaultLockRetryInterval,
		lockWarnAttempts:  defaultLockWarnAttempts,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.disabled {
		return c, nil
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	reg, err := openRegistry(root)
	if err != nil {
		// The directory tree is authoritative; keep going without stats
		c.log.Warn("cache registry unavailable", zap.Error(err))
	} else {
		c.registry = reg
	}

	return c, nil
}

// Root returns the cache root directory.
func (c *Cache) Root() string { return c.root }

// Close releases the cache registry.
func (c *Cache) Close() error {
	return c.registry.close()
}

// CompileOrFetch returns the artifact for b, compiling it only if no valid
// cache entry exists. Concurrent callers (in this process or others
// sharing the root) never observe a half-written entry; exactly one
// performs the build.
func (c *Cache) CompileOrFetch(b Build) (Result, error) {
	if b.Compile == nil {
		return Result{}, fmt.Errorf("build function is required")
	}

	if b.Name == "" {
		return Result{}, fmt.Errorf("logical module name is required")
	}

	key := Key(b.Source, b.ABI)

	if c.disabled {
		return c.buildUncached(key, b)
	}

	v, err, _ := c.group.Do(key.Encoded(), func() (any, error) {
		return c.compileLocked(key, b)
	})
	if err != nil {
		return Result{}, err
	}

	return v.(Result), nil
}

// compileLocked does the existence check and possible rebuild under the
// cache root lock. The lock scope is deliberately coarse (one lock per
// root, not per key): two unrelated builds serialize, which is a
// throughput limitation, not a correctness one.
func (c *Cache) compileLocked(key digest.Digest, b Build) (Result, error) {
	lock, err := acquireLock(filepath.Join(c.root, lockFileName),
		c.lockRetryInterval, c.lockWarnAttempts, c.log)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if releaseErr := lock.release(); releaseErr != nil {
			c.log.Warn("failed to release cache lock", zap.Error(releaseErr))
		}
	}()

	ent := openEntry(filepath.Join(c.root, key.Encoded()))
	artifactName := b.Name + b.Suffix
	result := Result{
		ModuleID: moduleID(key, b.Name),
		Path:     ent.artifactPath(artifactName),
	}

	if ent.exists() {
		if ent.validate(b.Source, artifactName, c.log) {
			if err := c.registry.recordHit(key.Encoded()); err != nil {
				c.log.Warn("failed to update cache registry", zap.Error(err))
			}

			return result, nil
		}
	} else {
		c.log.Info("recompiling for nonexistent cache entry",
			zap.String("dir", ent.dir))
	}

	if err := ent.beginBuild(); err != nil {
		return Result{}, err
	}

	if err := os.WriteFile(ent.sourcePath(), b.Source, 0o644); err != nil {
		return Result{}, fmt.Errorf("failed to write source: %w", err)
	}

	if err := b.Compile(ent.sourcePath(), result.Path); err != nil {
		// Leave the entry empty, never half-built
		if resetErr := ent.abort(); resetErr != nil {
			c.log.Warn("failed to reset cache entry after build failure",
				zap.Error(resetErr))
		}

		return Result{}, err
	}

	record, err := c.snapshotDeps(b, ent.sourcePath())
	if err != nil {
		if resetErr := ent.abort(); resetErr != nil {
			c.log.Warn("failed to reset cache entry after build failure",
				zap.Error(resetErr))
		}

		return Result{}, err
	}

	if err := ent.commit(record); err != nil {
		return Result{}, err
	}

	if err := c.registry.recordBuild(key.Encoded(), b.Name); err != nil {
		c.log.Warn("failed to update cache registry", zap.Error(err))
	}

	result.Rebuilt = true

	return result, nil
}

func (c *Cache) snapshotDeps(b Build, sourcePath string) (DependencyRecord, error) {
	if b.Dependencies == nil {
		return nil, nil
	}

	paths, err := b.Dependencies(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list dependencies: %w", err)
	}

	return Snapshot(paths)
}

// buildUncached compiles into a fresh temporary directory that is never
// consulted again. The caller owns the directory.
func (c *Cache) buildUncached(key digest.Digest, b Build) (Result, error) {
	dir, err := os.MkdirTemp("", "jitc-nocache-")
	if err != nil {
		return Result{}, fmt.Errorf("failed to create temporary build dir: %w", err)
	}

	sourcePath := filepath.Join(dir, sourceFileName)
	if err := os.WriteFile(sourcePath, b.Source, 0o644); err != nil {
		return Result{}, fmt.Errorf("failed to write source: %w", err)
	}

	artifact := filepath.Join(dir, b.Name+b.Suffix)
	if err := b.Compile(sourcePath, artifact); err != nil {
		return Result{}, err
	}

	return Result{
		ModuleID: moduleID(key, b.Name),
		Path:     artifact,
		Rebuilt:  true,
	}, nil
}

func moduleID(key digest.Digest, name string) string {
	return fmt.Sprintf("jitc.%s.%s", key.Encoded(), name)
}

// Entries lists the registry's view of the cache.
func (c *Cache) Entries() ([]RegistryEntry, error) {
	return c.registry.entries()
}

// Stats returns the number of cache entries and their total size in bytes,
// derived from the authoritative directory tree.
func (c *Cache) Stats() (int, int64, error) {
	dirEntries, err := os.ReadDir(c.root)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read cache root: %w", err)
	}

	var count int
	var totalSize int64

	for _, dirEntry := range dirEntries {
		if !dirEntry.IsDir() {
			continue
		}

		count++

		entryDir := filepath.Join(c.root, dirEntry.Name())
		err := filepath.Walk(entryDir, func(_ string, info os.FileInfo, err error) error {
			if err != nil {
				return nil // Skip errors
			}

			if !info.IsDir() {
				totalSize += info.Size()
			}

			return nil
		})
		if err != nil {
			return 0, 0, err
		}
	}

	return count, totalSize, nil
}

// Clear removes every cache entry and resets the registry. The lock file
// and the registry database itself are left in place.
func (c *Cache) Clear() error {
	lock, err := acquireLock(filepath.Join(c.root, lockFileName),
		c.lockRetryInterval, c.lockWarnAttempts, c.log)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := lock.release(); releaseErr != nil {
			c.log.Warn("failed to release cache lock", zap.Error(releaseErr))
		}
	}()

	dirEntries, err := os.ReadDir(c.root)
	if err != nil {
		return fmt.Errorf("failed to read cache root: %w", err)
	}

	for _, dirEntry := range dirEntries {
		if !dirEntry.IsDir() {
			continue
		}

		if err := os.RemoveAll(filepath.Join(c.root, dirEntry.Name())); err != nil {
			return fmt.Errorf("failed to remove cache entry: %w", err)
		}
	}

	return c.registry.clear()
}
