package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeHeader(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	err := os.WriteFile(path, []byte(content), 0o644)
	require.NoError(t, err)

	return path
}

func TestSnapshot(t *testing.T) {
	dir := t.TempDir()
	b := writeHeader(t, dir, "b.h", "// b")
	a := writeHeader(t, dir, "a.h", "// a")

	record, err := Snapshot([]string{b, a})
	require.NoError(t, err)
	require.Len(t, record, 2)

	// Sorted by path regardless of input order
	assert.Equal(t, a, record[0].Path)
	assert.Equal(t, b, record[1].Path)
	assert.NotZero(t, record[0].MTime)
	assert.NotEmpty(t, record[0].Checksum)
}

func TestSnapshot_MissingPath(t *testing.T) {
	_, err := Snapshot([]string{filepath.Join(t.TempDir(), "gone.h")})
	assert.Error(t, err)
}

func TestDependencyRecord_Stale(t *testing.T) {
	dir := t.TempDir()
	header := writeHeader(t, dir, "dep.h", "#define N 4\n")

	record, err := Snapshot([]string{header})
	require.NoError(t, err)

	log := zap.NewNop()

	// Unchanged file is not stale
	assert.False(t, record.Stale(log))

	// Touch without content change: mtime differs, checksum matches
	newTime := time.Now().Add(time.Hour)
	err = os.Chtimes(header, newTime, newTime)
	require.NoError(t, err)
	assert.False(t, record.Stale(log), "Touch without content change should not be stale")

	// Content change is stale
	err = os.WriteFile(header, []byte("#define N 5\n"), 0o644)
	require.NoError(t, err)
	err = os.Chtimes(header, newTime.Add(time.Hour), newTime.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, record.Stale(log), "Content change should be stale")
}

func TestDependencyRecord_StaleMissingDependency(t *testing.T) {
	dir := t.TempDir()
	header := writeHeader(t, dir, "dep.h", "// dep")

	record, err := Snapshot([]string{header})
	require.NoError(t, err)

	err = os.Remove(header)
	require.NoError(t, err)

	assert.True(t, record.Stale(zap.NewNop()), "Missing dependency should be stale")
}

func TestDependencyRecord_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	header := writeHeader(t, dir, "dep.h", "// dep")

	record, err := Snapshot([]string{header})
	require.NoError(t, err)

	path := filepath.Join(dir, depsFileName)
	require.NoError(t, record.save(path))

	loaded, err := loadRecord(path)
	require.NoError(t, err)
	assert.Equal(t, record, loaded)
}

func TestLoadRecord_Corrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, depsFileName)
	err := os.WriteFile(path, []byte("not json{"), 0o644)
	require.NoError(t, err)

	_, err = loadRecord(path)
	assert.Error(t, err)
}
