package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func builtEntry(t *testing.T, source []byte, artifactName string) *entry {
	t.Helper()

	e := openEntry(filepath.Join(t.TempDir(), "0abc"))
	require.NoError(t, e.beginBuild())
	require.NoError(t, os.WriteFile(e.sourcePath(), source, 0o644))
	require.NoError(t, os.WriteFile(e.artifactPath(artifactName), []byte("\x7fELF"), 0o644))
	require.NoError(t, e.commit(nil))

	return e
}

func TestEntry_Lifecycle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "0abc")

	e := openEntry(dir)
	assert.False(t, e.exists())
	assert.Equal(t, entryMissing, e.state)

	require.NoError(t, e.beginBuild())
	assert.Equal(t, entryBuilding, e.state)

	require.NoError(t, os.WriteFile(e.sourcePath(), []byte("src"), 0o644))
	require.NoError(t, os.WriteFile(e.artifactPath("m.o"), []byte("obj"), 0o644))
	require.NoError(t, e.commit(nil))
	assert.Equal(t, entryValid, e.state)

	// A fresh handle sees the committed entry as a hit
	e2 := openEntry(dir)
	assert.True(t, e2.exists())
	assert.True(t, e2.validate([]byte("src"), "m.o", zap.NewNop()))
	assert.Equal(t, entryValid, e2.state)
}

func TestEntry_ValidateCorruptRecord(t *testing.T) {
	e := builtEntry(t, []byte("src"), "m.o")

	require.NoError(t, os.WriteFile(e.depsPath(), []byte("garbage{"), 0o644))

	core, logs := observer.New(zap.WarnLevel)
	assert.False(t, e.validate([]byte("src"), "m.o", zap.New(core)))
	assert.Equal(t, entryCorrupt, e.state)
	assert.Equal(t, 1, logs.FilterMessageSnippet("unreadable dependency record").Len())
}

func TestEntry_ValidateHashCollision(t *testing.T) {
	e := builtEntry(t, []byte("stored source"), "m.o")

	core, logs := observer.New(zap.WarnLevel)
	assert.False(t, e.validate([]byte("requested source"), "m.o", zap.New(core)))
	assert.Equal(t, entryCorrupt, e.state)
	assert.Equal(t, 1, logs.FilterMessageSnippet("hash collision").Len())
}

func TestEntry_ValidateMissingArtifact(t *testing.T) {
	e := builtEntry(t, []byte("src"), "m.o")

	require.NoError(t, os.Remove(e.artifactPath("m.o")))

	assert.False(t, e.validate([]byte("src"), "m.o", zap.NewNop()))
	assert.Equal(t, entryCorrupt, e.state)
}

func TestEntry_AbortLeavesEmptyDirectory(t *testing.T) {
	e := builtEntry(t, []byte("src"), "m.o")

	require.NoError(t, e.abort())

	entries, err := os.ReadDir(e.dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "Abort should leave an empty entry directory")
}
