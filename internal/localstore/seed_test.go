package localstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dreamware/crashmesh/internal/meshdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedDemo_LoadsFixtureRows(t *testing.T) {
	s := New()
	n, err := s.SeedDemo(filepath.Join("testdata", "seed.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, s.Len())

	entry, err := s.Get("crash_0")
	require.NoError(t, err)
	require.Equal(t, meshdata.KindCrashRecord, entry.Value.Kind)
	assert.Equal(t, "BROOKLYN", entry.Value.Record.Borough)
}

func TestSeedDemo_MissingFileErrors(t *testing.T) {
	s := New()
	_, err := s.SeedDemo(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSeedDemo_MalformedYAMLErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid, yaml"), 0o600))

	s := New()
	_, err := s.SeedDemo(path)
	assert.Error(t, err)
}
