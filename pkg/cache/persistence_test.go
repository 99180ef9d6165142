package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistenceManager_WriteReadRoundTrip(t *testing.T) {
	root := t.TempDir()
	m := NewPersistenceManager(root, nil)

	_, hash := GenerateKey("ns", "args")
	e := &entry{
		namespace: "ns",
		keyHash:   hash,
		value:     map[string]any{"hello": "world"},
		expiresAt: time.Now().Add(time.Hour).Truncate(time.Millisecond),
	}
	require.NoError(t, m.Write(e))

	rec, ok, err := m.Read("ns", HexKey(hash))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, e.expiresAt.UnixMilli(), rec.ExpiresAt)
}

func TestPersistenceManager_QuarantinesCorruptFile(t *testing.T) {
	root := t.TempDir()
	m := NewPersistenceManager(root, nil)

	dir := filepath.Join(root, "namespaces", "ns")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "deadbeef.json")
	require.NoError(t, os.WriteFile(path, []byte("{not valid json"), 0o644))

	rec, ok, err := m.Read("ns", "deadbeef")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, rec)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "corrupt file should have been renamed away")

	matches, _ := filepath.Glob(filepath.Join(dir, "deadbeef.json.corrupt.*"))
	assert.Len(t, matches, 1)
}

func TestPersistenceManager_RefusesTraversal(t *testing.T) {
	root := t.TempDir()
	m := NewPersistenceManager(root, nil)
	_, err := m.entryPath("../../etc", "deadbeef")
	assert.Error(t, err)
}

func TestPersistenceManager_EagerLoadDropsExpired(t *testing.T) {
	root := t.TempDir()
	m := NewPersistenceManager(root, nil)

	now := time.Now()
	_, freshHash := GenerateKey("ns", "fresh")
	fresh := &entry{namespace: "ns", keyHash: freshHash, value: "f", expiresAt: now.Add(time.Hour)}
	require.NoError(t, m.Write(fresh))

	_, expiredHash := GenerateKey("ns", "expired")
	expired := &entry{namespace: "ns", keyHash: expiredHash, value: "e", expiresAt: now.Add(-time.Hour)}
	require.NoError(t, m.Write(expired))

	loaded, err := m.LoadAll(now)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "f", loaded[0].value)
}
