package credential

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kora", "credential.yaml")
	s := NewStore(path)

	got, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, got, "missing file is not an error")

	require.NoError(t, s.Save("sk-abc"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err = NewStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-abc", got)
}

func TestStore_Resolve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credential.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_key: sk-saved\n"), 0o600))
	s := NewStore(path)

	got, err := s.Resolve("sk-config")
	require.NoError(t, err)
	assert.Equal(t, "sk-config", got)

	got, err = s.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "sk-saved", got)
}

func TestStore_Disabled(t *testing.T) {
	s := NewStore("")
	require.NoError(t, s.Save("sk-abc"))
	got, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_SaveIgnoresEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credential.yaml")
	require.NoError(t, NewStore(path).Save(""))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credential.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_key: [\n"), 0o600))
	_, err := NewStore(path).Load()
	assert.Error(t, err)
}
