package exclusion

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	l, err := Load(filepath.Join(t.TempDir(), "excluded.txt"))
	require.NoError(t, err)
	require.Zero(t, l.Len())
	require.False(t, l.Contains("111"))
}

func TestAppendPersistsAcrossLoads(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "excluded.txt")

	l, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, l.Append("111"))
	require.NoError(t, l.Append("222"))
	require.NoError(t, l.Append("111"), "duplicate append is a no-op")
	require.True(t, l.Contains("111"))

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, reloaded.Len())
	require.True(t, reloaded.Contains("222"))
}

func TestLoadSkipsBlankLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "excluded.txt")
	require.NoError(t, os.WriteFile(path, []byte("111\n\n  \n222\n"), 0o644))

	l, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, l.Len())
}
