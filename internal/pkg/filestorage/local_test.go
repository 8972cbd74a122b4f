package filestorage

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_WriteReadDelete(t *testing.T) {
	ls, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, ls.Write("imports/logs/abc_errors.log", []byte("Row 2: bad\n")))

	ok, err := ls.Exists("imports/logs/abc_errors.log")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := ls.Read("imports/logs/abc_errors.log")
	require.NoError(t, err)
	assert.Equal(t, "Row 2: bad\n", string(data))

	rc, err := ls.Open("imports/logs/abc_errors.log")
	require.NoError(t, err)
	streamed, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, data, streamed)

	require.NoError(t, ls.Delete("imports/logs/abc_errors.log"))
	ok, err = ls.Exists("imports/logs/abc_errors.log")
	require.NoError(t, err)
	assert.False(t, ok)

	// deleting twice is fine
	assert.NoError(t, ls.Delete("imports/logs/abc_errors.log"))
}

func TestLocalStorage_RejectsEscapingPaths(t *testing.T) {
	ls, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	for _, p := range []string{"../outside.csv", "/etc/passwd", ".", "imports/../../x"} {
		_, err := ls.Read(p)
		assert.ErrorIs(t, err, ErrInvalidPath, p)
	}
	assert.Empty(t, ls.FullPath("../x"))
}
