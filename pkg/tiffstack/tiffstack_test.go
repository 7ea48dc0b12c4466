package tiffstack

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vesselexpress/internal/models"
)

func testVolume(w, h, d int) *models.NormalizedVolume {
	vol := &models.NormalizedVolume{
		Data:   make([]uint16, w*h*d),
		Width:  w,
		Height: h,
		Depth:  d,
	}
	for i := range vol.Data {
		vol.Data[i] = uint16((i * 37) % 65536)
	}
	return vol
}

func TestWriteReadRoundTrip(t *testing.T) {
	vol := testVolume(5, 4, 3)
	path := filepath.Join(t.TempDir(), "stack.tiff")

	require.NoError(t, Write(path, vol))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, vol.Width, got.Width)
	assert.Equal(t, vol.Height, got.Height)
	assert.Equal(t, vol.Depth, got.Depth)
	assert.Equal(t, vol.Data, got.Data)
}

func TestWriteSinglePage(t *testing.T) {
	vol := testVolume(8, 6, 1)
	path := filepath.Join(t.TempDir(), "plane.tiff")

	require.NoError(t, Write(path, vol))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Depth)
	assert.Equal(t, vol.Data, got.Data)
}

func TestWriteHeaderBytes(t *testing.T) {
	vol := testVolume(2, 2, 2)
	path := filepath.Join(t.TempDir(), "stack.tiff")
	require.NoError(t, Write(path, vol))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(raw), 8)

	// Little-endian byte order mark and TIFF magic.
	assert.Equal(t, byte('I'), raw[0])
	assert.Equal(t, byte('I'), raw[1])
	assert.Equal(t, byte(42), raw[2])
	assert.Equal(t, byte(0), raw[3])
}

// A failed write must not leave a partial canonical file behind.
func TestWriteMissingDirLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing", "stack.tiff")

	err := Write(path, testVolume(2, 2, 1))
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteInvalidShape(t *testing.T) {
	vol := &models.NormalizedVolume{Width: 0, Height: 2, Depth: 1}
	err := Write(filepath.Join(t.TempDir(), "bad.tiff"), vol)
	assert.Error(t, err)
}

func TestReadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Read(filepath.Join(t.TempDir(), "nope.tiff"))
		assert.Error(t, err)
	})

	t.Run("not a tiff", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "junk.tiff")
		require.NoError(t, os.WriteFile(path, []byte("not a tiff at all"), 0644))
		_, err := Read(path)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("truncated", func(t *testing.T) {
		vol := testVolume(4, 4, 2)
		path := filepath.Join(t.TempDir(), "cut.tiff")
		require.NoError(t, Write(path, vol))

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, raw[:len(raw)-20], 0644))

		_, err = Read(path)
		assert.ErrorIs(t, err, ErrCorrupt)
	})
}
