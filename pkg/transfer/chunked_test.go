package transfer

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.dat")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestNewChunkReader_DefaultChunkSize(t *testing.T) {
	reader, err := NewChunkReader(writeTemp(t, []byte("test")), 0)
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, DefaultChunkSize, reader.chunkSize)
	assert.Equal(t, int64(4), reader.FileSize())
}

func TestNewChunkReader_NonExistentFile(t *testing.T) {
	_, err := NewChunkReader("/nonexistent/path/file.dat", 1024)
	assert.Error(t, err)
}

func TestChunkReader_NextChunk(t *testing.T) {
	reader, err := NewChunkReader(writeTemp(t, []byte("0123456789ABCDEFGHIJKL")), 5)
	require.NoError(t, err)
	defer reader.Close()

	var got []string
	var offsets []int64
	for {
		chunk, err := reader.NextChunk()
		require.NoError(t, err)
		if chunk == nil {
			break
		}
		got = append(got, string(chunk.Data))
		offsets = append(offsets, chunk.Offset)
	}

	assert.Equal(t, []string{"01234", "56789", "ABCDE", "FGHIJ", "KL"}, got)
	assert.Equal(t, []int64{0, 5, 10, 15, 20}, offsets)
	assert.Equal(t, reader.FileSize(), reader.offset)
}

func TestChunkReader_CopyChunks(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 23)
	reader, err := NewChunkReader(writeTemp(t, data), 10)
	require.NoError(t, err)
	defer reader.Close()

	var buf bytes.Buffer
	var reports []int64
	require.NoError(t, reader.CopyChunks(&buf, func(sent int64) { reports = append(reports, sent) }))

	assert.Equal(t, data, buf.Bytes())
	assert.Equal(t, []int64{10, 20, 23}, reports)
}

func TestChunkReader_CopyChunks_EmptyFile(t *testing.T) {
	reader, err := NewChunkReader(writeTemp(t, nil), 10)
	require.NoError(t, err)
	defer reader.Close()

	called := false
	require.NoError(t, reader.CopyChunks(&bytes.Buffer{}, func(int64) { called = true }))
	assert.False(t, called)
}

func TestCollectFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "data", "levels"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "game.x86_64"), []byte("elf"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "game.pck"), []byte("pack!"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "data", "levels", "one.bin"), []byte("1"), 0o644))

	files, dirs, total, err := CollectFiles(root)
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, f.RelativePath)
	}
	assert.Equal(t, []string{"data/levels/one.bin", "game.pck", "game.x86_64"}, names)
	assert.ElementsMatch(t, []string{"data", "data/levels", "empty"}, dirs)
	assert.Equal(t, int64(9), total)
}

func TestCollectFiles_MissingRoot(t *testing.T) {
	_, _, _, err := CollectFiles(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
