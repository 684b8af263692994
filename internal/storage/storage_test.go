package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/annel0/chunk-engine/internal/chunk"
	"github.com/annel0/chunk-engine/internal/logging"
	"github.com/annel0/chunk-engine/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logging.SetLogDir("")
	os.Exit(m.Run())
}

func newTestChunk(pos vec.Vec3) *chunk.Chunk {
	c := chunk.NewPool(0).Get(pos)
	c.EnsureSections()
	c.Section(0).Fill(1)
	c.Section(chunk.SectionIndex(1, 2, 3)).Set(4, 5, 6, 77)
	c.RestoreDecoration(chunk.DecorationCenter | chunk.DecorationCorner(3))
	c.BlockUpdates().Schedule(vec.Vec3{X: 1, Y: 2, Z: 3}, 10, 5)
	c.BlockUpdates().Schedule(vec.Vec3{X: 31}, 2, 5)
	c.FluidUpdates().Schedule(vec.Vec3{Z: 9}, 1, 0)
	return c
}

func assertSameContent(t *testing.T, want, got *chunk.Chunk) {
	t.Helper()
	require.True(t, got.SectionsAllocated())
	for i := 0; i < chunk.SectionCount; i++ {
		assert.Equal(t, want.Section(i).Blocks, got.Section(i).Blocks, "секция %d", i)
	}
	assert.Equal(t, want.Decoration(), got.Decoration())
	assert.Equal(t, want.BlockUpdates().Entries(), got.BlockUpdates().Entries())
	assert.Equal(t, want.FluidUpdates().Entries(), got.FluidUpdates().Entries())
}

func TestCodec_RoundTrip(t *testing.T) {
	codec, err := NewCodec()
	require.NoError(t, err)
	defer codec.Close()

	pos := vec.Vec3{X: -3, Y: 7, Z: 2147483647}
	src := newTestChunk(pos)
	data := codec.Encode(src)

	h, err := ReadHeader(data)
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, h.Version)
	assert.Equal(t, pos, h.Position)
	assert.Equal(t, src.Decoration(), h.Decoration)

	dst := chunk.NewPool(0).Get(pos)
	require.NoError(t, codec.Decode(data, pos, dst))
	assertSameContent(t, src, dst)
}

func TestCodec_DecodeErrors(t *testing.T) {
	codec, err := NewCodec()
	require.NoError(t, err)
	defer codec.Close()

	pos := vec.Vec3{X: 1}
	data := codec.Encode(newTestChunk(pos))

	tests := []struct {
		name   string
		data   func() []byte
		pos    vec.Vec3
		result chunk.LoadingResult
	}{
		{"short", func() []byte { return []byte("VG") }, pos, chunk.LoadFormatError},
		{"signature", func() []byte {
			d := append([]byte(nil), data...)
			d[0] = 'X'
			return d
		}, pos, chunk.LoadFormatError},
		{"version", func() []byte {
			d := append([]byte(nil), data...)
			d[len(Signature)] = 99
			return d
		}, pos, chunk.LoadFormatError},
		{"body", func() []byte {
			d := append([]byte(nil), data[:headerSize]...)
			return append(d, 1, 2, 3, 4, 5)
		}, pos, chunk.LoadFormatError},
		{"position", func() []byte { return data }, vec.Vec3{X: 2}, chunk.LoadValidationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := chunk.NewPool(0).Get(tt.pos)
			err := codec.Decode(tt.data(), tt.pos, dst)
			require.Error(t, err)
			assert.Equal(t, tt.result, ResultOf(err))
			assert.False(t, dst.SectionsAllocated(), "Чанк не должен меняться при ошибке")
		})
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	defer store.Close()

	pos := vec.Vec3{X: 4, Y: -1, Z: 0}
	src := newTestChunk(pos)
	require.NoError(t, store.Save(src))
	assert.FileExists(t, filepath.Join(dir, "x4y-1z0.chunk"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "Временный файл должен быть переименован")

	dst := chunk.NewPool(0).Get(pos)
	result, err := store.Load(pos, dst)
	require.NoError(t, err)
	assert.Equal(t, chunk.LoadSuccess, result)
	assertSameContent(t, src, dst)
}

func TestFileStore_LoadResults(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	defer store.Close()

	missing := vec.Vec3{X: 100}
	result, err := store.Load(missing, chunk.NewPool(0).Get(missing))
	assert.Equal(t, chunk.LoadIOError, result)
	assert.ErrorIs(t, err, ErrNotFound)

	garbage := vec.Vec3{Y: 1}
	require.NoError(t, os.WriteFile(store.Path(garbage), []byte("not a chunk file at all"), 0o644))
	result, _ = store.Load(garbage, chunk.NewPool(0).Get(garbage))
	assert.Equal(t, chunk.LoadFormatError, result)

	// Файл другого чанка под чужим именем
	saved := vec.Vec3{Z: 5}
	moved := vec.Vec3{Z: 6}
	require.NoError(t, store.Save(newTestChunk(saved)))
	require.NoError(t, os.Rename(store.Path(saved), store.Path(moved)))
	result, err = store.Load(moved, chunk.NewPool(0).Get(moved))
	assert.Equal(t, chunk.LoadValidationError, result)
	assert.ErrorIs(t, err, ErrPositionMismatch)
}

func TestBadgerStore_SaveLoad(t *testing.T) {
	store, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	pos := vec.Vec3{X: 10, Y: 20, Z: -30}
	src := newTestChunk(pos)
	require.NoError(t, store.Save(src))

	dst := chunk.NewPool(0).Get(pos)
	result, err := store.Load(pos, dst)
	require.NoError(t, err)
	assert.Equal(t, chunk.LoadSuccess, result)
	assertSameContent(t, src, dst)

	require.NoError(t, store.Delete(pos))
	result, err = store.Load(pos, chunk.NewPool(0).Get(pos))
	assert.Equal(t, chunk.LoadIOError, result)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(pos, []byte("VG_CHUNK broken")))
	result, _ = store.Load(pos, chunk.NewPool(0).Get(pos))
	assert.Equal(t, chunk.LoadFormatError, result)
}

func TestBadgerStore_Closed(t *testing.T) {
	store, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close(), "Повторное закрытие безопасно")

	assert.ErrorIs(t, store.Save(newTestChunk(vec.Zero)), ErrClosed)
	result, err := store.Load(vec.Zero, chunk.NewPool(0).Get(vec.Zero))
	assert.Equal(t, chunk.LoadIOError, result)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpen_SelectsBackend(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(Options{Backend: BackendFile, Dir: dir})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)
	require.NoError(t, s.Close())

	s, err = Open(Options{Backend: BackendBadger, Dir: dir})
	require.NoError(t, err)
	assert.IsType(t, &BadgerStore{}, s)
	require.NoError(t, s.Close())

	s, err = Open(Options{Backend: BackendNone})
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = Open(Options{Backend: "tape"})
	assert.Error(t, err)
}
