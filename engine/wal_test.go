package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func walPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), walFilename)
}

func collectWAL(t *testing.T, path string) []walRecord {
	t.Helper()
	var recs []walRecord
	w, err := openWAL(path, func(rec walRecord) { recs = append(recs, rec) })
	require.NoError(t, err)
	require.NoError(t, w.close())
	return recs
}

func TestWAL_AppendAndReplay(t *testing.T) {
	path := walPath(t)
	w, err := openWAL(path, func(walRecord) { t.Fatal("empty WAL must not replay") })
	require.NoError(t, err)

	recs := []walRecord{
		{seq: 1, op: opPut, cf: "default", key: []byte("a"), value: []byte("1")},
		{seq: 2, op: opDelete, cf: "default", key: []byte("a")},
		{seq: 3, op: opDeleteRange, cf: "metrics", key: []byte("a"), value: []byte("z")},
	}
	require.NoError(t, w.append(recs, true))
	require.NoError(t, w.close())

	replayed := collectWAL(t, path)
	require.Len(t, replayed, 3)
	assert.Equal(t, uint64(1), replayed[0].seq)
	assert.Equal(t, opPut, replayed[0].op)
	assert.Equal(t, "default", replayed[0].cf)
	assert.Equal(t, []byte("a"), replayed[0].key)
	assert.Equal(t, []byte("1"), replayed[0].value)
	assert.Equal(t, opDelete, replayed[1].op)
	assert.Equal(t, opDeleteRange, replayed[2].op)
	assert.Equal(t, "metrics", replayed[2].cf)
}

func TestWAL_TornTailIsDropped(t *testing.T) {
	path := walPath(t)
	w, err := openWAL(path, nil)
	require.NoError(t, err)
	require.NoError(t, w.append([]walRecord{
		{seq: 1, op: opPut, cf: "default", key: []byte("a"), value: []byte("1")},
	}, true))
	require.NoError(t, w.close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	intact := info.Size()

	// A torn frame: header promising more payload than is on disk.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0xff, 0x00, 0x00, 0x00, 1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	replayed := collectWAL(t, path)
	require.Len(t, replayed, 1)
	assert.Equal(t, []byte("a"), replayed[0].key)

	// Open truncated the tail back to the last intact frame.
	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, intact, info.Size())
}

func TestWAL_CorruptFrameStopsReplay(t *testing.T) {
	path := walPath(t)
	w, err := openWAL(path, nil)
	require.NoError(t, err)
	require.NoError(t, w.append([]walRecord{
		{seq: 1, op: opPut, cf: "default", key: []byte("a"), value: []byte("1")},
		{seq: 2, op: opPut, cf: "default", key: []byte("b"), value: []byte("2")},
	}, true))
	require.NoError(t, w.close())

	// Flip a byte in the second frame's payload.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	replayed := collectWAL(t, path)
	require.Len(t, replayed, 1)
	assert.Equal(t, []byte("a"), replayed[0].key)
}

func TestWAL_AppendAfterReopen(t *testing.T) {
	path := walPath(t)
	w, err := openWAL(path, nil)
	require.NoError(t, err)
	require.NoError(t, w.append([]walRecord{
		{seq: 1, op: opPut, cf: "default", key: []byte("a"), value: []byte("1")},
	}, false))
	require.NoError(t, w.close())

	w, err = openWAL(path, func(walRecord) {})
	require.NoError(t, err)
	require.NoError(t, w.append([]walRecord{
		{seq: 2, op: opPut, cf: "default", key: []byte("b"), value: []byte("2")},
	}, true))
	require.NoError(t, w.close())

	replayed := collectWAL(t, path)
	require.Len(t, replayed, 2)
	assert.Equal(t, []byte("b"), replayed[1].key)
}

func TestWAL_Reset(t *testing.T) {
	path := walPath(t)
	w, err := openWAL(path, nil)
	require.NoError(t, err)
	require.NoError(t, w.append([]walRecord{
		{seq: 1, op: opPut, cf: "default", key: []byte("a"), value: []byte("1")},
	}, true))
	require.NoError(t, w.reset())
	require.NoError(t, w.append([]walRecord{
		{seq: 2, op: opPut, cf: "default", key: []byte("b"), value: []byte("2")},
	}, true))
	require.NoError(t, w.close())

	replayed := collectWAL(t, path)
	require.Len(t, replayed, 1)
	assert.Equal(t, uint64(2), replayed[0].seq)
}

func TestWAL_NilSafeClose(t *testing.T) {
	var w *wal
	assert.NoError(t, w.close())
}
