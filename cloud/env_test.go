package cloud

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftdb/driftdb/objstore"
)

func writeLocalSegment(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func readObject(t *testing.T, store objstore.Store, key string) []byte {
	t.Helper()
	body, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	return data
}

func TestEnv_StoreSegment_UploadAndDeleteLocal(t *testing.T) {
	fs, store, _ := testFS(t, testFSOptions(t))
	env, err := fs.CreateEnv()
	require.NoError(t, err)
	defer env.Close()

	dir := t.TempDir()
	path := writeLocalSegment(t, dir, "seg-0001", []byte("segment data"))

	require.NoError(t, env.StoreSegment(context.Background(), "seg-0001", path))

	// The segment is durable remotely and the local copy is gone.
	assert.Equal(t, []byte("segment data"), readObject(t, store, "seg-0001"))
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestEnv_StoreSegment_UploadFailureKeepsLocalFile(t *testing.T) {
	fs, store, _ := testFS(t, testFSOptions(t))
	store.WithErr("Put", errors.New("upload refused"))
	env, err := fs.CreateEnv()
	require.NoError(t, err)
	defer env.Close()

	dir := t.TempDir()
	path := writeLocalSegment(t, dir, "seg-0001", []byte("segment data"))

	err = env.StoreSegment(context.Background(), "seg-0001", path)
	require.Error(t, err)

	// The local file is the only durable copy and must survive.
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
	assert.Zero(t, store.Len())
}

func TestEnv_StoreSegment_KeepLocalMirrorsInBackground(t *testing.T) {
	opts := testFSOptions(t)
	opts.SetKeepLocalFiles(true)
	fs, store, _ := testFS(t, opts)
	env, err := fs.CreateEnv()
	require.NoError(t, err)
	assert.True(t, env.KeepLocalFiles())

	dir := t.TempDir()
	path := writeLocalSegment(t, dir, "seg-0001", []byte("segment data"))

	require.NoError(t, env.StoreSegment(context.Background(), "seg-0001", path))

	// The local copy stays; Close drains the queue so by then the mirror is
	// in the bucket.
	require.NoError(t, env.Close())
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
	assert.Equal(t, []byte("segment data"), readObject(t, store, "seg-0001"))
}

func TestEnv_StoreSegment_AfterCloseFails(t *testing.T) {
	opts := testFSOptions(t)
	opts.SetKeepLocalFiles(true)
	fs, _, _ := testFS(t, opts)
	env, err := fs.CreateEnv()
	require.NoError(t, err)
	require.NoError(t, env.Close())

	dir := t.TempDir()
	path := writeLocalSegment(t, dir, "seg-0001", []byte("x"))
	assert.Error(t, env.StoreSegment(context.Background(), "seg-0001", path))
}

func TestEnv_OpenSegment_LocalFileWins(t *testing.T) {
	fs, _, _ := testFS(t, testFSOptions(t))
	env, err := fs.CreateEnv()
	require.NoError(t, err)
	defer env.Close()

	dir := t.TempDir()
	path := writeLocalSegment(t, dir, "seg-0001", []byte("local"))

	got, err := env.OpenSegment(context.Background(), dir, "seg-0001")
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestEnv_OpenSegment_FetchesFromBucket(t *testing.T) {
	fs, store, _ := testFS(t, testFSOptions(t))
	require.NoError(t, store.Put(context.Background(), "seg-0001",
		bytesReader([]byte("remote"))))
	env, err := fs.CreateEnv()
	require.NoError(t, err)
	defer env.Close()

	dir := t.TempDir()
	path, err := env.OpenSegment(context.Background(), dir, "seg-0001")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("remote"), data)
	assert.Equal(t, filepath.Join(dir, "seg-0001"), path)
}

func TestEnv_OpenSegment_FallsBackToSourceBucket(t *testing.T) {
	opts := testFSOptions(t)
	src, dst := objstore.NewMemory(), objstore.NewMemory()
	require.NoError(t, src.Put(context.Background(), "seg-0001",
		bytesReader([]byte("from source"))))
	fs, err := NewFSWithStores(opts, src, dst, nil, nil)
	require.NoError(t, err)
	env, err := fs.CreateEnv()
	require.NoError(t, err)
	defer env.Close()

	dir := t.TempDir()
	path, err := env.OpenSegment(context.Background(), dir, "seg-0001")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("from source"), data)
}

func TestEnv_OpenSegment_FetchLandsInCache(t *testing.T) {
	cacheDir := t.TempDir()
	opts := testFSOptions(t)
	opts.SetPersistentCachePath(cacheDir)

	fs, store, _ := testFS(t, opts)
	require.NoError(t, store.Put(context.Background(), "seg-0001",
		bytesReader([]byte("remote"))))
	env, err := fs.CreateEnv()
	require.NoError(t, err)
	defer env.Close()

	dir := t.TempDir()
	path, err := env.OpenSegment(context.Background(), dir, "seg-0001")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cacheDir, "seg-0001"), path)

	// A second open is served from the cache even if the bucket goes away.
	store.WithErr("Get", errors.New("bucket unreachable"))
	path2, err := env.OpenSegment(context.Background(), dir, "seg-0001")
	require.NoError(t, err)
	assert.Equal(t, path, path2)
}

func TestEnv_ListSegments_MergesBuckets(t *testing.T) {
	opts := testFSOptions(t)
	src, dst := objstore.NewMemory(), objstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, src.Put(ctx, "seg-0001", bytesReader([]byte("a"))))
	require.NoError(t, dst.Put(ctx, "seg-0001", bytesReader([]byte("a"))))
	require.NoError(t, dst.Put(ctx, "seg-0002", bytesReader([]byte("b"))))
	require.NoError(t, dst.Put(ctx, "other", bytesReader([]byte("c"))))

	fs, err := NewFSWithStores(opts, src, dst, nil, nil)
	require.NoError(t, err)
	env, err := fs.CreateEnv()
	require.NoError(t, err)
	defer env.Close()

	names, err := env.ListSegments(ctx, "seg-")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"seg-0001", "seg-0002"}, names)
}

func TestEnv_ShipWALRecord(t *testing.T) {
	fs, _, shipper := testFS(t, testFSOptions(t))
	env, err := fs.CreateEnv()
	require.NoError(t, err)
	defer env.Close()

	require.NoError(t, env.ShipWALRecord(context.Background(),
		[]byte("db1"), []byte("record")))
	records := shipper.Records()
	require.Len(t, records, 1)
	assert.Equal(t, []byte("db1"), records[0].Key)
	assert.Equal(t, []byte("record"), records[0].Value)
}

func TestEnv_ShipWALRecord_NoShipperConfigured(t *testing.T) {
	fs, err := NewFSWithStores(testFSOptions(t), objstore.NewMemory(), nil, nil, nil)
	require.NoError(t, err)
	env, err := fs.CreateEnv()
	require.NoError(t, err)
	defer env.Close()

	assert.NoError(t, env.ShipWALRecord(context.Background(), nil, []byte("x")))
}
