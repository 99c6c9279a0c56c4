// Package engine implements the cloud-backed storage engine instance: a
// local WAL-plus-memtable-plus-segment store whose durable state is
// mirrored through a cloud.FS handle.
//
// An instance moves through Unopened → Open → Closed and cannot be
// reopened. Close performs the mandatory ordered shutdown: flush, then the
// base store, then the cloud resources.
package engine

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/driftdb/driftdb"
	"github.com/driftdb/driftdb/cloud"
)

// DefaultColumnFamilyName is the column family every instance carries even
// when the caller names none.
const DefaultColumnFamilyName = "default"

// Options configures an engine instance at open time.
type Options struct {
	// CreateIfMissing creates the local directory when absent. When false,
	// opening a missing directory fails.
	CreateIfMissing bool

	// SyncWAL fsyncs the WAL on every committed batch. Individual writes
	// can still request a sync through WriteOptions.
	SyncWAL bool
}

// DefaultOptions returns the options most hosts want: create the directory,
// group-commit the WAL.
func DefaultOptions() Options {
	return Options{CreateIfMissing: true}
}

// WriteOptions configures one write call.
type WriteOptions struct {
	// Sync forces a WAL fsync before the write returns.
	Sync bool

	// DisableWAL skips write-ahead logging (and log shipping) for this
	// write. Unflushed data is lost on crash.
	DisableWAL bool
}

// ColumnFamilyDescriptor names a column family to open.
type ColumnFamilyDescriptor struct {
	Name string
}

// ColumnFamilyHandle identifies an opened column family.
type ColumnFamilyHandle struct {
	name string
}

// Name returns the column family name.
func (h *ColumnFamilyHandle) Name() string { return h.name }

// familyName maps a nil handle to the default column family.
func (h *ColumnFamilyHandle) familyName() string {
	if h == nil {
		return DefaultColumnFamilyName
	}
	return h.name
}

const (
	stateOpen int32 = iota + 1
	stateClosed
)

// DB is an opened engine instance. It retains the cloud.FS it was opened
// against, so the handle outlives the instance, and owns one storage
// environment derived from it.
//
// A DB is safe for concurrent readers and writers. Close must be called
// exactly once and must not race with other operations; callers drain
// in-flight calls first.
type DB struct {
	state  atomic.Int32
	path   string
	fs     *cloud.FS
	env    *cloud.Env
	base   *store
	txn    *txnStore
	cfs    map[string]*ColumnFamilyHandle
	logger *slog.Logger
}

// Open opens (creating as needed) the engine at path, with only the default
// column family.
func Open(ctx context.Context, opts Options, fs *cloud.FS, path string) (*DB, error) {
	db, _, err := OpenColumnFamilies(ctx, opts, fs, path, nil)
	return db, err
}

// OpenColumnFamilies opens the engine at path with the given column
// families. The default column family is always included, named or not. The
// returned handles parallel cfds, with the implicit default appended when
// it was not named.
//
// Open failures release every partially-built resource; nothing leaks.
func OpenColumnFamilies(ctx context.Context, opts Options, fs *cloud.FS, path string, cfds []ColumnFamilyDescriptor) (*DB, []*ColumnFamilyHandle, error) {
	if fs == nil {
		return nil, nil, driftdb.NewError(driftdb.ErrEngineInitializationFailed,
			"nil cloud fs")
	}

	if opts.CreateIfMissing {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, nil, driftdb.NewError(driftdb.ErrDirectoryCreationFailed,
				"could not create engine directory").WithCause(err)
		}
	} else if _, err := os.Stat(path); err != nil {
		return nil, nil, driftdb.NewError(driftdb.ErrDirectoryCreationFailed,
			"engine directory does not exist").WithCause(err)
	}

	// Always open the default column family.
	cfds = append([]ColumnFamilyDescriptor(nil), cfds...)
	hasDefault := false
	for _, cfd := range cfds {
		if cfd.Name == DefaultColumnFamilyName {
			hasDefault = true
			break
		}
	}
	if !hasDefault {
		cfds = append(cfds, ColumnFamilyDescriptor{Name: DefaultColumnFamilyName})
	}

	env, err := fs.CreateEnv()
	if err != nil {
		return nil, nil, err
	}

	logger := fs.Logger().With(slog.String("component", "engine"), slog.String("path", path))

	handles := make([]*ColumnFamilyHandle, 0, len(cfds))
	cfs := make(map[string]*ColumnFamilyHandle, len(cfds))
	for _, cfd := range cfds {
		handle := newColumnFamilyHandle(cfd.Name, cfs)
		if handle == nil {
			env.Close()
			return nil, nil, driftdb.NewErrorf(driftdb.ErrInvalidColumnFamilyHandle,
				"could not create handle for column family %q", cfd.Name)
		}
		handles = append(handles, handle)
		cfs[cfd.Name] = handle
	}

	base, err := openStore(ctx, env, path, opts.SyncWAL, logger)
	if err != nil {
		env.Close()
		return nil, nil, driftdb.NewError(driftdb.ErrEngineInitializationFailed,
			"could not initialize engine").WithCause(err)
	}

	txn := newTxnStore(base)
	if txn == nil || base == nil {
		base.close()
		env.Close()
		return nil, nil, driftdb.NewError(driftdb.ErrEngineInitializationFailed,
			"could not resolve engine handles")
	}

	db := &DB{
		path:   path,
		fs:     fs,
		env:    env,
		base:   base,
		txn:    txn,
		cfs:    cfs,
		logger: logger,
	}
	db.state.Store(stateOpen)
	logger.Info("engine opened", slog.Int("column_families", len(handles)))
	return db, handles, nil
}

// newColumnFamilyHandle validates the name; a nil return fails the open.
func newColumnFamilyHandle(name string, existing map[string]*ColumnFamilyHandle) *ColumnFamilyHandle {
	if name == "" {
		return nil
	}
	if _, dup := existing[name]; dup {
		return nil
	}
	return &ColumnFamilyHandle{name: name}
}

// Path returns the local directory of the instance.
func (db *DB) Path() string { return db.path }

// FS returns the cloud handle the instance was opened against.
func (db *DB) FS() *cloud.FS { return db.fs }

// CF returns the handle for an opened column family, or nil.
func (db *DB) CF(name string) *ColumnFamilyHandle {
	return db.cfs[name]
}

// DefaultCF returns the default column family handle.
func (db *DB) DefaultCF() *ColumnFamilyHandle {
	return db.cfs[DefaultColumnFamilyName]
}

func (db *DB) checkOpen() error {
	if db.state.Load() != stateOpen {
		return driftdb.NewError(driftdb.ErrAlreadyClosed, "engine is closed")
	}
	return nil
}

// Put writes a key to the default column family.
func (db *DB) Put(ctx context.Context, key, value []byte) error {
	return db.PutCF(ctx, nil, key, value)
}

// PutCF writes a key to cf.
func (db *DB) PutCF(ctx context.Context, cf *ColumnFamilyHandle, key, value []byte) error {
	b := NewWriteBatch()
	b.PutCF(cf, key, value)
	return db.Write(ctx, b)
}

// Get reads a key from the default column family. Absent keys return
// ErrNotFound.
func (db *DB) Get(ctx context.Context, key []byte) ([]byte, error) {
	return db.GetCF(ctx, nil, key)
}

// GetCF reads a key from cf.
func (db *DB) GetCF(ctx context.Context, cf *ColumnFamilyHandle, key []byte) ([]byte, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.base.get(cf.familyName(), key)
}

// Delete removes a key from the default column family.
func (db *DB) Delete(ctx context.Context, key []byte) error {
	return db.DeleteCF(ctx, nil, key)
}

// DeleteCF removes a key from cf.
func (db *DB) DeleteCF(ctx context.Context, cf *ColumnFamilyHandle, key []byte) error {
	b := NewWriteBatch()
	b.DeleteCF(cf, key)
	return db.Write(ctx, b)
}

// Write commits a batch with default write options.
func (db *DB) Write(ctx context.Context, b *WriteBatch) error {
	return db.WriteOpt(ctx, b, WriteOptions{})
}

// WriteOpt commits a batch. The batch goes through the transaction store's
// write entry point, not the base store: a transaction-enabled engine's
// global write path differs from its plain counterpart.
func (db *DB) WriteOpt(ctx context.Context, b *WriteBatch, wo WriteOptions) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	return db.txn.write(ctx, b, wo)
}

// WriteWithoutWAL commits a batch without write-ahead logging.
func (db *DB) WriteWithoutWAL(ctx context.Context, b *WriteBatch) error {
	return db.WriteOpt(ctx, b, WriteOptions{DisableWAL: true})
}

// DeleteRangeCF removes the keys in ["from", "to") from cf using default
// write options.
func (db *DB) DeleteRangeCF(ctx context.Context, cf *ColumnFamilyHandle, from, to []byte) error {
	return db.DeleteRangeCFOpt(ctx, cf, from, to, WriteOptions{})
}

// DeleteRangeCFOpt removes the keys in ["from", "to") from cf. Range
// deletes go through the base store's write path.
func (db *DB) DeleteRangeCFOpt(ctx context.Context, cf *ColumnFamilyHandle, from, to []byte, wo WriteOptions) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	b := NewWriteBatch()
	b.DeleteRangeCF(cf, from, to)
	return db.base.apply(ctx, b, wo)
}

// Flush makes all buffered writes durable: the memtable becomes a segment
// and the storage environment applies the upload policy.
func (db *DB) Flush(ctx context.Context) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	if err := db.base.flush(ctx); err != nil {
		return driftdb.NewError(driftdb.ErrFlushFailed, "flush failed").WithCause(err)
	}
	return nil
}

// Close shuts the instance down in the mandatory order: flush all buffered
// writes, close the base store, then close the cloud resources.
//
// A flush failure halts the sequence and leaves the instance open; Close
// may be retried, though the durability of writes buffered before the
// failed flush is best-effort until a retry succeeds. A second successful
// Close returns ErrAlreadyClosed and never re-releases resources.
func (db *DB) Close() error {
	if !db.state.CompareAndSwap(stateOpen, stateClosed) {
		return driftdb.NewError(driftdb.ErrAlreadyClosed, "engine already closed")
	}

	if err := db.base.flush(context.Background()); err != nil {
		// Halt the sequence; the caller may retry Close.
		db.state.Store(stateOpen)
		return driftdb.NewError(driftdb.ErrFlushFailed,
			"flush failed, engine left open").WithCause(err)
	}

	baseErr := db.base.close()
	envErr := db.env.Close()
	if baseErr != nil {
		return driftdb.NewError(driftdb.ErrCloseFailed,
			"could not close base engine").WithCause(baseErr)
	}
	if envErr != nil {
		return driftdb.NewError(driftdb.ErrCloseFailed,
			"could not close cloud resources").WithCause(envErr)
	}
	db.logger.Info("engine closed")
	return nil
}
