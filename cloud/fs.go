package cloud

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/driftdb/driftdb"
	"github.com/driftdb/driftdb/logship"
	"github.com/driftdb/driftdb/objstore"
)

// FS is the opened cloud handle: the composed resource every engine
// instance attaches to for remote I/O. It is built once from an FSOptions
// cell, retains that cell for later queries, and must outlive every engine
// instance built from it.
//
// An FS is safe to share read-only across goroutines. Close must be called
// exactly once, after all engine instances using the handle are closed.
type FS struct {
	opts    *FSOptions
	src     objstore.Store
	dst     objstore.Store
	shipper logship.Shipper
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewFS builds the cloud handle from the configuration: validates it,
// constructs the object-store client(s) for the source and destination
// buckets, and constructs the log shipper when log shipping is configured.
func NewFS(ctx context.Context, opts *FSOptions) (*FS, error) {
	if opts == nil {
		return nil, driftdb.NewError(driftdb.ErrEngineConstructionFailed,
			"nil options")
	}
	if err := opts.Validate(); err != nil {
		return nil, driftdb.NewError(driftdb.ErrEngineConstructionFailed,
			"invalid configuration").WithCause(err)
	}

	logger := newLogger(opts.LogLevel())

	srcBucket := opts.SrcBucket()
	src, err := objstore.NewS3(ctx,
		srcBucket.BucketName(), srcBucket.Region(), srcBucket.ObjectPath())
	if err != nil {
		return nil, driftdb.NewError(driftdb.ErrEngineConstructionFailed,
			"could not create source bucket client").WithCause(err)
	}

	dst := objstore.Store(src)
	if dstBucket := opts.DstBucket(); dstBucket != nil {
		s3dst, err := objstore.NewS3(ctx,
			dstBucket.BucketName(), dstBucket.Region(), dstBucket.ObjectPath())
		if err != nil {
			return nil, driftdb.NewError(driftdb.ErrEngineConstructionFailed,
				"could not create destination bucket client").WithCause(err)
		}
		dst = s3dst
	}

	var shipper logship.Shipper
	if kafkaOpts := opts.KafkaLog(); kafkaOpts != nil {
		cfg := logship.KafkaConfig{
			Brokers:           kafkaOpts.Brokers(),
			APIVersionRequest: kafkaOpts.APIVersionRequest(),
		}
		if len(kafkaOpts.Debug()) > 0 {
			cfg.Logger = logger.With(slog.String("component", "logship"),
				slog.String("debug", kafkaOpts.DebugString()))
		}
		shipper, err = logship.NewKafka(cfg)
		if err != nil {
			return nil, driftdb.NewError(driftdb.ErrEngineConstructionFailed,
				"could not create log shipper").WithCause(err)
		}
	}

	logger.Info("cloud fs opened",
		slog.String("src_bucket", srcBucket.BucketName()),
		slog.Bool("keep_local_files", opts.KeepLocalFiles()),
		slog.Bool("log_shipping", shipper != nil))

	return &FS{opts: opts, src: src, dst: dst, shipper: shipper, logger: logger}, nil
}

// NewFSWithStores builds the cloud handle with injected collaborators. It
// is used by tests and by hosts that bring their own object-store or
// shipper implementation. dst and shipper may be nil; logger defaults to a
// logger at the configured level.
func NewFSWithStores(opts *FSOptions, src, dst objstore.Store, shipper logship.Shipper, logger *slog.Logger) (*FS, error) {
	if opts == nil {
		return nil, driftdb.NewError(driftdb.ErrEngineConstructionFailed,
			"nil options")
	}
	if err := opts.Validate(); err != nil {
		return nil, driftdb.NewError(driftdb.ErrEngineConstructionFailed,
			"invalid configuration").WithCause(err)
	}
	if src == nil {
		return nil, driftdb.NewError(driftdb.ErrEngineConstructionFailed,
			"nil source store")
	}
	if dst == nil {
		dst = src
	}
	if logger == nil {
		logger = newLogger(opts.LogLevel())
	}
	return &FS{opts: opts, src: src, dst: dst, shipper: shipper, logger: logger}, nil
}

func newLogger(level driftdb.LogLevel) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level.SlogLevel(),
	}))
}

// Options returns the configuration the handle was built from. Engine
// instances read cache parameters through it at open time.
func (fs *FS) Options() *FSOptions {
	return fs.opts
}

// Logger returns the handle's logger.
func (fs *FS) Logger() *slog.Logger {
	return fs.logger
}

// Shipper returns the configured log shipper, or nil.
func (fs *FS) Shipper() logship.Shipper {
	return fs.shipper
}

// CreateEnv derives a storage environment bound to this handle. Each engine
// instance owns one environment; the environment applies the
// keep-local-files policy and the persistent cache to all segment I/O.
func (fs *FS) CreateEnv() (*Env, error) {
	fs.mu.Lock()
	closed := fs.closed
	fs.mu.Unlock()
	if closed {
		return nil, driftdb.NewError(driftdb.ErrEnvironmentConstructionFailed,
			"cloud fs is closed")
	}
	env, err := newEnv(fs)
	if err != nil {
		return nil, driftdb.NewError(driftdb.ErrEnvironmentConstructionFailed,
			"could not create storage environment").WithCause(err)
	}
	return env, nil
}

// Close releases the handle: flushes and closes the log shipper. It must be
// called exactly once, after every engine instance built from the handle
// has been closed; a second call returns ErrAlreadyClosed.
func (fs *FS) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.closed {
		return driftdb.NewError(driftdb.ErrAlreadyClosed, "cloud fs already closed")
	}
	fs.closed = true

	if fs.shipper != nil {
		if err := fs.shipper.Flush(context.Background()); err != nil {
			return driftdb.NewError(driftdb.ErrCloseFailed,
				"could not flush log shipper").WithCause(err)
		}
		if err := fs.shipper.Close(); err != nil {
			return driftdb.NewError(driftdb.ErrCloseFailed,
				"could not close log shipper").WithCause(err)
		}
	}
	fs.logger.Info("cloud fs closed")
	return nil
}
