package cloud

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/driftdb/driftdb/objstore"
)

// uploadRetryDelay is the pause before a failed asynchronous upload is
// retried.
const uploadRetryDelay = time.Second

type uploadJob struct {
	name string
	path string
}

// Env is the storage environment an engine instance performs all segment
// I/O through. It applies the keep-local-files policy: with the policy off,
// stored segments are uploaded synchronously and the local file removed
// immediately after the upload; with it on, segments stay local and a
// background loop mirrors them to the bucket.
//
// An Env is derived from an FS via CreateEnv and owned by a single engine
// instance, which closes it as the last step of its shutdown sequence.
type Env struct {
	fs        *FS
	keepLocal bool
	cache     *diskCache
	logger    *slog.Logger

	queue chan uploadJob
	done  chan struct{}
	wg    sync.WaitGroup

	closeOnce sync.Once
}

func newEnv(fs *FS) (*Env, error) {
	opts := fs.Options()
	env := &Env{
		fs:        fs,
		keepLocal: opts.KeepLocalFiles(),
		logger:    fs.Logger().With(slog.String("component", "cloud-env")),
		done:      make(chan struct{}),
	}

	if path := opts.PersistentCachePath(); path != "" {
		cache, err := newDiskCache(path, opts.PersistentCacheSizeGB())
		if err != nil {
			return nil, err
		}
		env.cache = cache
	}

	if env.keepLocal {
		env.queue = make(chan uploadJob, 128)
		env.wg.Add(1)
		go env.uploadLoop()
	}
	return env, nil
}

// KeepLocalFiles reports the policy the environment was derived under.
func (e *Env) KeepLocalFiles() bool { return e.keepLocal }

// StoreSegment makes a freshly written local segment durable per the
// keep-local-files policy. With the policy off the segment is uploaded
// synchronously and the local file deleted (moved into the persistent cache
// when one is configured); an upload failure leaves the local file in place
// and is returned to the caller. With the policy on the local file stays and
// the upload happens in the background.
func (e *Env) StoreSegment(ctx context.Context, name, path string) error {
	if e.keepLocal {
		select {
		case e.queue <- uploadJob{name: name, path: path}:
		case <-e.done:
			return fmt.Errorf("storage environment is closed")
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}

	if err := e.upload(ctx, name, path); err != nil {
		return err
	}
	if e.cache != nil {
		if _, err := e.cache.putFile(name, path); err != nil {
			// Cache population is best-effort; the segment is already
			// durable in the bucket.
			e.logger.Warn("could not cache segment",
				slog.String("segment", name), slog.Any("error", err))
		}
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("could not remove local segment %q: %w", name, err)
	}
	return nil
}

// OpenSegment resolves a segment name to a local file path, fetching the
// segment from the bucket when it is not on disk. dir is the engine's local
// directory; fetched segments land in the persistent cache when one is
// configured (or in dir under the keep-local policy) so repeated reads stay
// local.
func (e *Env) OpenSegment(ctx context.Context, dir, name string) (string, error) {
	local := filepath.Join(dir, name)
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}
	if e.cache != nil {
		if path, ok := e.cache.get(name); ok {
			return path, nil
		}
	}

	body, err := e.fetch(ctx, name)
	if err != nil {
		return "", err
	}
	defer body.Close()

	if e.cache != nil {
		return e.cache.put(name, body)
	}

	// No cache configured: materialize next to the engine's local state.
	tmp := local + ".fetch"
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, local); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return local, nil
}

// ListSegments returns the names of all segments present in the bucket(s),
// newest-last by name order.
func (e *Env) ListSegments(ctx context.Context, prefix string) ([]string, error) {
	seen := make(map[string]struct{})
	var names []string
	for _, store := range e.stores() {
		infos, err := store.List(ctx, prefix)
		if err != nil {
			return nil, fmt.Errorf("could not list segments: %w", err)
		}
		for _, info := range infos {
			if _, ok := seen[info.Key]; !ok {
				seen[info.Key] = struct{}{}
				names = append(names, info.Key)
			}
		}
	}
	return names, nil
}

// ShipWALRecord forwards one encoded WAL record to the log shipper.
// A handle without log shipping makes this a no-op.
func (e *Env) ShipWALRecord(ctx context.Context, key, value []byte) error {
	if e.fs.shipper == nil {
		return nil
	}
	return e.fs.shipper.Ship(ctx, key, value)
}

// Close stops the background upload loop after attempting the queued
// uploads once more. Local files remain the durable copy for whatever could
// not be mirrored; reopening the engine re-enqueues them.
func (e *Env) Close() error {
	e.closeOnce.Do(func() {
		close(e.done)
		e.wg.Wait()
	})
	return nil
}

func (e *Env) upload(ctx context.Context, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("could not open local segment %q: %w", name, err)
	}
	defer f.Close()
	if err := e.fs.dst.Put(ctx, name, f); err != nil {
		return fmt.Errorf("could not upload segment %q: %w", name, err)
	}
	return nil
}

func (e *Env) fetch(ctx context.Context, name string) (io.ReadCloser, error) {
	// New writes land in the destination bucket; fall back to the source
	// bucket when the handles differ.
	body, err := e.fs.dst.Get(ctx, name)
	if err == nil {
		return body, nil
	}
	if e.fs.src != e.fs.dst && e.fs.dst.IsNotExist(err) {
		return e.fs.src.Get(ctx, name)
	}
	return nil, err
}

func (e *Env) stores() []objstore.Store {
	if e.fs.src == e.fs.dst {
		return []objstore.Store{e.fs.dst}
	}
	return []objstore.Store{e.fs.dst, e.fs.src}
}

func (e *Env) uploadLoop() {
	defer e.wg.Done()
	ctx := context.Background()
	for {
		select {
		case job := <-e.queue:
			e.uploadWithRetry(ctx, job)
		case <-e.done:
			// Final pass over whatever is still queued.
			for {
				select {
				case job := <-e.queue:
					if err := e.upload(ctx, job.name, job.path); err != nil {
						e.logger.Warn("segment left unmirrored at close",
							slog.String("segment", job.name), slog.Any("error", err))
					}
				default:
					return
				}
			}
		}
	}
}

func (e *Env) uploadWithRetry(ctx context.Context, job uploadJob) {
	for {
		err := e.upload(ctx, job.name, job.path)
		if err == nil {
			e.logger.Debug("segment mirrored", slog.String("segment", job.name))
			return
		}
		e.logger.Warn("segment upload failed, retrying",
			slog.String("segment", job.name), slog.Any("error", err))
		select {
		case <-time.After(uploadRetryDelay):
		case <-e.done:
			return
		}
	}
}
