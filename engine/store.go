package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/driftdb/driftdb/cloud"
)

// ErrNotFound is returned by reads of absent keys.
var ErrNotFound = errors.New("engine: key not found")

// store is the base engine handle: WAL, memtable, and the loaded segment
// runs. All remote segment I/O goes through the cloud storage environment.
type store struct {
	mu       sync.RWMutex
	dir      string
	env      *cloud.Env
	logger   *slog.Logger
	syncWAL  bool
	wal      *wal
	mem      *memtable
	segments []*segment // oldest first
	nextSeq  uint64
	shipKey  []byte
}

// openStore recovers the engine state at dir: loads every segment known
// locally or in the bucket (fetching cloud-only segments through the
// environment), replays the WAL into a fresh memtable, and re-enqueues any
// local segment the bucket is missing.
func openStore(ctx context.Context, env *cloud.Env, dir string, syncWAL bool, logger *slog.Logger) (*store, error) {
	s := &store{
		dir:     dir,
		env:     env,
		logger:  logger,
		syncWAL: syncWAL,
		mem:     newMemtable(),
		shipKey: []byte(filepath.Base(dir)),
	}

	remote, err := env.ListSegments(ctx, segmentPrefix)
	if err != nil {
		return nil, err
	}
	remoteSet := make(map[string]struct{}, len(remote))
	for _, name := range remote {
		remoteSet[name] = struct{}{}
	}

	localSet := make(map[string]struct{})
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("could not scan engine directory: %w", err)
	}
	for _, entry := range dirEntries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, segmentPrefix) && !strings.Contains(name, ".tmp") {
			localSet[name] = struct{}{}
		}
	}

	names := make([]string, 0, len(remoteSet)+len(localSet))
	for name := range remoteSet {
		names = append(names, name)
	}
	for name := range localSet {
		if _, ok := remoteSet[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names) // name order is write order

	for _, name := range names {
		path, err := env.OpenSegment(ctx, dir, name)
		if err != nil {
			return nil, err
		}
		seg, err := loadSegment(name, path)
		if err != nil {
			return nil, err
		}
		s.segments = append(s.segments, seg)
		if seg.maxSeq >= s.nextSeq {
			s.nextSeq = seg.maxSeq + 1
		}

		// A local segment the bucket does not know about is an interrupted
		// mirror from a previous run; hand it back to the environment.
		_, isLocal := localSet[name]
		_, isRemote := remoteSet[name]
		if isLocal && !isRemote {
			if err := env.StoreSegment(ctx, name, filepath.Join(dir, name)); err != nil {
				return nil, err
			}
			logger.Info("re-mirrored local segment", slog.String("segment", name))
		}
	}

	s.wal, err = openWAL(filepath.Join(dir, walFilename), func(rec walRecord) {
		s.mem.applyOp(batchOp{kind: rec.op, cf: rec.cf, key: rec.key, value: rec.value}, rec.seq)
		if rec.seq >= s.nextSeq {
			s.nextSeq = rec.seq + 1
		}
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// apply commits a batch: one WAL frame block, optional log shipping, then
// the memtable, all under one sequence-number block.
func (s *store) apply(ctx context.Context, b *WriteBatch, wo WriteOptions) error {
	if b == nil || len(b.ops) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := make([]walRecord, len(b.ops))
	for i, op := range b.ops {
		recs[i] = walRecord{
			seq:   s.nextSeq + uint64(i),
			op:    op.kind,
			cf:    op.cf,
			key:   op.key,
			value: op.value,
		}
	}

	if !wo.DisableWAL {
		if err := s.wal.append(recs, wo.Sync || s.syncWAL); err != nil {
			return err
		}
		for _, rec := range recs {
			// Shipping is best-effort replication; a broker outage must not
			// fail local writes.
			if err := s.env.ShipWALRecord(ctx, s.shipKey, encodeWALRecord(rec)); err != nil {
				s.logger.Warn("could not ship WAL record", slog.Any("error", err))
				break
			}
		}
	}

	for i, op := range b.ops {
		s.mem.applyOp(op, recs[i].seq)
	}
	s.nextSeq += uint64(len(b.ops))
	return nil
}

// get resolves a key against the memtable and the segments, newest source
// first. A point entry wins only if no newer range tombstone covers the
// key.
func (s *store) get(cf string, key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tombSeq uint64

	entry, ok, memTomb := s.mem.lookup(cf, key)
	if memTomb > tombSeq {
		tombSeq = memTomb
	}
	if ok {
		return resolveEntry(entry, tombSeq)
	}
	for i := len(s.segments) - 1; i >= 0; i-- {
		entry, ok, segTomb := s.segments[i].lookup(cf, key)
		if segTomb > tombSeq {
			tombSeq = segTomb
		}
		if ok {
			return resolveEntry(entry, tombSeq)
		}
	}
	return nil, ErrNotFound
}

func resolveEntry(entry memEntry, tombSeq uint64) ([]byte, error) {
	if entry.tombstone || entry.seq < tombSeq {
		return nil, ErrNotFound
	}
	return append([]byte(nil), entry.value...), nil
}

// flush makes the memtable durable: the snapshot becomes a segment file,
// the environment applies the upload policy, and only then are the
// memtable and WAL reset. On any failure the in-memory state is left
// intact so flush can be retried.
func (s *store) flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mem.empty() {
		return nil
	}

	name := segmentName(s.nextSeq - 1)
	seg := buildSegment(name, s.mem)
	path := filepath.Join(s.dir, name)
	if err := seg.writeFile(path); err != nil {
		return err
	}
	if err := s.env.StoreSegment(ctx, name, path); err != nil {
		// Leave the WAL and memtable authoritative; drop the orphan file so
		// a retried flush starts clean.
		os.Remove(path)
		return err
	}

	s.segments = append(s.segments, seg)
	s.mem = newMemtable()
	if err := s.wal.reset(); err != nil {
		return err
	}
	s.logger.Debug("memtable flushed", slog.String("segment", name))
	return nil
}

// close releases the WAL file handle. Nil-safe; flush is the caller's
// responsibility and must happen first.
func (s *store) close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wal.close()
}
