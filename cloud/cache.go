package cloud

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// diskCache is the persistent cache: a bounded local directory holding
// copies of remotely-stored segments for faster repeated reads. Entries are
// whole files; when the size budget is exceeded the oldest entries are
// evicted first.
type diskCache struct {
	mu     sync.Mutex
	dir    string
	budget int64 // bytes; 0 means unbounded
}

func newDiskCache(dir string, sizeGB uint64) (*diskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create persistent cache directory: %w", err)
	}
	return &diskCache{
		dir:    dir,
		budget: int64(sizeGB) << 30,
	}, nil
}

// get returns the path of a cached entry, if present. The access bumps the
// entry's modification time so eviction stays roughly least-recently-used.
func (c *diskCache) get(name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	path := filepath.Join(c.dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	now := time.Now()
	_ = os.Chtimes(path, now, now)
	return path, true
}

// put stores the contents of r under name and returns the entry path.
func (c *diskCache) put(name string, r io.Reader) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := filepath.Join(c.dir, name)
	tmp := path + ".tmp-" + uuid.NewString()
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("could not create cache entry: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("could not write cache entry: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", err
	}
	c.evictLocked(name)
	return path, nil
}

// putFile copies an existing local file into the cache.
func (c *diskCache) putFile(name, src string) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return c.put(name, f)
}

// evictLocked removes the oldest entries until the cache fits its budget.
// The entry named keep is never evicted: it is the one the caller is about
// to hand out.
func (c *diskCache) evictLocked(keep string) {
	if c.budget <= 0 {
		return
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return
	}

	type cacheEntry struct {
		name string
		size int64
		mod  int64
	}
	var total int64
	files := make([]cacheEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		total += info.Size()
		files = append(files, cacheEntry{
			name: entry.Name(),
			size: info.Size(),
			mod:  info.ModTime().UnixNano(),
		})
	}
	if total <= c.budget {
		return
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod < files[j].mod })
	for _, f := range files {
		if total <= c.budget {
			return
		}
		if f.name == keep {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, f.name)); err == nil {
			total -= f.size
		}
	}
}
