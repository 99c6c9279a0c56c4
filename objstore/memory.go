package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-memory Store for tests. It keeps object state, supports
// per-operation error injection, and is safe for concurrent use.
//
// Error injection:
//
//	store := objstore.NewMemory().WithErr("Put", errors.New("upload refused"))
type Memory struct {
	mu      sync.Mutex
	objects map[string]memoryObject
	errs    map[string]error
}

type memoryObject struct {
	data     []byte
	modified time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		objects: make(map[string]memoryObject),
		errs:    make(map[string]error),
	}
}

// WithErr configures op ("Put", "Get", "Delete", "List", "Exists") to fail
// with err. Passing a nil err clears the injection.
func (m *Memory) WithErr(op string, err error) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, op)
	} else {
		m.errs[op] = err
	}
	return m
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// Keys returns the sorted keys of all stored objects.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Put stores an object.
func (m *Memory) Put(ctx context.Context, key string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["Put"]; err != nil {
		return err
	}
	m.objects[key] = memoryObject{data: data, modified: time.Now()}
	return nil
}

// Get returns a reader over the stored object.
func (m *Memory) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["Get"]; err != nil {
		return nil, err
	}
	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("get %q: %w", key, ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Delete removes the object. Missing objects are not an error.
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["Delete"]; err != nil {
		return err
	}
	delete(m.objects, key)
	return nil
}

// List returns objects whose keys start with prefix, sorted by key.
func (m *Memory) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["List"]; err != nil {
		return nil, err
	}
	var infos []ObjectInfo
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, ObjectInfo{
				Key:          key,
				Size:         int64(len(obj.data)),
				LastModified: obj.modified,
			})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// Exists reports whether the object is present.
func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["Exists"]; err != nil {
		return false, err
	}
	_, ok := m.objects[key]
	return ok, nil
}

// IsNotExist reports whether err means the object does not exist.
func (m *Memory) IsNotExist(err error) bool {
	return errors.Is(err, ErrNotExist)
}
