// Package kvstore provides the small persisted key-value blob that holds
// session metadata. Every Set is checked against a byte quota covering all
// keys; values that do not fit are rejected with types.ErrQuotaExceeded and
// the previous value is kept.
package kvstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mesh-intelligence/photofactory/internal/atomicfile"
	"github.com/mesh-intelligence/photofactory/pkg/types"
)

// DefaultQuota is the byte budget used when none is configured.
const DefaultQuota = 5 << 20

// ErrCorrupt reports a blob file that is not a JSON object. Get returns it;
// Set and Remove overwrite the corrupt file.
var ErrCorrupt = errors.New("blob is corrupt")

// FileName is the name of the blob file inside the data directory.
const FileName = "session.json"

var (
	_ types.KV = (*File)(nil)
	_ types.KV = (*Memory)(nil)
)

// File keeps every key in one JSON object on disk. Writes replace the file
// atomically.
type File struct {
	mu    sync.Mutex
	path  string
	quota int64
}

// NewFile returns a blob stored at path with the given quota in bytes.
// A quota of zero or less selects DefaultQuota.
func NewFile(path string, quota int64) *File {
	if quota <= 0 {
		quota = DefaultQuota
	}
	return &File{path: path, quota: quota}
}

// Open returns the blob for dataDir, creating the directory if needed.
func Open(dataDir string, quota int64) (*File, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return NewFile(filepath.Join(dataDir, FileName), quota), nil
}

// Get returns the value stored under key.
func (f *File) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := m[key]
	return v, ok, nil
}

// Set stores value under key.
func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, err := f.loadForWrite()
	if err != nil {
		return err
	}
	m[key] = value
	if err := checkQuota(m, f.quota); err != nil {
		return err
	}
	return f.store(m)
}

// Remove deletes key. Removing a missing key is not an error.
func (f *File) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, err := f.loadForWrite()
	if err != nil {
		return err
	}
	if _, ok := m[key]; !ok {
		return nil
	}
	delete(m, key)
	return f.store(m)
}

// load reads the blob. A missing file is empty; an unreadable one is
// reported so callers can decide to start fresh.
func (f *File) load() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", f.path, err)
	}
	m := map[string]string{}
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, f.path, err)
	}
	return m, nil
}

func (f *File) loadForWrite() (map[string]string, error) {
	m, err := f.load()
	if errors.Is(err, ErrCorrupt) {
		return map[string]string{}, nil
	}
	return m, err
}

func (f *File) store(m map[string]string) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding blob: %w", err)
	}
	return atomicfile.Write(f.path, data, 0o600)
}

// Memory is an in-process blob with the same quota rules as File.
type Memory struct {
	mu    sync.Mutex
	data  map[string]string
	quota int64
}

// NewMemory returns an empty in-memory blob.
func NewMemory(quota int64) *Memory {
	if quota <= 0 {
		quota = DefaultQuota
	}
	return &Memory{data: map[string]string{}, quota: quota}
}

// Get returns the value stored under key.
func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

// Set stores value under key. Over quota it returns types.ErrQuotaExceeded and
// keeps the previous contents.
func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make(map[string]string, len(m.data)+1)
	for k, v := range m.data {
		next[k] = v
	}
	next[key] = value
	if err := checkQuota(next, m.quota); err != nil {
		return err
	}
	m.data = next
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Size returns the bytes counted against the quota for the current keys.
func Size(m map[string]string) int64 {
	var n int64
	for k, v := range m {
		n += int64(len(k) + len(v))
	}
	return n
}

func checkQuota(m map[string]string, quota int64) error {
	if size := Size(m); size > quota {
		return fmt.Errorf("%w: %d bytes over a %d byte quota", types.ErrQuotaExceeded, size, quota)
	}
	return nil
}
