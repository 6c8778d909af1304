// Package file provides storage backends persisted on the local filesystem.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/AltairaLabs/chatpool/internal/coordinator/storage"
)

const (
	registryDirMode  = 0o750
	registryFileMode = 0o640
	tempFilePattern  = ".pids-*.toml"
)

type pidFile struct {
	Processes []storage.ProcessEntry `toml:"process"`
}

// PIDRegistry is a storage.PIDRegistry kept in a TOML file so process reapers
// outside the coordinator can read which pids are protected. Every mutation
// rewrites the file atomically.
type PIDRegistry struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

var (
	_ storage.PIDRegistry   = (*PIDRegistry)(nil)
	_ storage.ProcessLister = (*PIDRegistry)(nil)
)

// NewPIDRegistry opens the registry at path. A stale file from a previous run
// is discarded: its pids no longer belong to this coordinator.
func NewPIDRegistry(path string) (*PIDRegistry, error) {
	if path == "" {
		return nil, errors.New("pid registry path cannot be empty")
	}
	r := &PIDRegistry{path: filepath.Clean(path), now: time.Now}
	if err := r.write(pidFile{}); err != nil {
		return nil, err
	}
	return r, nil
}

// RegisterActive records pid under key, replacing any earlier entry.
func (r *PIDRegistry) RegisterActive(ctx context.Context, key string, pid int) error {
	if key == "" {
		return errors.New("process key cannot be empty")
	}
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d for %s", pid, key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := r.read()
	if err != nil {
		return err
	}
	f.Processes = removeKey(f.Processes, key)
	f.Processes = append(f.Processes, storage.ProcessEntry{
		Key:          key,
		PID:          pid,
		RegisteredAt: r.now().UTC().Truncate(time.Second),
	})
	return r.write(f)
}

// Unregister drops key from the file.
func (r *PIDRegistry) Unregister(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := r.read()
	if err != nil {
		return err
	}
	before := len(f.Processes)
	f.Processes = removeKey(f.Processes, key)
	if len(f.Processes) == before {
		return nil
	}
	return r.write(f)
}

// List returns the registered processes sorted by key.
func (r *PIDRegistry) List(ctx context.Context) ([]storage.ProcessEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := r.read()
	if err != nil {
		return nil, err
	}
	return f.Processes, nil
}

func (r *PIDRegistry) read() (pidFile, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return pidFile{}, nil
	}
	if err != nil {
		return pidFile{}, fmt.Errorf("read pid registry: %w", err)
	}

	var f pidFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return pidFile{}, fmt.Errorf("decode pid registry: %w", err)
	}
	return f, nil
}

func (r *PIDRegistry) write(f pidFile) error {
	sort.Slice(f.Processes, func(i, j int) bool { return f.Processes[i].Key < f.Processes[j].Key })

	if err := os.MkdirAll(filepath.Dir(r.path), registryDirMode); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	data, err := toml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode pid registry: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(r.path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tempFile.Chmod(registryFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tempName, r.path); err != nil {
		return fmt.Errorf("replace file: %w", err)
	}

	cleanup = false
	return nil
}

func removeKey(entries []storage.ProcessEntry, key string) []storage.ProcessEntry {
	out := entries[:0]
	for _, e := range entries {
		if e.Key != key {
			out = append(out, e)
		}
	}
	return out
}
