package runner

import (
	"context"
	"sync"
)

// MemoryFlags is an in-process StopFlags implementation used when no
// redis is configured, and in tests.
type MemoryFlags struct {
	mu    sync.Mutex
	flags map[string]bool
}

// NewMemoryFlags creates an empty in-process stop-flag store.
func NewMemoryFlags() *MemoryFlags {
	return &MemoryFlags{flags: make(map[string]bool)}
}

func (f *MemoryFlags) Set(ctx context.Context, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flags[sessionID] {
		return false, nil
	}
	f.flags[sessionID] = true
	return true, nil
}

func (f *MemoryFlags) IsSet(ctx context.Context, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flags[sessionID], nil
}

func (f *MemoryFlags) Clear(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.flags, sessionID)
	return nil
}
