package reqcache

import (
	"fmt"
	"sync"
)

// clearer is the administrative surface shared by all cache shapes.
type clearer interface {
	Purge()
	Remove(key string)
}

// Manager tracks every per-action cache so administrative eviction can
// address them by name across the wallet.
type Manager struct {
	mtx    sync.RWMutex
	caches map[string]clearer
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{
		caches: make(map[string]clearer),
	}
}

// Register adds a cache under its action name. Registering the same name
// twice is a programming error.
func (m *Manager) Register(name string, c clearer) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if _, ok := m.caches[name]; ok {
		panic(fmt.Sprintf("request cache %q registered twice", name))
	}
	m.caches[name] = c
}

// ClearCache drops every entry of the named cache.
func (m *Manager) ClearCache(name string) error {
	m.mtx.RLock()
	c, ok := m.caches[name]
	m.mtx.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCache, name)
	}
	c.Purge()

	return nil
}

// ClearCacheKey drops a single entry of the named cache.
func (m *Manager) ClearCacheKey(name, key string) error {
	m.mtx.RLock()
	c, ok := m.caches[name]
	m.mtx.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCache, name)
	}
	c.Remove(key)

	return nil
}

// Names returns the registered cache names.
func (m *Manager) Names() []string {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	names := make([]string, 0, len(m.caches))
	for name := range m.caches {
		names = append(names, name)
	}

	return names
}
