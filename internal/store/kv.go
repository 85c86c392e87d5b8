package store

import (
	"sort"
	"strings"
	"sync"
)

// KV is the persistent key/value capability injected into page controllers.
// Values are opaque strings; writes replace the previous value wholesale.
type KV interface {
	// Get returns (value, true, nil) when key exists and ("", false, nil) otherwise.
	Get(key string) (string, bool, error)
	Put(key, value string) error
	Delete(key string) error
}

// Namespace returns a KV whose keys are prefixed with "<page>_", so
// Namespace(kv, "risk").Put("filter", v) writes the physical key "risk_filter".
func Namespace(kv KV, page string) KV {
	return &namespaced{kv: kv, prefix: page + "_"}
}

type namespaced struct {
	kv     KV
	prefix string
}

func (n *namespaced) Get(key string) (string, bool, error) { return n.kv.Get(n.prefix + key) }
func (n *namespaced) Put(key, value string) error          { return n.kv.Put(n.prefix+key, value) }
func (n *namespaced) Delete(key string) error              { return n.kv.Delete(n.prefix + key) }

// ─── Memory ───────────────────────────────────────────────────────────────────

// Memory is an in-process KV used by tests and by --store memory.
type Memory struct {
	mu     sync.Mutex
	data   map[string]string
	writes int
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Put(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.writes++
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	m.writes++
	return nil
}

// Keys returns all keys with the given prefix, sorted.
func (m *Memory) Keys(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Writes returns the number of Put and Delete calls so far.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
