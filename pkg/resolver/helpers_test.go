package resolver

import (
	"sort"
	"sync"
)

// methodSet records distinct values seen by a test server.
type methodSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func (m *methodSet) add(v string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = make(map[string]struct{})
	}
	m.seen[v] = struct{}{}
}

func (m *methodSet) list() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.seen))
	for v := range m.seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
