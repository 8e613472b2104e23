package memstore

import (
	trylock "github.com/subchen/go-trylock/v2"

	"github.com/distx-io/tc/session"
)

// sessionMap is a concurrent xid -> *session.GlobalSession map using the
// same trylock.TryLocker the teacher repo's Cmap guards its map with
// (SCPD-Project-raft-kv-store/common/cmap.go), simplified: this
// coordinator already serializes all mutation of a given global under its
// own per-session mutex (session.GlobalSession.Lock/Unlock), so the map
// itself only needs plain blocking Lock/RLock to make lookup/insert/remove
// atomic — it does not need Cmap's per-key trylock-with-timeout, which
// exists there to fail fast on cross-transaction key contention that has
// no equivalent here.
type sessionMap struct {
	mu      trylock.TryLocker
	entries map[string]*session.GlobalSession
}

func newSessionMap() *sessionMap {
	return &sessionMap{
		mu:      trylock.New(),
		entries: make(map[string]*session.GlobalSession),
	}
}

func (m *sessionMap) get(xid string) *session.GlobalSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[xid]
}

func (m *sessionMap) put(g *session.GlobalSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[g.XID] = g
}

func (m *sessionMap) remove(xid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, xid)
}

func (m *sessionMap) all() []*session.GlobalSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*session.GlobalSession, 0, len(m.entries))
	for _, g := range m.entries {
		out = append(out, g)
	}
	return out
}
