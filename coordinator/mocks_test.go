package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/distx-io/tc/collaborator"
	"github.com/distx-io/tc/session"
	"github.com/distx-io/tc/store"
)

// mockSessionStore is a hand-rolled store.SessionStore, in the shape of the
// teacher's mockTXStore (txmanager_test.go): a mutex-guarded map standing in
// for a real backend, plus enough manager bookkeeping to assert on.
type mockSessionStore struct {
	mu       sync.Mutex
	globals  map[string]*session.GlobalSession
	managers map[session.SessionManagerName]map[string]bool

	// doubleReadExtraBranch, when set, is appended to the global returned by
	// the second ReadGlobal call on a given xid once doubleRead is set —
	// simulating a branch that registered between doGlobalRollback's
	// first read and its double-read.
	doubleRead            bool
	doubleReadExtraBranch *session.BranchSession
	readGlobalCalls       map[string]int
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{
		globals:         make(map[string]*session.GlobalSession),
		managers:        make(map[session.SessionManagerName]map[string]bool),
		readGlobalCalls: make(map[string]int),
	}
}

func (m *mockSessionStore) InsertOrUpdateGlobal(ctx context.Context, g *session.GlobalSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.globals[g.XID] = g
	return nil
}

func (m *mockSessionStore) DeleteGlobal(ctx context.Context, g *session.GlobalSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.globals, g.XID)
	return nil
}

func (m *mockSessionStore) InsertOrUpdateBranch(ctx context.Context, b *session.BranchSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.globals[b.XID]
	if !ok {
		return session.ErrTransactionNotExist
	}
	if existing := g.GetBranch(b.BranchID); existing != nil {
		*existing = *b
		return nil
	}
	g.AddBranch(b)
	return nil
}

func (m *mockSessionStore) DeleteBranch(ctx context.Context, b *session.BranchSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.globals[b.XID]; ok {
		g.RemoveBranch(b.BranchID)
	}
	return nil
}

func (m *mockSessionStore) ReadGlobal(ctx context.Context, xid string, withBranches bool) (*session.GlobalSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readGlobalCalls[xid]++
	g, ok := m.globals[xid]
	if !ok {
		return nil, nil
	}
	if m.doubleRead && m.readGlobalCalls[xid] == 2 && m.doubleReadExtraBranch != nil {
		g.AddBranch(m.doubleReadExtraBranch)
	}
	return g, nil
}

func (m *mockSessionStore) ReadByStatuses(ctx context.Context, statuses []session.GlobalStatus) ([]*session.GlobalSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[session.GlobalStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []*session.GlobalSession
	for _, g := range m.globals {
		if want[g.Status] {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *mockSessionStore) ReadByCondition(ctx context.Context, cond store.SessionCondition) ([]*session.GlobalSession, error) {
	if cond.XID != "" {
		g, err := m.ReadGlobal(ctx, cond.XID, true)
		if g == nil {
			return nil, err
		}
		return []*session.GlobalSession{g}, err
	}
	return m.ReadByStatuses(ctx, cond.Statuses)
}

func (m *mockSessionStore) AddToManager(ctx context.Context, name session.SessionManagerName, g *session.GlobalSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.managers[name] == nil {
		m.managers[name] = make(map[string]bool)
	}
	m.managers[name][g.XID] = true
	return nil
}

func (m *mockSessionStore) RemoveFromManager(ctx context.Context, name session.SessionManagerName, xid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.managers[name], xid)
	return nil
}

func (m *mockSessionStore) RequiresRollbackDoubleRead() bool {
	return m.doubleRead
}

func (m *mockSessionStore) inManager(name session.SessionManagerName, xid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.managers[name][xid]
}

// mockLockManager grants every lock unless told to refuse.
type mockLockManager struct {
	refuse bool
}

func (l *mockLockManager) Acquire(ctx context.Context, b *session.BranchSession) (bool, error) {
	return !l.refuse, nil
}

func (l *mockLockManager) Release(ctx context.Context, b *session.BranchSession) error {
	return nil
}

func (l *mockLockManager) QueryLock(ctx context.Context, branchType session.BranchType, resourceID, xid, lockKey string) (bool, error) {
	return true, nil
}

// mockEventSink records every event emitted, for assertions on ordering.
type mockEventSink struct {
	mu     sync.Mutex
	events []collaborator.GlobalTransactionEvent
}

func (e *mockEventSink) Emit(ctx context.Context, ev collaborator.GlobalTransactionEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func (e *mockEventSink) roles() []collaborator.Role {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]collaborator.Role, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.Role
	}
	return out
}

// mockIDGen mints predictable, monotonically increasing ids.
type mockIDGen struct {
	mu   sync.Mutex
	next int64
}

func (g *mockIDGen) NextXID() string {
	return fmt.Sprintf("xid-%d", g.NextID())
}

func (g *mockIDGen) NextID() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return g.next
}

// fakeBranchCapability drives BranchCommit/BranchRollback by a per-branchID
// scripted response, falling back to a fixed default when no script entry
// exists for that branch.
type fakeBranchCapability struct {
	mu            sync.Mutex
	commitScript  map[int64][]scriptedResult
	rollbackScript map[int64][]scriptedResult
	defaultCommit session.BranchStatus
	defaultRollback session.BranchStatus
	calls         []int64
}

type scriptedResult struct {
	status session.BranchStatus
	err    error
}

func newFakeBranchCapability() *fakeBranchCapability {
	return &fakeBranchCapability{
		commitScript:    make(map[int64][]scriptedResult),
		rollbackScript:  make(map[int64][]scriptedResult),
		defaultCommit:   session.PhaseTwoCommitted,
		defaultRollback: session.PhaseTwoRollbacked,
	}
}

func (f *fakeBranchCapability) scriptCommit(branchID int64, results ...scriptedResult) {
	f.commitScript[branchID] = results
}

func (f *fakeBranchCapability) scriptRollback(branchID int64, results ...scriptedResult) {
	f.rollbackScript[branchID] = results
}

func (f *fakeBranchCapability) BranchCommit(ctx context.Context, g *session.GlobalSession, b *session.BranchSession) (session.BranchStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, b.BranchID)
	if script := f.commitScript[b.BranchID]; len(script) > 0 {
		r := script[0]
		f.commitScript[b.BranchID] = script[1:]
		return r.status, r.err
	}
	return f.defaultCommit, nil
}

func (f *fakeBranchCapability) BranchRollback(ctx context.Context, g *session.GlobalSession, b *session.BranchSession) (session.BranchStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, b.BranchID)
	if script := f.rollbackScript[b.BranchID]; len(script) > 0 {
		r := script[0]
		f.rollbackScript[b.BranchID] = script[1:]
		return r.status, r.err
	}
	return f.defaultRollback, nil
}

// newTestCoordinator wires a Coordinator in KV mode (nil bridge) against the
// fakes above, with the background sweeper's tick pushed far out so it never
// fires mid-test.
func newTestCoordinator(s *mockSessionStore, lock collaborator.LockManager, sink collaborator.EventSink, idgen collaborator.IDGenerator) *Coordinator {
	c := New(s, lock, sink, idgen, nil, WithMonitorTick(time.Hour))
	return c
}
