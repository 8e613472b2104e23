package session

import "sync"

// GlobalSession is one global transaction. Every coordinator mutation runs
// under its mutex; the status CAS step inside commit/rollback is the single
// arbiter that selects which caller drives phase-two for this global.
type GlobalSession struct {
	mu sync.Mutex

	XID                     string
	TransactionID           int64
	ApplicationID           string
	TransactionServiceGroup string
	TransactionName         string
	TimeoutMs               int64
	BeginTime               int64 // epoch ms
	ApplicationData         []byte
	Status                  GlobalStatus
	Active                  bool

	branches []*BranchSession
}

// New creates a GlobalSession in status Begin, open to branch registration.
func New(xid string, transactionID int64, applicationID, group, name string, timeoutMs, beginTime int64, applicationData []byte) *GlobalSession {
	return &GlobalSession{
		XID:                     xid,
		TransactionID:           transactionID,
		ApplicationID:           applicationID,
		TransactionServiceGroup: group,
		TransactionName:         name,
		TimeoutMs:               timeoutMs,
		BeginTime:               beginTime,
		ApplicationData:         applicationData,
		Status:                  Begin,
		Active:                  true,
	}
}

// Lock acquires the per-session mutex. Held across capability calls by
// design: phase-two work mutates this session and must be serialized with
// any concurrent commit/rollback/branchRegister on the same xid.
func (g *GlobalSession) Lock() { g.mu.Lock() }

// Unlock releases the per-session mutex.
func (g *GlobalSession) Unlock() { g.mu.Unlock() }

// Branches returns a snapshot of the owned branches in insertion order.
// The slice is a fresh copy, so reordering or overwriting its elements does
// not affect g; the branch pointers themselves are shared.
func (g *GlobalSession) Branches() []*BranchSession {
	out := make([]*BranchSession, len(g.branches))
	copy(out, g.branches)
	return out
}

// BranchCount returns the number of owned branches.
func (g *GlobalSession) BranchCount() int {
	return len(g.branches)
}

// AddBranch appends a branch; insertion order defines commit order and its
// reverse defines rollback order.
func (g *GlobalSession) AddBranch(b *BranchSession) {
	b.XID = g.XID
	b.TransactionID = g.TransactionID
	g.branches = append(g.branches, b)
}

// RemoveBranch removes the branch with the given id, if present.
func (g *GlobalSession) RemoveBranch(branchID int64) {
	for i, b := range g.branches {
		if b.BranchID == branchID {
			g.branches = append(g.branches[:i], g.branches[i+1:]...)
			return
		}
	}
}

// GetBranch returns the branch with the given id, or nil.
func (g *GlobalSession) GetBranch(branchID int64) *BranchSession {
	for _, b := range g.branches {
		if b.BranchID == branchID {
			return b
		}
	}
	return nil
}

// CanBeCommittedAsync reports whether every owned branch may defer its
// phase-two commit to the async sweeper.
func (g *GlobalSession) CanBeCommittedAsync() bool {
	for _, b := range g.branches {
		if !b.CanBeCommittedAsync() {
			return false
		}
	}
	return true
}

// Clone returns a value copy of the global's fields and a deep copy of its
// branch slice, safe for snapshotting or cross-goroutine handoff. The mutex
// is not copied (zero value).
func (g *GlobalSession) Clone() *GlobalSession {
	cp := &GlobalSession{
		XID:                     g.XID,
		TransactionID:           g.TransactionID,
		ApplicationID:           g.ApplicationID,
		TransactionServiceGroup: g.TransactionServiceGroup,
		TransactionName:         g.TransactionName,
		TimeoutMs:               g.TimeoutMs,
		BeginTime:               g.BeginTime,
		ApplicationData:         g.ApplicationData,
		Status:                  g.Status,
		Active:                  g.Active,
	}
	cp.branches = make([]*BranchSession, len(g.branches))
	for i, b := range g.branches {
		cp.branches[i] = b.Clone()
	}
	return cp
}
