// Package memstore is the raft-replicated in-memory session store (spec
// §4.3): four named session maps held in process, durable only via the
// consensus log plus periodic snapshots.
package memstore

import (
	"context"

	trylock "github.com/subchen/go-trylock/v2"

	"github.com/distx-io/tc/session"
	"github.com/distx-io/tc/store"
)

// MemSessionStore implements store.SessionStore over four in-memory maps:
// root (authoritative) plus three side indices the sweeper scans instead of
// walking the whole root map.
type MemSessionStore struct {
	root             *sessionMap
	asyncCommitting  *sessionMap
	retryCommitting  *sessionMap
	retryRollbacking *sessionMap

	txIndexMu trylock.TryLocker
	txIndex   map[int64]string // transactionId -> xid
}

// New returns an empty replicated store. Root sessions and branches are
// mutated through the consensus bridge's apply path (see package consensus);
// the coordinator also adds and removes side-map entries directly through
// AddToManager/RemoveFromManager.
func New() *MemSessionStore {
	return &MemSessionStore{
		root:             newSessionMap(),
		asyncCommitting:  newSessionMap(),
		retryCommitting:  newSessionMap(),
		retryRollbacking: newSessionMap(),
		txIndexMu:        trylock.New(),
		txIndex:          make(map[int64]string),
	}
}

func (s *MemSessionStore) managerFor(name session.SessionManagerName) *sessionMap {
	switch name {
	case session.Root:
		return s.root
	case session.AsyncCommittingMgr:
		return s.asyncCommitting
	case session.RetryCommittingMgr:
		return s.retryCommitting
	case session.RetryRollbackingMgr:
		return s.retryRollbacking
	default:
		return s.root
	}
}

func (s *MemSessionStore) InsertOrUpdateGlobal(ctx context.Context, g *session.GlobalSession) error {
	s.root.put(g)
	s.txIndexMu.Lock()
	s.txIndex[g.TransactionID] = g.XID
	s.txIndexMu.Unlock()
	return nil
}

func (s *MemSessionStore) DeleteGlobal(ctx context.Context, g *session.GlobalSession) error {
	s.root.remove(g.XID)
	s.asyncCommitting.remove(g.XID)
	s.retryCommitting.remove(g.XID)
	s.retryRollbacking.remove(g.XID)
	s.txIndexMu.Lock()
	delete(s.txIndex, g.TransactionID)
	s.txIndexMu.Unlock()
	return nil
}

// InsertOrUpdateBranch mutates the branch list owned by its global in place;
// the global must already exist in root.
func (s *MemSessionStore) InsertOrUpdateBranch(ctx context.Context, b *session.BranchSession) error {
	g := s.root.get(b.XID)
	if g == nil {
		return session.ErrTransactionNotExist
	}
	if existing := g.GetBranch(b.BranchID); existing != nil {
		*existing = *b
		return nil
	}
	g.AddBranch(b.Clone())
	return nil
}

func (s *MemSessionStore) DeleteBranch(ctx context.Context, b *session.BranchSession) error {
	g := s.root.get(b.XID)
	if g == nil {
		return nil
	}
	g.RemoveBranch(b.BranchID)
	return nil
}

func (s *MemSessionStore) ReadGlobal(ctx context.Context, xid string, withBranches bool) (*session.GlobalSession, error) {
	return s.root.get(xid), nil
}

// sideMapFor reports which side map a global in this status would be
// classified into (mirrors consensus.placeInSideMap), so ReadByStatuses can
// scan the narrow side map instead of the whole root map. false means no
// side map tracks this status.
func sideMapFor(status session.GlobalStatus) (session.SessionManagerName, bool) {
	switch {
	case status == session.AsyncCommitting:
		return session.AsyncCommittingMgr, true
	case status == session.CommitRetrying:
		return session.RetryCommittingMgr, true
	case status.ShouldRetryRollback():
		return session.RetryRollbackingMgr, true
	default:
		return "", false
	}
}

// ReadByStatuses scans the narrowest side map(s) that cover every requested
// status, falling back to the full root map the moment any requested status
// has no side-map home (e.g. a caller asking about Begin/Committed) — the
// same set of side maps AddToManager/RemoveFromManager and the consensus
// apply path's placeInSideMap populate, so they are load-bearing here rather
// than write-only bookkeeping.
func (s *MemSessionStore) ReadByStatuses(ctx context.Context, statuses []session.GlobalStatus) ([]*session.GlobalSession, error) {
	want := make(map[session.GlobalStatus]struct{}, len(statuses))
	for _, st := range statuses {
		want[st] = struct{}{}
	}

	managers := make(map[session.SessionManagerName]*sessionMap)
	for st := range want {
		name, ok := sideMapFor(st)
		if !ok {
			return s.readByStatusesFromRoot(want), nil
		}
		managers[name] = s.managerFor(name)
	}

	seen := make(map[string]bool)
	var out []*session.GlobalSession
	for _, m := range managers {
		for _, g := range m.all() {
			if seen[g.XID] {
				continue
			}
			if _, ok := want[g.Status]; ok {
				seen[g.XID] = true
				out = append(out, g)
			}
		}
	}
	return out, nil
}

func (s *MemSessionStore) readByStatusesFromRoot(want map[session.GlobalStatus]struct{}) []*session.GlobalSession {
	var out []*session.GlobalSession
	for _, g := range s.root.all() {
		if _, ok := want[g.Status]; ok {
			out = append(out, g)
		}
	}
	return out
}

func (s *MemSessionStore) ReadByCondition(ctx context.Context, cond store.SessionCondition) ([]*session.GlobalSession, error) {
	switch {
	case cond.XID != "":
		if g := s.root.get(cond.XID); g != nil {
			return []*session.GlobalSession{g}, nil
		}
		return nil, nil
	case cond.TransactionID != 0:
		s.txIndexMu.RLock()
		xid, ok := s.txIndex[cond.TransactionID]
		s.txIndexMu.RUnlock()
		if !ok {
			return nil, nil
		}
		if g := s.root.get(xid); g != nil {
			return []*session.GlobalSession{g}, nil
		}
		return nil, nil
	default:
		return s.ReadByStatuses(ctx, cond.Statuses)
	}
}

func (s *MemSessionStore) AddToManager(ctx context.Context, name session.SessionManagerName, g *session.GlobalSession) error {
	s.managerFor(name).put(g)
	return nil
}

func (s *MemSessionStore) RemoveFromManager(ctx context.Context, name session.SessionManagerName, xid string) error {
	s.managerFor(name).remove(xid)
	return nil
}

// RequiresRollbackDoubleRead is false: every read against this store is
// already consistent with the replica's own applied log position.
func (s *MemSessionStore) RequiresRollbackDoubleRead() bool {
	return false
}
