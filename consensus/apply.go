package consensus

import (
	"context"
	"fmt"

	"github.com/shamaton/msgpack"

	"github.com/distx-io/tc/session"
	"github.com/distx-io/tc/store/memstore"
)

// NewAddGlobalEntry builds the entry for a fresh global (coordinator.begin).
func NewAddGlobalEntry(g *session.GlobalSession) (*Entry, error) {
	body, err := session.EncodeGlobal(g)
	if err != nil {
		return nil, err
	}
	return &Entry{MsgType: AddGlobalSession, Payload: encodePayload(&globalPayload{Global: body})}, nil
}

// NewUpdateGlobalStatusEntry builds the entry for a bare status transition.
func NewUpdateGlobalStatusEntry(xid string, status session.GlobalStatus) *Entry {
	return &Entry{MsgType: UpdateGlobalSessionStatus, Payload: encodePayload(&globalStatusPayload{XID: xid, Status: int32(status)})}
}

// NewRemoveGlobalEntry builds the entry for global destruction.
func NewRemoveGlobalEntry(xid string) *Entry {
	return &Entry{MsgType: RemoveGlobalSession, Payload: encodePayload(&xidPayload{XID: xid})}
}

// NewAddBranchEntry builds the entry for branchRegister.
func NewAddBranchEntry(b *session.BranchSession) (*Entry, error) {
	body, err := session.EncodeBranch(b)
	if err != nil {
		return nil, err
	}
	return &Entry{MsgType: AddBranchSession, Payload: encodePayload(&branchPayload{Branch: body})}, nil
}

// NewUpdateBranchStatusEntry builds the entry for branchReport.
func NewUpdateBranchStatusEntry(xid string, branchID int64, status session.BranchStatus) *Entry {
	return &Entry{MsgType: UpdateBranchSessionStatus, Payload: encodePayload(&branchStatusPayload{XID: xid, BranchID: branchID, Status: int32(status)})}
}

// NewRemoveBranchEntry builds the entry removing one branch from its global.
func NewRemoveBranchEntry(xid string, branchID int64) *Entry {
	return &Entry{MsgType: RemoveBranchSession, Payload: encodePayload(&branchRefPayload{XID: xid, BranchID: branchID})}
}

// NewAcquireLockEntry/NewReleaseLockEntry record that the leader's external
// lock capability call succeeded for this branch. The log entry carries no
// state the FSM needs to reapply — the lock itself lives in the external
// lock capability, shared out-of-band by every replica — so its only job is
// to keep the replicated log a complete, ordered record of the decision.
func NewAcquireLockEntry(xid string, branchID int64) *Entry {
	return &Entry{MsgType: AcquireLock, Payload: encodePayload(&branchRefPayload{XID: xid, BranchID: branchID})}
}

func NewReleaseLockEntry(xid string) *Entry {
	return &Entry{MsgType: ReleaseGlobalSessionLock, Payload: encodePayload(&xidPayload{XID: xid})}
}

// NewDoCommitEntry/NewDoRollbackEntry carry the batched outcome of the
// leader's first branch-driving pass (spec §4.4 "Commit/rollback
// propagation"): every branch's terminal status plus the global's final
// status, so followers apply the same terminal transition without
// redriving any branch capability themselves.
func NewDoCommitEntry(xid string, branchStatuses map[int64]session.BranchStatus, final session.GlobalStatus) *Entry {
	return &Entry{MsgType: DoCommit, Payload: encodePayload(toDoPayload(xid, branchStatuses, final))}
}

func NewDoRollbackEntry(xid string, branchStatuses map[int64]session.BranchStatus, final session.GlobalStatus) *Entry {
	return &Entry{MsgType: DoRollback, Payload: encodePayload(toDoPayload(xid, branchStatuses, final))}
}

func toDoPayload(xid string, branchStatuses map[int64]session.BranchStatus, final session.GlobalStatus) *doPayload {
	m := make(map[int64]int32, len(branchStatuses))
	for id, st := range branchStatuses {
		m[id] = int32(st)
	}
	return &doPayload{XID: xid, BranchStatuses: m, FinalStatus: int32(final)}
}

// onApply routes one decoded entry to its handler. Every handler is
// idempotent: replaying the same entry after a crash/reconnect must be
// safe, since the log may redeliver an already-applied entry.
func onApply(store *memstore.MemSessionStore, e *Entry) error {
	switch e.MsgType {
	case AddGlobalSession:
		return applyAddGlobal(store, e.Payload)
	case UpdateGlobalSessionStatus:
		return applyUpdateGlobalStatus(store, e.Payload)
	case RemoveGlobalSession:
		return applyRemoveGlobal(store, e.Payload)
	case AddBranchSession:
		return applyAddBranch(store, e.Payload)
	case UpdateBranchSessionStatus:
		return applyUpdateBranchStatus(store, e.Payload)
	case RemoveBranchSession:
		return applyRemoveBranch(store, e.Payload)
	case AcquireLock, ReleaseGlobalSessionLock:
		return nil // see NewAcquireLockEntry: no replicated state to mutate
	case DoCommit, DoRollback:
		return applyDo(store, e.Payload)
	default:
		return fmt.Errorf("consensus: unrecognized msgType %q", e.MsgType)
	}
}

func applyAddGlobal(s *memstore.MemSessionStore, payload []byte) error {
	var p globalPayload
	if err := decodePayload(payload, &p); err != nil {
		return err
	}
	g, err := session.DecodeGlobal(p.Global)
	if err != nil {
		return err
	}
	return s.InsertOrUpdateGlobal(context.Background(), g)
}

func applyUpdateGlobalStatus(s *memstore.MemSessionStore, payload []byte) error {
	var p globalStatusPayload
	if err := decodePayload(payload, &p); err != nil {
		return err
	}
	g, err := s.ReadGlobal(context.Background(), p.XID, false)
	if err != nil || g == nil {
		return err // missing global: already removed, no-op
	}
	g.Lock()
	defer g.Unlock()
	status := session.GlobalStatus(p.Status)
	if g.Status == status {
		return nil
	}
	g.Status = status
	return s.InsertOrUpdateGlobal(context.Background(), g)
}

func applyRemoveGlobal(s *memstore.MemSessionStore, payload []byte) error {
	var p xidPayload
	if err := decodePayload(payload, &p); err != nil {
		return err
	}
	g, err := s.ReadGlobal(context.Background(), p.XID, false)
	if err != nil || g == nil {
		return err
	}
	return s.DeleteGlobal(context.Background(), g)
}

func applyAddBranch(s *memstore.MemSessionStore, payload []byte) error {
	var p branchPayload
	if err := decodePayload(payload, &p); err != nil {
		return err
	}
	b, err := session.DecodeBranch(p.Branch)
	if err != nil {
		return err
	}
	return s.InsertOrUpdateBranch(context.Background(), b) // already idempotent: updates in place if present
}

func applyUpdateBranchStatus(s *memstore.MemSessionStore, payload []byte) error {
	var p branchStatusPayload
	if err := decodePayload(payload, &p); err != nil {
		return err
	}
	g, err := s.ReadGlobal(context.Background(), p.XID, true)
	if err != nil || g == nil {
		return err
	}
	g.Lock()
	defer g.Unlock()
	b := g.GetBranch(p.BranchID)
	if b == nil {
		return nil
	}
	b.Status = session.BranchStatus(p.Status)
	return nil
}

func applyRemoveBranch(s *memstore.MemSessionStore, payload []byte) error {
	var p branchRefPayload
	if err := decodePayload(payload, &p); err != nil {
		return err
	}
	return s.DeleteBranch(context.Background(), &session.BranchSession{XID: p.XID, BranchID: p.BranchID})
}

func applyDo(s *memstore.MemSessionStore, payload []byte) error {
	var p doPayload
	if err := decodePayload(payload, &p); err != nil {
		return err
	}
	g, err := s.ReadGlobal(context.Background(), p.XID, true)
	if err != nil || g == nil {
		return err
	}
	g.Lock()
	for branchID, status := range p.BranchStatuses {
		if b := g.GetBranch(branchID); b != nil {
			b.Status = session.BranchStatus(status)
		}
	}
	g.Status = session.GlobalStatus(p.FinalStatus)
	g.Unlock()

	if g.Status.IsTerminal() {
		return s.DeleteGlobal(context.Background(), g)
	}
	return placeInSideMap(s, g)
}

// placeInSideMap mirrors the classification memstore.Load uses on snapshot
// restore, so a DO_COMMIT/DO_ROLLBACK entry that leaves a global non-terminal
// (retry scheduled) lands in the right sweeper queue on every replica.
func placeInSideMap(s *memstore.MemSessionStore, g *session.GlobalSession) error {
	switch {
	case g.Status == session.AsyncCommitting:
		return s.AddToManager(context.Background(), session.AsyncCommittingMgr, g)
	case g.Status == session.CommitRetrying:
		return s.AddToManager(context.Background(), session.RetryCommittingMgr, g)
	case g.Status.ShouldRetryRollback():
		return s.AddToManager(context.Background(), session.RetryRollbackingMgr, g)
	default:
		return nil
	}
}

func decodePayload(data []byte, v interface{}) error {
	return msgpack.Decode(data, v)
}
