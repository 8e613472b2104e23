package memstore

import (
	"context"

	"github.com/shamaton/msgpack"

	"github.com/distx-io/tc/collaborator"
	"github.com/distx-io/tc/log"
	"github.com/distx-io/tc/session"
)

// Snapshot file top-level keys, pinned verbatim from the original
// deployment's RaftSnapshotFile so a snapshot this store writes is
// self-describing in the same shape.
const (
	rootSessionManagerKey = "rootSessionManager"
	branchSessionMapKey   = "branchSessionMap"
)

type snapshotDTO struct {
	RootSessionManager map[string][]byte `msgpack:"rootSessionManager"`
	BranchSessionMap   map[int64][]byte  `msgpack:"branchSessionMap"`
}

// Save encodes every global in root plus every branch (flat, keyed by
// branchId) into the two-entry snapshot shape. Branches are stored flat and
// reattached to their owning global by xid at load time.
func (s *MemSessionStore) Save(ctx context.Context) ([]byte, error) {
	dto := snapshotDTO{
		RootSessionManager: make(map[string][]byte),
		BranchSessionMap:   make(map[int64][]byte),
	}

	for _, g := range s.root.all() {
		body, err := session.EncodeGlobal(g)
		if err != nil {
			return nil, err
		}
		dto.RootSessionManager[g.XID] = body

		for _, b := range g.Branches() {
			bBody, err := session.EncodeBranch(b)
			if err != nil {
				return nil, err
			}
			dto.BranchSessionMap[b.BranchID] = bBody
		}
	}

	return msgpack.Encode(&dto)
}

// Load reconstructs the store from a snapshot taken by Save. Followers only
// — a leader must never overwrite its own authoritative state with a
// snapshot. lockMgr re-acquires each branch's lock; a failure to reacquire
// is logged and does not abort the load, per spec: the transaction may
// later fail lock checks on its own.
func (s *MemSessionStore) Load(ctx context.Context, data []byte, lockMgr collaborator.LockManager) error {
	var dto snapshotDTO
	if err := msgpack.Decode(data, &dto); err != nil {
		return err
	}

	globals := make(map[string]*session.GlobalSession, len(dto.RootSessionManager))
	for xid, body := range dto.RootSessionManager {
		g, err := session.DecodeGlobal(body)
		if err != nil {
			return err
		}
		globals[xid] = g
		s.root.put(g)
	}

	for branchID, body := range dto.BranchSessionMap {
		b, err := session.DecodeBranch(body)
		if err != nil {
			return err
		}
		b.BranchID = branchID
		g, ok := globals[b.XID]
		if !ok {
			continue
		}
		g.AddBranch(b)
		if lockMgr != nil {
			if _, err := lockMgr.Acquire(ctx, b); err != nil {
				log.WarnContextf(ctx, "failed to restore lock for branch %d of %s: %v", b.BranchID, b.XID, err)
			}
		}
	}

	for _, g := range globals {
		if name, ok := sideMapFor(g.Status); ok {
			s.managerFor(name).put(g)
		}
	}

	return nil
}
