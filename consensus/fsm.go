package consensus

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/hashicorp/raft"

	"github.com/distx-io/tc/collaborator"
	"github.com/distx-io/tc/store/memstore"
)

// FSM adapts store/memstore to raft.FSM, grounded on the teacher pack's
// FSM-aliases-the-store pattern (SCPD-Project-raft-kv-store/store/fsm.go):
// Apply decodes and dispatches one log entry, Snapshot/Restore hand off to
// the store's own binary encoding.
type FSM struct {
	store   *memstore.MemSessionStore
	lockMgr collaborator.LockManager // re-acquired on Restore, see memstore.Load
}

// NewFSM wires a store to the raft machinery. lockMgr may be nil in tests.
func NewFSM(store *memstore.MemSessionStore, lockMgr collaborator.LockManager) *FSM {
	return &FSM{store: store, lockMgr: lockMgr}
}

// Apply applies one committed log entry. Errors are returned as the future's
// response rather than panicking — a malformed entry should fail the single
// propose call, not crash the node.
func (f *FSM) Apply(l *raft.Log) interface{} {
	entry, err := DecodeEntry(l.Data)
	if err != nil {
		return fmt.Errorf("consensus: decode entry at index %d: %w", l.Index, err)
	}
	return onApply(f.store, entry)
}

// Snapshot encodes the full session-store state into the two-entry shape
// (rootSessionManager/branchSessionMap) spec §4.3 names.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	body, err := f.store.Save(context.Background())
	if err != nil {
		return nil, err
	}
	return &fsmSnapshot{body: body}, nil
}

// Restore loads a previously taken snapshot. Hashicorp raft only calls this
// on a node that is not currently leader (it is replacing its own state from
// a follower's installSnapshot path or from local disk on restart), matching
// the "followers only" constraint in spec §4.3.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	data, err := ioutil.ReadAll(rc)
	if err != nil {
		return err
	}
	return f.store.Load(context.Background(), data, f.lockMgr)
}

type fsmSnapshot struct {
	body []byte
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if _, err := sink.Write(s.body); err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
