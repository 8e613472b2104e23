// Package coordinator is the transaction-coordinator state machine (spec
// §4.1): begin/branchRegister/branchReport/lockQuery/commit/rollback plus
// the background sweeper that drives retry queues. It is the single
// caller of both store.SessionStore backends and every collaborator.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/distx-io/tc/collaborator"
	"github.com/distx-io/tc/consensus"
	"github.com/distx-io/tc/log"
	"github.com/distx-io/tc/session"
	"github.com/distx-io/tc/store"
)

// wrapStoreErr/wrapConsensusErr tag a raw backend failure with the sentinel
// spec §7 names, so callers can errors.Is against session.ErrStore/
// session.ErrConsensus instead of depending on a specific store or raft
// error type. nil passes through untouched.
func wrapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", session.ErrStore, err)
}

func wrapConsensusErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", session.ErrConsensus, err)
}

// Coordinator ties a session store, the external collaborators, and
// (optionally) a consensus bridge into the operations clients call.
// Mirrors the teacher's TXManager shape: one struct, a cancelable
// background context, a registry, functional options.
type Coordinator struct {
	ctx  context.Context
	stop context.CancelFunc
	opts *Options

	store     store.SessionStore
	lockMgr   collaborator.LockManager
	eventSink collaborator.EventSink
	idGen     collaborator.IDGenerator
	registry  *branchRegistry

	// bridge is non-nil only when this coordinator runs in replicated mode;
	// its presence is what selects between the KV-backend write path
	// (direct store call) and the replicated write path (propose + FSM
	// apply) throughout this package.
	bridge *consensus.Bridge
}

// New wires a Coordinator and starts its background sweeper. Close with
// Stop.
func New(
	sessionStore store.SessionStore,
	lockMgr collaborator.LockManager,
	eventSink collaborator.EventSink,
	idGen collaborator.IDGenerator,
	bridge *consensus.Bridge,
	opts ...Option,
) *Coordinator {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	repair(o)

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		ctx:       ctx,
		stop:      cancel,
		opts:      o,
		store:     sessionStore,
		lockMgr:   lockMgr,
		eventSink: eventSink,
		idGen:     idGen,
		registry:  newBranchRegistry(),
		bridge:    bridge,
	}
	go c.run()
	return c
}

// Stop halts the background sweeper. It does not close the underlying store
// or collaborators.
func (c *Coordinator) Stop() {
	c.stop()
}

// RegisterCommitter/RegisterRollbacker attach the phase-two capability for
// one branch type. Both must be registered before any branch of that type
// can be driven to completion.
func (c *Coordinator) RegisterCommitter(t session.BranchType, committer collaborator.BranchCommitter) error {
	return c.registry.registerCommitter(t, committer)
}

func (c *Coordinator) RegisterRollbacker(t session.BranchType, rollbacker collaborator.BranchRollbacker) error {
	return c.registry.registerRollbacker(t, rollbacker)
}

// AttachBridge switches this coordinator into replicated mode. Construction
// order is necessarily: build the store and FSM, construct the Coordinator
// with a nil bridge, open the consensus.Bridge passing c.onLeaderStart as
// its leadership callback, then AttachBridge the result — the callback
// needs a live Coordinator to rehydrate against, so the bridge cannot be
// built before it.
func (c *Coordinator) AttachBridge(bridge *consensus.Bridge) {
	c.bridge = bridge
}

// isReplicated reports whether this coordinator writes through the
// consensus bridge instead of directly against the store.
func (c *Coordinator) isReplicated() bool {
	return c.bridge != nil
}

// persistAddGlobal makes a freshly created global durable: a direct store
// write in KV mode, or a proposed ADD_GLOBAL_SESSION entry in replicated
// mode (the FSM's onApply inserts it into the very store instance this
// coordinator reads from, so no further local write is needed there).
func (c *Coordinator) persistAddGlobal(ctx context.Context, g *session.GlobalSession) error {
	if c.isReplicated() {
		entry, err := consensus.NewAddGlobalEntry(g)
		if err != nil {
			return wrapConsensusErr(err)
		}
		return wrapConsensusErr(c.bridge.Propose(entry, nil))
	}
	return wrapStoreErr(c.store.InsertOrUpdateGlobal(ctx, g))
}

func (c *Coordinator) persistGlobalStatus(ctx context.Context, g *session.GlobalSession) error {
	if c.isReplicated() {
		return wrapConsensusErr(c.bridge.Propose(consensus.NewUpdateGlobalStatusEntry(g.XID, g.Status), nil))
	}
	return wrapStoreErr(c.store.InsertOrUpdateGlobal(ctx, g))
}

func (c *Coordinator) persistRemoveGlobal(ctx context.Context, g *session.GlobalSession) error {
	if c.isReplicated() {
		return wrapConsensusErr(c.bridge.Propose(consensus.NewRemoveGlobalEntry(g.XID), nil))
	}
	return wrapStoreErr(c.store.DeleteGlobal(ctx, g))
}

func (c *Coordinator) persistAddBranch(ctx context.Context, b *session.BranchSession) error {
	if c.isReplicated() {
		entry, err := consensus.NewAddBranchEntry(b)
		if err != nil {
			return wrapConsensusErr(err)
		}
		return wrapConsensusErr(c.bridge.Propose(entry, nil))
	}
	return wrapStoreErr(c.store.InsertOrUpdateBranch(ctx, b))
}

func (c *Coordinator) persistBranchStatus(ctx context.Context, b *session.BranchSession) error {
	if c.isReplicated() {
		return wrapConsensusErr(c.bridge.Propose(consensus.NewUpdateBranchStatusEntry(b.XID, b.BranchID, b.Status), nil))
	}
	return wrapStoreErr(c.store.InsertOrUpdateBranch(ctx, b))
}

func (c *Coordinator) persistRemoveBranch(ctx context.Context, b *session.BranchSession) error {
	if c.isReplicated() {
		return wrapConsensusErr(c.bridge.Propose(consensus.NewRemoveBranchEntry(b.XID, b.BranchID), nil))
	}
	return wrapStoreErr(c.store.DeleteBranch(ctx, b))
}

func (c *Coordinator) addToManager(ctx context.Context, name session.SessionManagerName, g *session.GlobalSession) error {
	return wrapStoreErr(c.store.AddToManager(ctx, name, g))
}

func (c *Coordinator) removeFromManager(ctx context.Context, name session.SessionManagerName, xid string) error {
	return wrapStoreErr(c.store.RemoveFromManager(ctx, name, xid))
}

func (c *Coordinator) emit(ctx context.Context, g *session.GlobalSession, role collaborator.Role) {
	if c.eventSink == nil {
		return
	}
	now := time.Now().UnixMilli()
	ev := collaborator.GlobalTransactionEvent{
		XID:     g.XID,
		Role:    role,
		Name:    g.TransactionName,
		BeginTs: g.BeginTime,
		Status:  g.Status,
	}
	if role == collaborator.RoleCommitEnd || role == collaborator.RoleRollbackEnd {
		ev.EndTs = &now
	}
	if err := c.eventSink.Emit(ctx, ev); err != nil {
		log.WarnContextf(ctx, "emit event failed, xid: %s, role: %s, err: %v", g.XID, role, err)
	}
}
