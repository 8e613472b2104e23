package coordinator

import (
	"fmt"
	"sync"

	"github.com/distx-io/tc/collaborator"
	"github.com/distx-io/tc/session"
)

// branchRegistry maps a BranchType to its commit/rollback capability,
// grounded on the teacher's registryCenter (tccregister.go): register-once,
// read-mostly, guarded by a plain RWMutex.
type branchRegistry struct {
	mu          sync.RWMutex
	committers  map[session.BranchType]collaborator.BranchCommitter
	rollbackers map[session.BranchType]collaborator.BranchRollbacker
}

func newBranchRegistry() *branchRegistry {
	return &branchRegistry{
		committers:  make(map[session.BranchType]collaborator.BranchCommitter),
		rollbackers: make(map[session.BranchType]collaborator.BranchRollbacker),
	}
}

func (r *branchRegistry) registerCommitter(t session.BranchType, c collaborator.BranchCommitter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.committers[t]; ok {
		return fmt.Errorf("coordinator: committer already registered for branch type %s", t)
	}
	r.committers[t] = c
	return nil
}

func (r *branchRegistry) registerRollbacker(t session.BranchType, c collaborator.BranchRollbacker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rollbackers[t]; ok {
		return fmt.Errorf("coordinator: rollbacker already registered for branch type %s", t)
	}
	r.rollbackers[t] = c
	return nil
}

func (r *branchRegistry) committer(t session.BranchType) (collaborator.BranchCommitter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.committers[t]
	if !ok {
		return nil, fmt.Errorf("coordinator: no committer registered for branch type %s", t)
	}
	return c, nil
}

func (r *branchRegistry) rollbacker(t session.BranchType) (collaborator.BranchRollbacker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.rollbackers[t]
	if !ok {
		return nil, fmt.Errorf("coordinator: no rollbacker registered for branch type %s", t)
	}
	return c, nil
}
