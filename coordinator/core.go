package coordinator

import (
	"context"
	"time"

	"github.com/distx-io/tc/collaborator"
	"github.com/distx-io/tc/session"
)

// Begin creates a GlobalSession in status Begin and persists it. If xid is
// empty a fresh one is minted; a caller-supplied xid is used verbatim (the
// path a replica takes when re-driving a transaction it already knows
// about).
func (c *Coordinator) Begin(ctx context.Context, applicationID, group, name string, timeoutMs int64, xid string) (string, error) {
	if xid == "" {
		xid = c.idGen.NextXID()
	}
	transactionID := c.idGen.NextID()
	if timeoutMs <= 0 {
		timeoutMs = c.opts.DefaultTimeout.Milliseconds()
	}

	g := session.New(xid, transactionID, applicationID, group, name, timeoutMs, time.Now().UnixMilli(), nil)
	if err := c.persistAddGlobal(ctx, g); err != nil {
		return "", err
	}
	c.emit(ctx, g, collaborator.RoleBegin)
	return xid, nil
}

// BranchRegister enlists one branch under an existing, still-active global.
func (c *Coordinator) BranchRegister(
	ctx context.Context,
	xid string,
	branchType session.BranchType,
	resourceID, clientID string,
	applicationData []byte,
	lockKey string,
	branchID int64,
) (int64, error) {
	g, err := c.store.ReadGlobal(ctx, xid, false)
	if err != nil {
		return 0, wrapStoreErr(err)
	}
	if g == nil {
		return 0, session.ErrTransactionNotExist
	}

	g.Lock()
	defer g.Unlock()

	if !g.Active {
		return 0, session.ErrGlobalTransactionNotActive
	}

	if branchID == 0 {
		branchID = c.idGen.NextID()
	}
	b := &session.BranchSession{
		XID:             xid,
		BranchID:        branchID,
		TransactionID:   g.TransactionID,
		BranchType:      branchType,
		ResourceID:      resourceID,
		ClientID:        clientID,
		ApplicationData: applicationData,
		LockKey:         lockKey,
		Status:          session.Registered,
	}

	ok, err := c.lockMgr.Acquire(ctx, b)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, session.ErrLockConflict
	}

	g.AddBranch(b)
	if err := c.persistAddBranch(ctx, b); err != nil {
		return 0, err
	}
	return branchID, nil
}

// BranchReport records a client-observed branch status, e.g. a resource
// manager confirming its own phase-one outcome out of band.
func (c *Coordinator) BranchReport(ctx context.Context, xid string, branchID int64, status session.BranchStatus, applicationData []byte) error {
	g, err := c.store.ReadGlobal(ctx, xid, true)
	if err != nil {
		return wrapStoreErr(err)
	}
	if g == nil {
		return session.ErrTransactionNotExist
	}

	g.Lock()
	b := g.GetBranch(branchID)
	if b == nil {
		g.Unlock()
		return session.ErrTransactionNotExist
	}
	b.Status = status
	if applicationData != nil {
		b.ApplicationData = applicationData
	}
	g.Unlock()

	return c.persistBranchStatus(ctx, b)
}

// LockQuery delegates to the lock collaborator.
func (c *Coordinator) LockQuery(ctx context.Context, branchType session.BranchType, resourceID, xid, lockKey string) (bool, error) {
	return c.lockMgr.QueryLock(ctx, branchType, resourceID, xid, lockKey)
}

// GetStatus returns Finished for any xid the store no longer knows about.
func (c *Coordinator) GetStatus(ctx context.Context, xid string) (session.GlobalStatus, error) {
	g, err := c.store.ReadGlobal(ctx, xid, false)
	if err != nil {
		return 0, wrapStoreErr(err)
	}
	if g == nil {
		return session.Finished, nil
	}
	g.Lock()
	defer g.Unlock()
	return g.Status, nil
}

// GlobalReport is a no-op hook: saga-style client-asserted final status is
// explicitly out of scope, so it only ever echoes the current status back.
func (c *Coordinator) GlobalReport(ctx context.Context, xid string, status session.GlobalStatus) (session.GlobalStatus, error) {
	return c.GetStatus(ctx, xid)
}
