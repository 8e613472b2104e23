package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_GlobalSession_AddRemoveGetBranch(t *testing.T) {
	g := New("xid-1", 1, "app", "group", "name", 1000, 0, nil)
	assert.Equal(t, 0, g.BranchCount())

	b1 := &BranchSession{BranchID: 1, BranchType: AT}
	b2 := &BranchSession{BranchID: 2, BranchType: TCC}
	g.AddBranch(b1)
	g.AddBranch(b2)
	assert.Equal(t, 2, g.BranchCount())
	// AddBranch stamps the owning global's identity onto the branch
	assert.Equal(t, g.XID, b1.XID)
	assert.Equal(t, g.TransactionID, b1.TransactionID)

	assert.Equal(t, b1, g.GetBranch(1))
	assert.Nil(t, g.GetBranch(99))

	g.RemoveBranch(1)
	assert.Equal(t, 1, g.BranchCount())
	assert.Nil(t, g.GetBranch(1))
	assert.Equal(t, b2, g.GetBranch(2))

	// removing an absent branch is a no-op
	g.RemoveBranch(404)
	assert.Equal(t, 1, g.BranchCount())
}

func Test_GlobalSession_Branches_IsASnapshot(t *testing.T) {
	g := New("xid-2", 1, "app", "group", "name", 1000, 0, nil)
	g.AddBranch(&BranchSession{BranchID: 1, BranchType: AT})

	snap := g.Branches()
	snap[0] = &BranchSession{BranchID: 999}

	assert.Equal(t, int64(1), g.GetBranch(1).BranchID)
}

func Test_GlobalSession_CanBeCommittedAsync(t *testing.T) {
	g := New("xid-3", 1, "app", "group", "name", 1000, 0, nil)
	assert.True(t, g.CanBeCommittedAsync(), "no branches: vacuously async-capable")

	g.AddBranch(&BranchSession{BranchID: 1, BranchType: AT})
	assert.True(t, g.CanBeCommittedAsync())

	g.AddBranch(&BranchSession{BranchID: 2, BranchType: TCC})
	assert.False(t, g.CanBeCommittedAsync(), "one TCC branch forces synchronous commit")
}

func Test_GlobalSession_Clone_IsIndependent(t *testing.T) {
	g := New("xid-4", 1, "app", "group", "name", 1000, 0, nil)
	g.AddBranch(&BranchSession{BranchID: 1, BranchType: AT})
	g.Status = Committing

	cp := g.Clone()
	assert.Equal(t, g.XID, cp.XID)
	assert.Equal(t, g.Status, cp.Status)
	assert.Equal(t, 1, cp.BranchCount())

	cp.Status = Committed
	cp.RemoveBranch(1)
	assert.Equal(t, Committing, g.Status, "clone mutation must not affect the original")
	assert.Equal(t, 1, g.BranchCount())
}
