package session

import "github.com/shamaton/msgpack"

// GlobalDO is the wire/durable representation of a GlobalSession (spec §6's
// JSON value schema for the KV backend; also the binary payload shape for
// consensus entries and snapshots, where it is msgpack-encoded instead).
type GlobalDO struct {
	XID                     string `json:"xid" msgpack:"xid"`
	TransactionID           int64  `json:"transactionId" msgpack:"transactionId"`
	Status                  int32  `json:"status" msgpack:"status"`
	ApplicationID           string `json:"applicationId" msgpack:"applicationId"`
	BeginTime               int64  `json:"beginTime" msgpack:"beginTime"`
	Timeout                 int64  `json:"timeout" msgpack:"timeout"`
	TransactionName         string `json:"transactionName" msgpack:"transactionName"`
	TransactionServiceGroup string `json:"transactionServiceGroup" msgpack:"transactionServiceGroup"`
	ApplicationData         []byte `json:"applicationData" msgpack:"applicationData"`
	Active                  bool   `json:"active" msgpack:"active"`
}

// BranchDO is the wire/durable representation of a BranchSession.
type BranchDO struct {
	XID             string `json:"xid" msgpack:"xid"`
	BranchID        int64  `json:"branchId" msgpack:"branchId"`
	BranchType      string `json:"branchType" msgpack:"branchType"`
	ClientID        string `json:"clientId" msgpack:"clientId"`
	ResourceGroupID string `json:"resourceGroupId" msgpack:"resourceGroupId"`
	TransactionID   int64  `json:"transactionId" msgpack:"transactionId"`
	ApplicationData []byte `json:"applicationData" msgpack:"applicationData"`
	ResourceID      string `json:"resourceId" msgpack:"resourceId"`
	Status          int32  `json:"status" msgpack:"status"`
	LockKey         string `json:"lockKey" msgpack:"lockKey"`
}

// ToDO projects a GlobalSession onto its durable representation.
func (g *GlobalSession) ToDO() *GlobalDO {
	return &GlobalDO{
		XID:                     g.XID,
		TransactionID:           g.TransactionID,
		Status:                  int32(g.Status),
		ApplicationID:           g.ApplicationID,
		BeginTime:               g.BeginTime,
		Timeout:                 g.TimeoutMs,
		TransactionName:         g.TransactionName,
		TransactionServiceGroup: g.TransactionServiceGroup,
		ApplicationData:         g.ApplicationData,
		Active:                  g.Active,
	}
}

// GlobalFromDO reconstructs a GlobalSession (with no branches attached yet)
// from its durable representation.
func GlobalFromDO(do *GlobalDO) *GlobalSession {
	return &GlobalSession{
		XID:                     do.XID,
		TransactionID:           do.TransactionID,
		ApplicationID:           do.ApplicationID,
		TransactionServiceGroup: do.TransactionServiceGroup,
		TransactionName:         do.TransactionName,
		TimeoutMs:               do.Timeout,
		BeginTime:               do.BeginTime,
		ApplicationData:         do.ApplicationData,
		Status:                  GlobalStatus(do.Status),
		Active:                  do.Active,
	}
}

// ToDO projects a BranchSession onto its durable representation.
func (b *BranchSession) ToDO() *BranchDO {
	return &BranchDO{
		XID:             b.XID,
		BranchID:        b.BranchID,
		BranchType:      string(b.BranchType),
		ClientID:        b.ClientID,
		ResourceGroupID: b.ResourceGroupID,
		TransactionID:   b.TransactionID,
		ApplicationData: b.ApplicationData,
		ResourceID:      b.ResourceID,
		Status:          int32(b.Status),
		LockKey:         b.LockKey,
	}
}

// BranchFromDO reconstructs a BranchSession from its durable representation.
func BranchFromDO(do *BranchDO) *BranchSession {
	return &BranchSession{
		XID:             do.XID,
		BranchID:        do.BranchID,
		TransactionID:   do.TransactionID,
		BranchType:      BranchType(do.BranchType),
		ResourceID:      do.ResourceID,
		ResourceGroupID: do.ResourceGroupID,
		ClientID:        do.ClientID,
		ApplicationData: do.ApplicationData,
		LockKey:         do.LockKey,
		Status:          BranchStatus(do.Status),
	}
}

// EncodeGlobal produces the binary payload used for consensus entries and
// snapshot bytes — the language-neutral encoding spec §6 requires (msgpack
// standing in for the original deployment's Hessian-2).
func EncodeGlobal(g *GlobalSession) ([]byte, error) {
	return msgpack.Encode(g.ToDO())
}

// DecodeGlobal is the inverse of EncodeGlobal.
func DecodeGlobal(data []byte) (*GlobalSession, error) {
	var do GlobalDO
	if err := msgpack.Decode(data, &do); err != nil {
		return nil, err
	}
	return GlobalFromDO(&do), nil
}

// EncodeBranch produces the binary payload for a single branch.
func EncodeBranch(b *BranchSession) ([]byte, error) {
	return msgpack.Encode(b.ToDO())
}

// DecodeBranch is the inverse of EncodeBranch.
func DecodeBranch(data []byte) (*BranchSession, error) {
	var do BranchDO
	if err := msgpack.Decode(data, &do); err != nil {
		return nil, err
	}
	return BranchFromDO(&do), nil
}
