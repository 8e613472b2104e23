// Package consensus is the thin bridge between coordinator mutations and
// the replicated log (spec §4.4): entry encoding, the raft.FSM adapter
// around store/memstore, and the leader-side propose/onCommitted flow.
package consensus

import (
	"github.com/shamaton/msgpack"

	"github.com/distx-io/tc/session"
)

// MsgType names the kind of session-sync message carried by one log entry.
type MsgType string

const (
	AddGlobalSession          MsgType = "ADD_GLOBAL_SESSION"
	UpdateGlobalSessionStatus MsgType = "UPDATE_GLOBAL_SESSION_STATUS"
	RemoveGlobalSession       MsgType = "REMOVE_GLOBAL_SESSION"
	AddBranchSession          MsgType = "ADD_BRANCH_SESSION"
	UpdateBranchSessionStatus MsgType = "UPDATE_BRANCH_SESSION_STATUS"
	RemoveBranchSession       MsgType = "REMOVE_BRANCH_SESSION"
	AcquireLock               MsgType = "ACQUIRE_LOCK"
	ReleaseGlobalSessionLock  MsgType = "RELEASE_GLOBAL_SESSION_LOCK"
	DoCommit                  MsgType = "DO_COMMIT"
	DoRollback                MsgType = "DO_ROLLBACK"
)

// Entry is the wire shape of every log entry: msgType plus the destination
// session map (sessionName, "" meaning root) plus a msgType-specific DTO.
type Entry struct {
	MsgType     MsgType                    `msgpack:"msgType"`
	SessionName session.SessionManagerName `msgpack:"sessionName"`
	Payload     []byte                     `msgpack:"payload"`
}

// EncodeEntry is the binary form proposed to the log.
func EncodeEntry(e *Entry) ([]byte, error) {
	return msgpack.Encode(e)
}

// DecodeEntry is the inverse of EncodeEntry.
func DecodeEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := msgpack.Decode(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Payload DTOs, one per MsgType. Encoded into Entry.Payload with msgpack.

type globalPayload struct {
	Global []byte `msgpack:"global"` // session.EncodeGlobal output
}

type globalStatusPayload struct {
	XID    string `msgpack:"xid"`
	Status int32  `msgpack:"status"`
}

type xidPayload struct {
	XID string `msgpack:"xid"`
}

type branchPayload struct {
	Branch []byte `msgpack:"branch"` // session.EncodeBranch output
}

type branchStatusPayload struct {
	XID      string `msgpack:"xid"`
	BranchID int64  `msgpack:"branchId"`
	Status   int32  `msgpack:"status"`
}

type branchRefPayload struct {
	XID      string `msgpack:"xid"`
	BranchID int64  `msgpack:"branchId"`
}

// doPayload carries the batched outcome doGlobalCommit/doGlobalRollback
// observed on the leader's first pass: every branch's terminal status plus
// the global's resulting status, so followers apply the identical terminal
// transition without redriving any branch capability themselves.
type doPayload struct {
	XID            string           `msgpack:"xid"`
	BranchStatuses map[int64]int32  `msgpack:"branchStatuses"`
	FinalStatus    int32            `msgpack:"finalStatus"`
}

func encodePayload(v interface{}) []byte {
	b, err := msgpack.Encode(v)
	if err != nil {
		panic(err) // payload types are fixed internal DTOs; encode failure is a programming error
	}
	return b
}
