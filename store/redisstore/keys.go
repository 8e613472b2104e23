package redisstore

import "github.com/spf13/cast"

// Key schema, literal per spec §4.2 — bit-for-bit compatible with the
// existing deployment, so these prefixes are not configurable.
const (
	globalKeyPrefix       = "SEATA_GLOBAL_"
	transactionIDKeyPrefix = "SEATA_TRANSACTION_ID_GLOBAL_"
	branchListKeyPrefix   = "SEATA_XID_BRANCHS_"
	branchKeyPrefix       = "SEATA_BRANCH_"
)

func globalKey(xid string) string {
	return globalKeyPrefix + xid
}

func transactionIDKey(transactionID int64) string {
	return transactionIDKeyPrefix + cast.ToString(transactionID)
}

func branchListKey(xid string) string {
	return branchListKeyPrefix + xid
}

func branchKey(branchID int64) string {
	return branchKeyPrefix + cast.ToString(branchID)
}
