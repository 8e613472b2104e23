// Package event implements the EventSink collaborator (spec §4.5) as a
// durable, GORM-backed audit log, adapted from the teacher's
// example/dao/txrecord.go, applied to transaction lifecycle events instead of
// TCC try-status records. Rows are only appended; none is locked or updated.
package event

import (
	"context"

	"gorm.io/gorm"

	"github.com/distx-io/tc/collaborator"
)

// EventPO is the persisted row for one GlobalTransactionEvent.
type EventPO struct {
	gorm.Model
	XID     string `gorm:"column:xid;index"`
	Role    string `gorm:"column:role"`
	Name    string `gorm:"column:name"`
	BeginTs int64  `gorm:"column:begin_ts"`
	EndTs   int64  `gorm:"column:end_ts"`
	Status  int32  `gorm:"column:status"`
}

func (EventPO) TableName() string {
	return "tc_event"
}

// GormEventSink appends every GlobalTransactionEvent as a row.
type GormEventSink struct {
	db *gorm.DB
}

// NewGormEventSink wraps an existing *gorm.DB. The caller owns migrations;
// NewGormEventSink does not auto-migrate.
func NewGormEventSink(db *gorm.DB) *GormEventSink {
	return &GormEventSink{db: db}
}

// Emit persists one event row.
func (s *GormEventSink) Emit(ctx context.Context, ev collaborator.GlobalTransactionEvent) error {
	po := EventPO{
		XID:     ev.XID,
		Role:    string(ev.Role),
		Name:    ev.Name,
		BeginTs: ev.BeginTs,
		Status:  int32(ev.Status),
	}
	if ev.EndTs != nil {
		po.EndTs = *ev.EndTs
	}
	return s.db.WithContext(ctx).Create(&po).Error
}
