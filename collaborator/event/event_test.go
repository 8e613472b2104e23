package event

import (
	"context"
	"database/sql/driver"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/distx-io/tc/collaborator"
	"github.com/distx-io/tc/session"
)

func newSinkWithMock(t *testing.T) (*GormEventSink, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	mock.ExpectQuery("SELECT VERSION()").WillReturnRows(sqlmock.NewRows([]string{"VERSION"}).AddRow("1"))

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn: db,
	}), &gorm.Config{
		DisableAutomaticPing: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	return NewGormEventSink(gdb), mock, func() { db.Close() }
}

func Test_GormEventSink_Emit_BeginEvent(t *testing.T) {
	sink, mock, closeDB := newSinkWithMock(t)
	defer closeDB()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `tc_event`").WillReturnResult(driver.ResultNoRows)
	mock.ExpectCommit()

	err := sink.Emit(context.Background(), collaborator.GlobalTransactionEvent{
		XID:     "xid-1",
		Role:    collaborator.RoleBegin,
		Name:    "order-service",
		BeginTs: 1000,
		Status:  session.Begin,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_GormEventSink_Emit_EndEventSetsEndTs(t *testing.T) {
	sink, mock, closeDB := newSinkWithMock(t)
	defer closeDB()

	endTs := int64(2000)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `tc_event`").WillReturnResult(driver.ResultNoRows)
	mock.ExpectCommit()

	err := sink.Emit(context.Background(), collaborator.GlobalTransactionEvent{
		XID:     "xid-1",
		Role:    collaborator.RoleCommitEnd,
		Name:    "order-service",
		BeginTs: 1000,
		EndTs:   &endTs,
		Status:  session.Committed,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_GormEventSink_Emit_DBError_IsPropagated(t *testing.T) {
	sink, mock, closeDB := newSinkWithMock(t)
	defer closeDB()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `tc_event`").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := sink.Emit(context.Background(), collaborator.GlobalTransactionEvent{
		XID:  "xid-2",
		Role: collaborator.RoleBegin,
	})
	assert.Error(t, err)
}
