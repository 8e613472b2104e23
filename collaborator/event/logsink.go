package event

import (
	"context"

	"github.com/distx-io/tc/collaborator"
	"github.com/distx-io/tc/log"
)

// LoggingEventSink emits every event through the structured logger. Useful
// as a zero-dependency default and for tests; GormEventSink is the durable
// option.
type LoggingEventSink struct{}

func (LoggingEventSink) Emit(ctx context.Context, ev collaborator.GlobalTransactionEvent) error {
	log.InfoContextf(ctx, "tx event xid=%s role=%s name=%s status=%s", ev.XID, ev.Role, ev.Name, ev.Status)
	return nil
}
