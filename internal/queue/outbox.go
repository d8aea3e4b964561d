package queue

import (
	"context"
	"fmt"

	rd "github.com/redis/go-redis/v9"
)

// Outbox 把结算事件追加到 Redis Stream，由 Relay 异步转发到 Kafka。
type Outbox struct {
	rdb    *rd.Client
	stream string
}

func NewOutbox(rdb *rd.Client, stream string) *Outbox {
	return &Outbox{rdb: rdb, stream: stream}
}

func (o *Outbox) Append(ctx context.Context, ev CheckoutEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	err := o.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: o.stream,
		Values: map[string]any{
			"checkout_id": ev.CheckoutID,
			"session_id":  ev.SessionID,
			"kind":        ev.Kind,
			"succeeded":   ev.Succeeded,
			"failed":      ev.Failed,
			"message":     ev.Message,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", o.stream, err)
	}
	return nil
}
