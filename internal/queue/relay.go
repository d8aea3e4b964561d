package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	rd "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Publisher 是 Relay 的下游，生产环境为 *Producer。
type Publisher interface {
	Publish(ctx context.Context, ev CheckoutEvent) error
}

// Relay 将 Redis Stream 中的结算事件异步转发到 Kafka。
// 发布成功后才 ACK，失败则保留消息等待重试。
type Relay struct {
	rdb       *rd.Client
	publisher Publisher

	stream   string
	group    string
	consumer string
}

func NewRelay(rdb *rd.Client, publisher Publisher, stream, group, consumer string) *Relay {
	return &Relay{
		rdb:       rdb,
		publisher: publisher,
		stream:    stream,
		group:     group,
		consumer:  consumer,
	}
}

func (r *Relay) Run(ctx context.Context) {
	log := logrus.WithField("stream", r.stream)
	if err := r.ensureGroup(ctx); err != nil {
		log.WithError(err).Error("relay ensure group")
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}

		// 先处理本消费者的 pending，再读新消息
		msgs, err := r.readGroup(ctx, "0", 0)
		if err == nil && len(msgs) == 0 {
			msgs, err = r.readGroup(ctx, ">", 2*time.Second)
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			log.WithError(err).Warn("relay read")
			time.Sleep(300 * time.Millisecond)
			continue
		}

		for _, xm := range msgs {
			if err := r.processOne(ctx, xm); err != nil {
				log.WithError(err).WithField("id", xm.ID).Warn("relay process message")
				time.Sleep(200 * time.Millisecond)
				break
			}
		}
	}
}

func (r *Relay) ensureGroup(ctx context.Context) error {
	err := r.rdb.XGroupCreateMkStream(ctx, r.stream, r.group, "0").Err()
	if err == nil || strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

func (r *Relay) readGroup(ctx context.Context, streamID string, block time.Duration) ([]rd.XMessage, error) {
	streams, err := r.rdb.XReadGroup(ctx, &rd.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.consumer,
		Streams:  []string{r.stream, streamID},
		Count:    16,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]rd.XMessage, 0, 16)
	for _, s := range streams {
		out = append(out, s.Messages...)
	}
	return out, nil
}

func (r *Relay) processOne(ctx context.Context, xm rd.XMessage) error {
	ev, err := parseCheckoutEvent(xm.Values)
	if err != nil {
		// 脏消息直接 ACK 丢弃
		logrus.WithError(err).WithField("id", xm.ID).Warn("relay drop malformed event")
		if ackErr := r.ackAndDelete(ctx, xm.ID); ackErr != nil {
			return fmt.Errorf("parse failed: %v, ack failed: %w", err, ackErr)
		}
		return nil
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.publisher.Publish(pubCtx, ev); err != nil {
		return err
	}
	return r.ackAndDelete(ctx, xm.ID)
}

func (r *Relay) ackAndDelete(ctx context.Context, id string) error {
	pipe := r.rdb.TxPipeline()
	pipe.XAck(ctx, r.stream, r.group, id)
	pipe.XDel(ctx, r.stream, id)
	_, err := pipe.Exec(ctx)
	return err
}

func parseCheckoutEvent(values map[string]interface{}) (CheckoutEvent, error) {
	var ev CheckoutEvent
	var err error
	if ev.CheckoutID, err = getStreamString(values, "checkout_id"); err != nil {
		return CheckoutEvent{}, err
	}
	if ev.SessionID, err = getStreamString(values, "session_id"); err != nil {
		return CheckoutEvent{}, err
	}
	if ev.Kind, err = getStreamString(values, "kind"); err != nil {
		return CheckoutEvent{}, err
	}
	// message 可为空
	ev.Message, _ = getStreamString(values, "message")

	succeededStr, err := getStreamString(values, "succeeded")
	if err != nil {
		return CheckoutEvent{}, err
	}
	failedStr, err := getStreamString(values, "failed")
	if err != nil {
		return CheckoutEvent{}, err
	}
	if ev.Succeeded, err = strconv.Atoi(succeededStr); err != nil {
		return CheckoutEvent{}, fmt.Errorf("invalid succeeded %q", succeededStr)
	}
	if ev.Failed, err = strconv.Atoi(failedStr); err != nil {
		return CheckoutEvent{}, fmt.Errorf("invalid failed %q", failedStr)
	}

	if err := ev.Validate(); err != nil {
		return CheckoutEvent{}, err
	}
	return ev, nil
}

func getStreamString(values map[string]interface{}, key string) (string, error) {
	v, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing field %s", key)
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	default:
		return "", fmt.Errorf("unsupported field type %s: %T", key, v)
	}
}
