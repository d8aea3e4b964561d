package queue

import (
	"context"
	"encoding/json"
	"strings"

	"giftshop/internal/model"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Consumer 消费结算事件，写入 checkout_records 作为结算历史。
type Consumer struct {
	r  *kafka.Reader
	db *gorm.DB
}

func NewConsumer(brokers []string, topic, groupID string, db *gorm.DB) *Consumer {
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		db: db,
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			return // ctx cancel / 连接断开等
		}
		if err := Record(ctx, c.db, m.Value); err != nil {
			logrus.WithError(err).WithField("offset", m.Offset).Warn("consumer record checkout")
		}
	}
}

// Record 解析一条事件并落库。重复的 checkout_id 视为已处理。
func Record(ctx context.Context, db *gorm.DB, value []byte) error {
	var ev CheckoutEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return err
	}
	if err := ev.Validate(); err != nil {
		return err
	}

	rec := &model.CheckoutRecord{
		CheckoutID: ev.CheckoutID,
		SessionID:  ev.SessionID,
		Kind:       ev.Kind,
		Succeeded:  ev.Succeeded,
		Failed:     ev.Failed,
		Message:    ev.Message,
	}
	err := db.WithContext(ctx).Create(rec).Error
	if errorsLikeUnique(err) {
		return nil
	}
	return err
}

func errorsLikeUnique(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "UNIQUE") || strings.Contains(s, "unique")
}
