package queue

import "fmt"

// CheckoutEvent 是写入 outbox / Kafka 的结算完成事件，每次结算一条。
type CheckoutEvent struct {
	CheckoutID string `json:"checkout_id"`
	SessionID  string `json:"session_id"`
	Kind       string `json:"kind"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	Message    string `json:"message"`
}

// Validate 做最小字段校验，防止消费者处理脏消息。
func (m CheckoutEvent) Validate() error {
	if m.CheckoutID == "" {
		return fmt.Errorf("checkout_id is required")
	}
	if m.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if m.Kind == "" {
		return fmt.Errorf("kind is required")
	}
	if m.Succeeded < 0 || m.Failed < 0 {
		return fmt.Errorf("counts must be >= 0")
	}
	return nil
}
