package redis

import (
	"context"
	"strconv"
	"time"

	rd "github.com/redis/go-redis/v9"
)

const (
	// CheckoutPending 表示结算已开始，订单行仍在提交。
	CheckoutPending = "pending"
	// CheckoutDone 表示全部订单行都有结果（终态）。
	CheckoutDone = "done"
)

// CheckoutState 对应 Redis 内的 checkout 状态结构。
type CheckoutState struct {
	CheckoutID string `json:"checkout_id"`
	Status     string `json:"status"`
	Kind       string `json:"kind,omitempty"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	Message    string `json:"message,omitempty"`
}

// GetCheckoutState 查询 checkout_id 当前状态。found=false 表示 key 不存在。
func GetCheckoutState(ctx context.Context, rdb *rd.Client, checkoutID string) (CheckoutState, bool, error) {
	m, err := rdb.HGetAll(ctx, CheckoutStateKey(checkoutID)).Result()
	if err != nil {
		return CheckoutState{}, false, err
	}
	if len(m) == 0 {
		return CheckoutState{}, false, nil
	}

	out := CheckoutState{
		CheckoutID: checkoutID,
		Status:     m["status"],
		Kind:       m["kind"],
		Message:    m["message"],
	}
	out.Succeeded, _ = strconv.Atoi(m["succeeded"])
	out.Failed, _ = strconv.Atoi(m["failed"])
	if out.Status == "" {
		out.Status = CheckoutPending
	}
	return out, true, nil
}

// PutCheckoutState 更新 checkout 状态，并刷新 key TTL。
func PutCheckoutState(ctx context.Context, rdb *rd.Client, st CheckoutState, ttl time.Duration) error {
	key := CheckoutStateKey(st.CheckoutID)
	pipe := rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"checkout_id", st.CheckoutID,
		"status", st.Status,
		"kind", st.Kind,
		"succeeded", st.Succeeded,
		"failed", st.Failed,
		"message", st.Message,
	)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}
