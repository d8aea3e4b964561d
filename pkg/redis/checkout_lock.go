package redis

import (
	"context"
	"time"

	rd "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// luaReleaseCheckoutLockIfMatch 仅当锁值匹配 checkout_id 时才删除，避免误删新结算的锁。
const luaReleaseCheckoutLockIfMatch = `
local lockKey = KEYS[1]
local checkoutID = ARGV[1]
if redis.call('GET', lockKey) == checkoutID then
  return redis.call('DEL', lockKey)
end
return 0
`

// AcquireCheckoutLock 以 SETNX 占位，返回 false 表示该会话已有结算在进行。
func AcquireCheckoutLock(ctx context.Context, rdb *rd.Client, sessionID, checkoutID string, ttl time.Duration) (bool, error) {
	return rdb.SetNX(ctx, CheckoutLockKey(sessionID), checkoutID, ttl).Result()
}

// ReleaseCheckoutLockIfMatch 安全释放会话结算锁。
func ReleaseCheckoutLockIfMatch(ctx context.Context, rdb *rd.Client, sessionID, checkoutID string) error {
	lockKey := CheckoutLockKey(sessionID)
	_, err := rdb.Eval(ctx, luaReleaseCheckoutLockIfMatch, []string{lockKey}, checkoutID).Int()
	return err
}

// luaExtendCheckoutLockIfMatch 仅当锁仍属于该 checkout_id 时续期（毫秒）。
const luaExtendCheckoutLockIfMatch = `
local lockKey = KEYS[1]
local checkoutID = ARGV[1]
if redis.call('GET', lockKey) == checkoutID then
  return redis.call('PEXPIRE', lockKey, ARGV[2])
end
return 0
`

// ExtendCheckoutLockIfMatch 续期会话结算锁，返回 false 表示锁已不属于该 checkout。
func ExtendCheckoutLockIfMatch(ctx context.Context, rdb *rd.Client, sessionID, checkoutID string, ttl time.Duration) (bool, error) {
	lockKey := CheckoutLockKey(sessionID)
	n, err := rdb.Eval(ctx, luaExtendCheckoutLockIfMatch, []string{lockKey}, checkoutID, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// KeepCheckoutLock 每隔 every 续期一次锁，直到返回的 stop 被调用。
// 订单提交没有超时，锁的有效期跟随结算本身。
func KeepCheckoutLock(ctx context.Context, rdb *rd.Client, sessionID, checkoutID string, ttl, every time.Duration) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				held, err := ExtendCheckoutLockIfMatch(ctx, rdb, sessionID, checkoutID, ttl)
				if err != nil {
					logrus.WithError(err).WithField("checkout_id", checkoutID).Warn("extend checkout lock")
					continue
				}
				if !held {
					logrus.WithField("checkout_id", checkoutID).Warn("checkout lock lost")
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

// CheckoutLocked 判断会话当前是否有结算在进行。
func CheckoutLocked(ctx context.Context, rdb *rd.Client, sessionID string) (bool, error) {
	n, err := rdb.Exists(ctx, CheckoutLockKey(sessionID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
