package router

import (
	"context"
	"errors"
	"net/http"
	"time"

	"giftshop/internal/checkout"
	"giftshop/internal/draft"
	"giftshop/internal/model"
	rediskey "giftshop/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const checkoutStateTTL = 24 * time.Hour

// 结算期间每 checkoutLockRefresh 续期一次锁；进程崩溃时锁最多残留 checkoutLockTTL。
var (
	checkoutLockTTL     = 2 * time.Minute
	checkoutLockRefresh = 40 * time.Second
)

func getDrafts(store draft.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := sessionID(c)
		if !ok {
			return
		}
		list, err := store.Get(c.Request.Context(), session)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

// rejectWhileCheckingOut 结算进行中时拒绝修改草稿，结算结束会按结果回写草稿。
func rejectWhileCheckingOut(c *gin.Context, rdb *rd.Client, session string) bool {
	busy, err := rediskey.CheckoutLocked(c.Request.Context(), rdb, session)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
		return true
	}
	if busy {
		c.JSON(http.StatusConflict, gin.H{"code": 409, "msg": "a checkout is in progress for this session"})
		return true
	}
	return false
}

func addDraft(rdb *rd.Client, store draft.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := sessionID(c)
		if !ok {
			return
		}
		var req model.OrderLineDraft
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		if rejectWhileCheckingOut(c, rdb, session) {
			return
		}
		list, err := draft.Add(c.Request.Context(), store, session, req)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

func clearDrafts(rdb *rd.Client, store draft.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := sessionID(c)
		if !ok || rejectWhileCheckingOut(c, rdb, session) {
			return
		}
		if err := store.Clear(c.Request.Context(), session); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "cleared"})
	}
}

// postCheckout 是结算入口。
// 1. 会话锁：同一会话同时只允许一次结算，防止同一草稿被重复下单；提交期间持续续期
// 2. 写 pending 状态
// 3. 逐行提交并汇总（与客户端连接解耦，断开也会跑完）
// 4. 写 done 状态并返回汇总
func postCheckout(rdb *rd.Client, orch *checkout.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := sessionID(c)
		if !ok {
			return
		}
		var form model.OrderFormState
		if err := c.ShouldBindJSON(&form); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}

		// 已开始的提交不随请求取消
		ctx := context.WithoutCancel(c.Request.Context())
		checkoutID := uuid.NewString()
		log := logrus.WithFields(logrus.Fields{"checkout_id": checkoutID, "session_id": session})

		locked, err := rediskey.AcquireCheckoutLock(ctx, rdb, session, checkoutID, checkoutLockTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		if !locked {
			c.JSON(http.StatusConflict, gin.H{"code": 409, "msg": "a checkout is already in progress for this session"})
			return
		}
		stopKeeping := rediskey.KeepCheckoutLock(ctx, rdb, session, checkoutID, checkoutLockTTL, checkoutLockRefresh)
		defer func() {
			stopKeeping()
			if err := rediskey.ReleaseCheckoutLockIfMatch(ctx, rdb, session, checkoutID); err != nil {
				log.WithError(err).Warn("release checkout lock")
			}
		}()

		pending := rediskey.CheckoutState{CheckoutID: checkoutID, Status: rediskey.CheckoutPending}
		if err := rediskey.PutCheckoutState(ctx, rdb, pending, checkoutStateTTL); err != nil {
			log.WithError(err).Warn("store pending checkout state")
		}

		report, err := orch.CheckoutWithID(ctx, checkoutID, session, bearerToken(c), form)

		done := rediskey.CheckoutState{
			CheckoutID: checkoutID,
			Status:     rediskey.CheckoutDone,
			Kind:       string(report.Kind),
			Succeeded:  report.Succeeded,
			Failed:     report.Failed,
			Message:    report.Message,
		}
		if err := rediskey.PutCheckoutState(ctx, rdb, done, checkoutStateTTL); err != nil {
			log.WithError(err).Warn("store checkout state")
		}

		var ve *checkout.ValidationError
		switch {
		case errors.As(err, &ve):
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": ve.Message, "data": report})
		case errors.Is(err, checkout.ErrNoDrafts):
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error(), "data": report})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": report.Message, "data": report})
		default:
			c.JSON(http.StatusOK, gin.H{"code": 0, "msg": report.Message, "data": report})
		}
	}
}

// getCheckout 根据 checkout_id 查询结算状态。
func getCheckout(rdb *rd.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, found, err := rediskey.GetCheckoutState(c.Request.Context(), rdb, c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "checkout not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": st})
	}
}
