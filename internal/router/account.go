package router

import (
	"errors"
	"net/http"
	"strconv"

	"giftshop/internal/catalog"
	"giftshop/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const historyLimit = 50

func listWishes(cat *catalog.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := strconv.Atoi(c.DefaultQuery("page", "0"))
		if err != nil || page < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "invalid page"})
			return
		}
		list, err := cat.Wishlist(c.Request.Context(), bearerToken(c), page)
		if err != nil {
			upstreamError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

func deleteWish(cat *catalog.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		if err := cat.DeleteWish(c.Request.Context(), bearerToken(c), id); err != nil {
			upstreamError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "deleted"})
	}
}

// listHistory 返回本会话最近的结算记录（由 Kafka 消费者异步写入，可能有延迟）。
func listHistory(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := sessionID(c)
		if !ok {
			return
		}
		var list []model.CheckoutRecord
		err := db.WithContext(c.Request.Context()).
			Where(&model.CheckoutRecord{SessionID: session}).
			Order("id desc").
			Limit(historyLimit).
			Find(&list).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}
