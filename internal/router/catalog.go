package router

import (
	"errors"
	"net/http"
	"strconv"

	"giftshop/internal/catalog"
	"giftshop/internal/draft"
	"giftshop/internal/model"
	"giftshop/internal/pricing"

	"github.com/gin-gonic/gin"
)

func listCategories(cat *catalog.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := cat.Categories(c.Request.Context())
		if err != nil {
			upstreamError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

func getCategory(cat *catalog.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		list, err := cat.Categories(c.Request.Context())
		if err != nil {
			upstreamError(c, err)
			return
		}
		found, ok := catalog.FindCategory(list, id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "category not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": found})
	}
}

// getProduct 返回商品详情和选项，供商品页一次渲染。
func getProduct(cat *catalog.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		ctx := c.Request.Context()
		detail, err := cat.ProductDetail(ctx, id)
		if err != nil {
			upstreamError(c, err)
			return
		}
		options, err := cat.ProductOptions(ctx, id)
		if err != nil {
			upstreamError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"product": detail, "options": options}})
	}
}

// getQuote 结算页价格：草稿 × 商品选项，加上会员积分。
// 未登录时积分按 0 处理，不视为错误。
func getQuote(cat *catalog.Client, drafts draft.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := sessionID(c)
		if !ok {
			return
		}
		productID, err := strconv.ParseInt(c.Query("productId"), 10, 64)
		if err != nil || productID <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "productId is required"})
			return
		}

		ctx := c.Request.Context()
		lines, err := drafts.Get(ctx, session)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		detail, err := cat.ProductDetail(ctx, productID)
		if err != nil {
			upstreamError(c, err)
			return
		}
		options, err := cat.ProductOptions(ctx, productID)
		if err != nil {
			upstreamError(c, err)
			return
		}

		var points model.MemberPoints
		if token := bearerToken(c); token != "" {
			points, err = cat.MemberPoints(ctx, token)
			if err != nil && !errors.Is(err, catalog.ErrUnauthorized) {
				upstreamError(c, err)
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"code": 0, "data": pricing.Calculate(lines, options, detail.Price, points)})
	}
}
