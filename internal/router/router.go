package router

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"giftshop/internal/catalog"
	"giftshop/internal/checkout"
	"giftshop/internal/config"
	"giftshop/internal/draft"
	"giftshop/internal/endpoint"
	"giftshop/internal/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	rd "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// BaseURLStore 运行时可切换的上游地址。
type BaseURLStore interface {
	endpoint.Resolver
	Update(ctx context.Context, raw string) (string, error)
}

// Deps 路由依赖的全部组件。
type Deps struct {
	DB           *gorm.DB
	Redis        *rd.Client
	Endpoint     BaseURLStore
	Catalog      *catalog.Client
	Drafts       draft.Store
	Orchestrator *checkout.Orchestrator
	Config       config.AppConfig
}

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, d Deps) {
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.SessionHeader, middleware.RequestIDHeader},
		ExposeHeaders:   []string{middleware.RequestIDHeader},
	}))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})
	if d.Config.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// 上游地址与登录
	r.GET("/api/settings/base-url", getBaseURL(d.Endpoint))
	r.PUT("/api/settings/base-url", putBaseURL(d.Endpoint))
	r.GET("/login", login(d.Endpoint))

	// 商品目录
	r.GET("/api/categories", listCategories(d.Catalog))
	r.GET("/api/categories/:id", getCategory(d.Catalog))
	r.GET("/api/products/:id", getProduct(d.Catalog))

	// 草稿
	r.GET("/api/drafts", getDrafts(d.Drafts))
	r.POST("/api/drafts", addDraft(d.Redis, d.Drafts))
	r.DELETE("/api/drafts", clearDrafts(d.Redis, d.Drafts))

	// 结算
	r.GET("/api/checkout/quote", getQuote(d.Catalog, d.Drafts))
	r.POST("/api/checkout",
		middleware.RedisRateLimit(d.Redis, d.Config.CheckoutRateLimit, d.Config.CheckoutRateWindow),
		postCheckout(d.Redis, d.Orchestrator))
	r.GET("/api/checkout/:id", getCheckout(d.Redis))

	// 账户
	r.GET("/api/account/wishes", listWishes(d.Catalog))
	r.DELETE("/api/account/wishes/:id", deleteWish(d.Catalog))
	r.GET("/api/account/history", listHistory(d.DB))
}

// bearerToken 取 Authorization: Bearer 之后的部分，缺失时为空串。
func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func sessionID(c *gin.Context) (string, bool) {
	s := c.GetHeader(middleware.SessionHeader)
	if s == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": middleware.SessionHeader + " header is required"})
		return "", false
	}
	return s, true
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "invalid " + name})
		return 0, false
	}
	return id, true
}

// upstreamError 把目录客户端的错误映射为 HTTP 状态。
func upstreamError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": err.Error()})
	case errors.Is(err, catalog.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": err.Error()})
	case errors.Is(err, catalog.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": 403, "msg": err.Error()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"code": 502, "msg": err.Error()})
	}
}

func getBaseURL(store BaseURLStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"baseUrl": store.BaseURL(c.Request.Context())}})
	}
}

func putBaseURL(store BaseURLStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			BaseURL string `json:"baseUrl" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		base, err := store.Update(c.Request.Context(), req.BaseURL)
		if err != nil {
			if errors.Is(err, endpoint.ErrInvalidBaseURL) {
				c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"baseUrl": base}})
	}
}

func login(resolver endpoint.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Redirect(http.StatusFound, endpoint.LoginURL(resolver.BaseURL(c.Request.Context())))
	}
}
