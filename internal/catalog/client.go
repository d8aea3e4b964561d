// Package catalog 是上游商品目录的查询客户端。
// 每次请求都通过 endpoint.Resolver 解析当前 baseURL，缓存 key 也包含 baseURL。
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"giftshop/internal/endpoint"
	"giftshop/internal/model"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	categoryPageSize = 100
	maxCategoryPages = 1000

	// sharedFetchTimeout 合并后的回源不随单个调用方取消，用它兜底。
	sharedFetchTimeout = 30 * time.Second
	wishlistPageSize = 10
)

// Client 封装目录相关的 GET 查询。默认不重试，SetRetries 可对网络错误和 5xx 开启重试。
type Client struct {
	http     *http.Client
	resolver endpoint.Resolver
	cache    Cache
	ttl      time.Duration
	retries  int
	sfg      singleflight.Group // 合并同一 key 的并发回源
}

// NewClient 创建查询客户端。httpClient 为空时使用 5s 超时；cache 为空时不缓存。
func NewClient(httpClient *http.Client, resolver endpoint.Resolver, cache Cache, ttl time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Client{
		http:     httpClient,
		resolver: resolver,
		cache:    cache,
		ttl:      ttl,
	}
}

// SetRetries 设置 GET 的重试次数，只在启动时调用。
func (c *Client) SetRetries(n int) {
	if n < 0 {
		n = 0
	}
	c.retries = n
}

// ProductDetailPath 商品详情地址，同时作为缓存 key。
func ProductDetailPath(base string, productID int64) string {
	return fmt.Sprintf("%s/api/products/%d", base, productID)
}

// ProductOptionsPath 商品选项地址，同时作为缓存 key。
func ProductOptionsPath(base string, productID int64) string {
	return fmt.Sprintf("%s/api/products/%d/options", base, productID)
}

// CategoriesPath 分类地址（不含分页参数），同时作为缓存 key。
func CategoriesPath(base string) string {
	return base + "/api/categories"
}

func (c *Client) ProductDetail(ctx context.Context, productID int64) (model.ProductDetail, error) {
	u := ProductDetailPath(c.resolver.BaseURL(ctx), productID)
	return fetchCached(ctx, c, u, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, u, "")
	}, decodeProductDetail)
}

func (c *Client) ProductOptions(ctx context.Context, productID int64) ([]model.ProductOption, error) {
	u := ProductOptionsPath(c.resolver.BaseURL(ctx), productID)
	return fetchCached(ctx, c, u, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, u, "")
	}, decodeProductOptions)
}

// Categories 依次请求 page=0,1,2... 直到上游返回 last=true，合并所有 content。
func (c *Client) Categories(ctx context.Context) ([]model.Category, error) {
	base := c.resolver.BaseURL(ctx)
	return fetchCached(ctx, c, CategoriesPath(base), func(ctx context.Context) ([]byte, error) {
		all, err := c.fetchAllCategories(ctx, base)
		if err != nil {
			return nil, err
		}
		return json.Marshal(all)
	}, decodeCategories)
}

func (c *Client) fetchAllCategories(ctx context.Context, base string) ([]model.Category, error) {
	all := make([]model.Category, 0)
	for page := 0; ; page++ {
		if page >= maxCategoryPages {
			return nil, fmt.Errorf("categories: %w (limit %d)", ErrTooManyPages, maxCategoryPages)
		}
		u := fmt.Sprintf("%s?page=%d&size=%d", CategoriesPath(base), page, categoryPageSize)
		body, err := c.get(ctx, u, "")
		if err != nil {
			return nil, fmt.Errorf("categories page %d: %w", page, err)
		}
		p, err := model.DecodePage[model.Category](body)
		if err != nil {
			return nil, fmt.Errorf("categories page %d: %w", page, err)
		}
		all = append(all, p.Content...)
		if p.Last {
			return all, nil
		}
	}
}

// MemberPoints 查询当前会员积分，不缓存。没有 token 时不发请求。
func (c *Client) MemberPoints(ctx context.Context, token string) (model.MemberPoints, error) {
	if token == "" {
		return model.MemberPoints{}, ErrUnauthorized
	}
	body, err := c.get(ctx, c.resolver.BaseURL(ctx)+"/api/points", token)
	if err != nil {
		return model.MemberPoints{}, fmt.Errorf("member points: %w", err)
	}
	var w struct {
		Point *int64 `json:"point"`
	}
	if err := json.Unmarshal(body, &w); err != nil {
		return model.MemberPoints{}, fmt.Errorf("decode member points: %w", err)
	}
	if w.Point == nil {
		return model.MemberPoints{}, fmt.Errorf("decode member points: point is required")
	}
	mp := model.MemberPoints{Point: *w.Point}
	if err := mp.Validate(); err != nil {
		return model.MemberPoints{}, fmt.Errorf("decode member points: %w", err)
	}
	return mp, nil
}

// FindCategory 在已拉取的分类中按 ID 查找当前分类。
func FindCategory(categories []model.Category, id int64) (model.Category, bool) {
	for _, c := range categories {
		if c.ID == id {
			return c, true
		}
	}
	return model.Category{}, false
}

// fetchCached 先查缓存，缓存内容解码失败时删除并回源；并发未命中由 singleflight 合并。
// 回源使用脱离调用方取消的 ctx，每个调用方只在自己的 ctx 上放弃等待。
func fetchCached[T any](ctx context.Context, c *Client, key string, fetch func(context.Context) ([]byte, error), decode func([]byte) (T, error)) (T, error) {
	var zero T
	if c.cache != nil {
		body, err := c.cache.Get(ctx, key)
		switch {
		case err == nil:
			v, decErr := decode(body)
			if decErr == nil {
				return v, nil
			}
			logrus.WithField("key", key).WithError(decErr).Warn("dropping undecodable cache entry")
			if delErr := c.cache.Delete(ctx, key); delErr != nil {
				logrus.WithField("key", key).WithError(delErr).Warn("cache delete error")
			}
		case !errors.Is(err, ErrCacheMiss):
			logrus.WithField("key", key).WithError(err).Warn("cache get error")
		}
	}

	ch := c.sfg.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()

		body, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		if _, err := decode(body); err != nil {
			return nil, err
		}
		if c.cache != nil {
			if err := c.cache.Set(fetchCtx, key, body, c.ttl); err != nil {
				logrus.WithField("key", key).WithError(err).Warn("cache set error")
			}
		}
		return body, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return decode(res.Val.([]byte))
	}
}

// get 发起 GET，按 retries 对可重试错误重试。
func (c *Client) get(ctx context.Context, url, token string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		body, err := c.do(ctx, http.MethodGet, url, token)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
		logrus.WithFields(logrus.Fields{"url": url, "attempt": attempt + 1}).WithError(err).Warn("retrying catalog query")
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, method, url, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, statusErr(res.StatusCode, body)
	}
	return body, nil
}

func decodeProductDetail(body []byte) (model.ProductDetail, error) {
	var p model.ProductDetail
	if err := json.Unmarshal(body, &p); err != nil {
		return model.ProductDetail{}, fmt.Errorf("decode product detail: %w", err)
	}
	if err := p.Validate(); err != nil {
		return model.ProductDetail{}, fmt.Errorf("decode product detail: %w", err)
	}
	return p, nil
}

func decodeProductOptions(body []byte) ([]model.ProductOption, error) {
	var opts *[]model.ProductOption
	if err := json.Unmarshal(body, &opts); err != nil {
		return nil, fmt.Errorf("decode product options: %w", err)
	}
	if opts == nil {
		return nil, fmt.Errorf("decode product options: body is null")
	}
	return *opts, nil
}

func decodeCategories(body []byte) ([]model.Category, error) {
	var out []model.Category
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	if out == nil {
		out = []model.Category{}
	}
	return out, nil
}
