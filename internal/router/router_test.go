package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"giftshop/internal/catalog"
	"giftshop/internal/checkout"
	"giftshop/internal/config"
	"giftshop/internal/draft"
	"giftshop/internal/endpoint"
	"giftshop/internal/model"
	rediskey "giftshop/pkg/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	engine   *gin.Engine
	rdb      *rd.Client
	mr       *miniredis.Miniredis
	db       *gorm.DB
	upstream *httptest.Server
	slow     *slowOrder
}

// slowOrder 让 optionId=5 的下单挂起，直到 release 关闭。
type slowOrder struct {
	entered chan struct{}
	release chan struct{}
	posts   int32
}

// fakeUpstream 模拟礼品下单 API：optionId=2 的下单返回 400，optionId=5 的下单由 slow 控制。
func fakeUpstream(slow *slowOrder) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/api/products/7":
			_, _ = w.Write([]byte(`{"id":7,"name":"cake","imageUrl":"http://img/7","price":1000}`))
		case r.URL.Path == "/api/products/7/options":
			_, _ = w.Write([]byte(`[{"id":1,"name":"small"},{"id":3,"name":"large","price":2000}]`))
		case r.URL.Path == "/api/categories":
			_, _ = w.Write([]byte(`{"content":[{"id":1,"name":"birthday"},{"id":2,"name":"thanks"}],"last":true}`))
		case r.URL.Path == "/api/points":
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"point":5000}`))
		case r.URL.Path == "/api/orders":
			var req model.OrderRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.OptionID == 5 {
				atomic.AddInt32(&slow.posts, 1)
				select {
				case slow.entered <- struct{}{}:
				default:
				}
				select {
				case <-slow.release:
				case <-r.Context().Done():
					return
				}
			}
			if req.OptionID == 2 {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"code":"OUT_OF_STOCK","message":"sold out"}`))
				return
			}
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":99}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.Setting{}, &model.CheckoutRecord{}))

	slow := &slowOrder{entered: make(chan struct{}, 1), release: make(chan struct{})}
	upstream := fakeUpstream(slow)
	t.Cleanup(upstream.Close)

	ctx := context.Background()
	store, err := endpoint.NewStore(ctx, db, upstream.URL)
	require.NoError(t, err)

	cfg := config.AppConfig{
		CheckoutRateLimit:  100,
		CheckoutRateWindow: 10 * time.Second,
		MetricsEnabled:     true,
	}
	drafts := draft.NewRedisStore(rdb, time.Hour)

	r := gin.New()
	Setup(r, Deps{
		DB:           db,
		Redis:        rdb,
		Endpoint:     store,
		Catalog:      catalog.NewClient(upstream.Client(), store, catalog.NewRedisCache(rdb), time.Minute),
		Drafts:       drafts,
		Orchestrator: checkout.NewOrchestrator(store, drafts, checkout.Options{}),
		Config:       cfg,
	})
	return &testEnv{engine: r, rdb: rdb, mr: mr, db: db, upstream: upstream, slow: slow}
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

var session = map[string]string{"X-Session-ID": "s1", "Authorization": "Bearer tok"}

func TestPing(t *testing.T) {
	env := newTestEnv(t)
	w, body := env.do(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", body.Msg)
}

func TestBaseURLSettingsAndLogin(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.do(t, http.MethodGet, "/api/settings/base-url", "", nil)
	assert.JSONEq(t, `{"baseUrl":"`+env.upstream.URL+`"}`, string(body.Data))

	w, _ := env.do(t, http.MethodPut, "/api/settings/base-url", `{"baseUrl":"ftp://nope"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = env.do(t, http.MethodPut, "/api/settings/base-url", `{"baseUrl":"https://gift.example.com/"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"baseUrl":"https://gift.example.com"}`, string(body.Data))

	w, _ = env.do(t, http.MethodGet, "/login", "", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://gift.example.com/oauth/kakao", w.Header().Get("Location"))
}

func TestCatalogRoutes(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodGet, "/api/categories", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cats []model.Category
	require.NoError(t, json.Unmarshal(body.Data, &cats))
	assert.Len(t, cats, 2)

	w, body = env.do(t, http.MethodGet, "/api/categories/2", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(body.Data), "thanks")

	w, _ = env.do(t, http.MethodGet, "/api/categories/9", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = env.do(t, http.MethodGet, "/api/products/7", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var product struct {
		Product model.ProductDetail   `json:"product"`
		Options []model.ProductOption `json:"options"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &product))
	assert.Equal(t, "cake", product.Product.Name)
	assert.Len(t, product.Options, 2)

	w, _ = env.do(t, http.MethodGet, "/api/products/8", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/products/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDraftsAndQuote(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodGet, "/api/drafts", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "session header required")

	w, _ = env.do(t, http.MethodPost, "/api/drafts", `{"optionId":0,"quantity":1}`, session)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.do(t, http.MethodPost, "/api/drafts", `{"productId":7,"optionId":1,"quantity":2}`, session)
	w, body := env.do(t, http.MethodPost, "/api/drafts", `{"productId":7,"optionId":3,"quantity":1}`, session)
	require.Equal(t, http.StatusOK, w.Code)
	var list []model.OrderLineDraft
	require.NoError(t, json.Unmarshal(body.Data, &list))
	assert.Len(t, list, 2)

	w, body = env.do(t, http.MethodGet, "/api/checkout/quote?productId=7", "", session)
	require.Equal(t, http.StatusOK, w.Code)
	// 1000×2 + 2000×1 = 4000，×0.95 = 3800
	assert.JSONEq(t, `{"totalPrice":4000,"discountedPrice":3800,"points":5000,"pointsSufficient":true,"pointsAfter":1200,"lines":["small X 2","large X 1"]}`, string(body.Data))

	// 未登录时积分为 0
	_, body = env.do(t, http.MethodGet, "/api/checkout/quote?productId=7", "", map[string]string{"X-Session-ID": "s1"})
	assert.Contains(t, string(body.Data), `"pointsSufficient":false`)

	w, _ = env.do(t, http.MethodGet, "/api/checkout/quote", "", session)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodDelete, "/api/drafts", "", session)
	require.Equal(t, http.StatusOK, w.Code)
	_, body = env.do(t, http.MethodGet, "/api/drafts", "", session)
	assert.JSONEq(t, `[]`, string(body.Data))
}

func TestCheckout_PartialFailureAndState(t *testing.T) {
	env := newTestEnv(t)
	for _, d := range []string{
		`{"optionId":1,"quantity":1}`,
		`{"optionId":2,"quantity":1}`,
		`{"optionId":3,"quantity":1}`,
	} {
		env.do(t, http.MethodPost, "/api/drafts", d, session)
	}

	w, body := env.do(t, http.MethodPost, "/api/checkout", `{"message":"happy birthday"}`, session)
	require.Equal(t, http.StatusOK, w.Code)

	var report checkout.Report
	require.NoError(t, json.Unmarshal(body.Data, &report))
	assert.Equal(t, checkout.ReportPartial, report.Kind)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, "2 item(s) ordered, 1 failed", body.Msg)

	_, body = env.do(t, http.MethodGet, "/api/drafts", "", session)
	var left []model.OrderLineDraft
	require.NoError(t, json.Unmarshal(body.Data, &left))
	require.Len(t, left, 1)
	assert.Equal(t, int64(2), left[0].OptionID)

	w, body = env.do(t, http.MethodGet, "/api/checkout/"+report.CheckoutID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st rediskey.CheckoutState
	require.NoError(t, json.Unmarshal(body.Data, &st))
	assert.Equal(t, rediskey.CheckoutDone, st.Status)
	assert.Equal(t, "partial", st.Kind)

	// 锁已释放
	exists, err := env.rdb.Exists(context.Background(), rediskey.CheckoutLockKey("s1")).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)

	w, _ = env.do(t, http.MethodGet, "/api/checkout/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckout_Rejections(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodPost, "/api/checkout", `{"message":""}`, session)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, checkout.MsgMessageRequired, body.Msg)

	w, _ = env.do(t, http.MethodPost, "/api/checkout", `{"message":"hi"}`, session)
	assert.Equal(t, http.StatusBadRequest, w.Code, "no drafts")

	env.do(t, http.MethodPost, "/api/drafts", `{"optionId":1,"quantity":1}`, session)
	ok, err := rediskey.AcquireCheckoutLock(context.Background(), env.rdb, "s1", "other", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	w, _ = env.do(t, http.MethodPost, "/api/checkout", `{"message":"hi"}`, session)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/drafts", `{"optionId":3,"quantity":1}`, session)
	assert.Equal(t, http.StatusConflict, w.Code)
	w, _ = env.do(t, http.MethodDelete, "/api/drafts", "", session)
	assert.Equal(t, http.StatusConflict, w.Code)

	_, body = env.do(t, http.MethodGet, "/api/drafts", "", session)
	assert.Contains(t, string(body.Data), `"optionId":1`, "drafts untouched while locked")
	assert.NotContains(t, string(body.Data), `"optionId":3`)
}

func TestCheckout_LockHeldWhileLineInFlight(t *testing.T) {
	ttl, every := checkoutLockTTL, checkoutLockRefresh
	checkoutLockTTL, checkoutLockRefresh = time.Second, 20*time.Millisecond
	t.Cleanup(func() { checkoutLockTTL, checkoutLockRefresh = ttl, every })

	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/drafts", `{"optionId":5,"quantity":1}`, session)

	first := httptest.NewRecorder()
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		req := httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader(`{"message":"hi"}`))
		req.Header.Set("Content-Type", "application/json")
		for k, v := range session {
			req.Header.Set(k, v)
		}
		env.engine.ServeHTTP(first, req)
	}()

	select {
	case <-env.slow.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("order line never reached upstream")
	}

	// 总耗时远超锁的 TTL
	lockKey := rediskey.CheckoutLockKey("s1")
	for i := 0; i < 5; i++ {
		env.mr.FastForward(900 * time.Millisecond)
		assert.Eventually(t, func() bool {
			return env.mr.TTL(lockKey) == time.Second
		}, 2*time.Second, 5*time.Millisecond)
	}

	w, _ := env.do(t, http.MethodPost, "/api/checkout", `{"message":"hi"}`, session)
	assert.Equal(t, http.StatusConflict, w.Code)
	w, _ = env.do(t, http.MethodPost, "/api/drafts", `{"optionId":1,"quantity":1}`, session)
	assert.Equal(t, http.StatusConflict, w.Code)

	close(env.slow.release)
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("checkout did not finish")
	}

	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&env.slow.posts), "line submitted exactly once")
	assert.False(t, env.mr.Exists(lockKey))

	_, body := env.do(t, http.MethodGet, "/api/drafts", "", session)
	assert.JSONEq(t, `[]`, string(body.Data))
}

func TestAccountHistory(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Create(&model.CheckoutRecord{CheckoutID: "c1", SessionID: "s1", Kind: "success", Succeeded: 1}).Error)
	require.NoError(t, env.db.Create(&model.CheckoutRecord{CheckoutID: "c2", SessionID: "s2", Kind: "failed", Failed: 1}).Error)

	w, body := env.do(t, http.MethodGet, "/api/account/history", "", session)
	require.Equal(t, http.StatusOK, w.Code)
	var recs []model.CheckoutRecord
	require.NoError(t, json.Unmarshal(body.Data, &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "c1", recs[0].CheckoutID)

	w, _ = env.do(t, http.MethodGet, "/api/account/wishes", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMetricsExposed(t *testing.T) {
	env := newTestEnv(t)
	w, _ := env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
