// Package endpoint 管理上游 API 的 baseURL。
// baseURL 可在运行时切换，调用方每次请求前都要重新解析，不能缓存。
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"giftshop/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const baseURLKey = "baseURL"

var ErrInvalidBaseURL = errors.New("invalid base url")

// Resolver 在调用时返回当前生效的 baseURL。
type Resolver interface {
	BaseURL(ctx context.Context) string
}

// Static 固定地址，用于 CLI 和测试。
type Static string

func (s Static) BaseURL(context.Context) string { return string(s) }

// Store 把 baseURL 持久化到 settings 表，读路径带一层内存副本。
type Store struct {
	db       *gorm.DB
	fallback string

	mu      sync.RWMutex
	current string
}

// NewStore 从 DB 载入已保存的 baseURL，没有记录时使用 fallback。
func NewStore(ctx context.Context, db *gorm.DB, fallback string) (*Store, error) {
	s := &Store{db: db, fallback: fallback}

	var row model.Setting
	err := db.WithContext(ctx).Where(&model.Setting{Key: baseURLKey}).First(&row).Error
	switch {
	case err == nil:
		s.current = row.Value
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, fmt.Errorf("load base url: %w", err)
	}
	return s, nil
}

func (s *Store) BaseURL(context.Context) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == "" {
		return s.fallback
	}
	return s.current
}

// Update 校验并保存新的 baseURL，之后的请求立即使用新地址。
func (s *Store) Update(ctx context.Context, raw string) (string, error) {
	base, err := Normalize(raw)
	if err != nil {
		return "", err
	}

	row := model.Setting{Key: baseURLKey, Value: base, UpdatedAt: time.Now()}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return "", fmt.Errorf("save base url: %w", err)
	}

	s.mu.Lock()
	s.current = base
	s.mu.Unlock()

	logrus.WithField("base_url", base).Info("updated upstream base url")
	return base, nil
}

// Normalize 只接受带 host 的 http(s) 地址，并去掉末尾的 '/'。
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: %q", ErrInvalidBaseURL, raw)
	}
	return strings.TrimRight(raw, "/"), nil
}

// LoginURL 返回上游 OAuth 登录入口。
func LoginURL(base string) string {
	return strings.TrimRight(base, "/") + "/oauth/kakao"
}
