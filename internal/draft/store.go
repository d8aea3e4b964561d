// Package draft 保存会话内尚未提交的订单行。
package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"giftshop/internal/model"
	rediskey "giftshop/pkg/redis"

	rd "github.com/redis/go-redis/v9"
)

// Store 会话作用域的草稿存储；读不到时返回空列表而不是错误。
type Store interface {
	Get(ctx context.Context, sessionID string) ([]model.OrderLineDraft, error)
	Set(ctx context.Context, sessionID string, drafts []model.OrderLineDraft) error
	Clear(ctx context.Context, sessionID string) error
}

var ErrNoSession = errors.New("session id is required")

// Add 追加一条草稿。
func Add(ctx context.Context, s Store, sessionID string, d model.OrderLineDraft) ([]model.OrderLineDraft, error) {
	drafts, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	drafts = append(drafts, d)
	if err := s.Set(ctx, sessionID, drafts); err != nil {
		return nil, err
	}
	return drafts, nil
}

func validate(sessionID string, drafts []model.OrderLineDraft) error {
	if sessionID == "" {
		return ErrNoSession
	}
	for i, d := range drafts {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("draft %d: %w", i, err)
		}
	}
	return nil
}

// RedisStore 以 JSON 存储草稿，每次写入刷新会话 TTL。
type RedisStore struct {
	rdb *rd.Client
	ttl time.Duration
}

func NewRedisStore(rdb *rd.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) ([]model.OrderLineDraft, error) {
	if sessionID == "" {
		return nil, ErrNoSession
	}
	data, err := s.rdb.Get(ctx, rediskey.DraftKey(sessionID)).Bytes()
	if errors.Is(err, rd.Nil) {
		return []model.OrderLineDraft{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get drafts: %w", err)
	}
	var drafts []model.OrderLineDraft
	if err := json.Unmarshal(data, &drafts); err != nil {
		return nil, fmt.Errorf("unmarshal drafts failed: %w", err)
	}
	return drafts, nil
}

func (s *RedisStore) Set(ctx context.Context, sessionID string, drafts []model.OrderLineDraft) error {
	if err := validate(sessionID, drafts); err != nil {
		return err
	}
	b, err := json.Marshal(drafts)
	if err != nil {
		return fmt.Errorf("marshal drafts failed: %w", err)
	}
	if err := s.rdb.Set(ctx, rediskey.DraftKey(sessionID), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set drafts: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrNoSession
	}
	if err := s.rdb.Del(ctx, rediskey.DraftKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete drafts: %w", err)
	}
	return nil
}

// MemoryStore 进程内实现，CLI 与测试使用。
type MemoryStore struct {
	mu     sync.Mutex
	drafts map[string][]model.OrderLineDraft
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: make(map[string][]model.OrderLineDraft)}
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) ([]model.OrderLineDraft, error) {
	if sessionID == "" {
		return nil, ErrNoSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.OrderLineDraft{}, s.drafts[sessionID]...), nil
}

func (s *MemoryStore) Set(_ context.Context, sessionID string, drafts []model.OrderLineDraft) error {
	if err := validate(sessionID, drafts); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[sessionID] = append([]model.OrderLineDraft(nil), drafts...)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrNoSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, sessionID)
	return nil
}
