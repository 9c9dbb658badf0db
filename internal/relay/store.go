package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrAlreadyAnswered 表示 topic 已有响应，后续投递被拒绝。
	ErrAlreadyAnswered = errors.New("topic already answered")
	// ErrNotFound 表示 topic 不存在或已过期。
	ErrNotFound = errors.New("topic not found")
	// ErrNotObject 表示投递内容不是 JSON 对象。
	ErrNotObject = errors.New("message must be a JSON object")
)

// Config 控制 Store 行为。
type Config struct {
	TTL     time.Duration
	Clock   Clock
	Logger  *slog.Logger
	Metrics *Metrics
}

func (c *Config) normalize() Config {
	cfg := *c
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// record 保存某个 topic 的响应及过期时间。
type record struct {
	message  json.RawMessage
	postedAt time.Time
	expireAt time.Time
}

// Store 是内存中的 topic 响应表，每个 topic 只接受一次投递。
type Store struct {
	cfg     Config
	metrics *Metrics
	logger  *slog.Logger

	mu     sync.Mutex
	topics map[string]*record
}

// NewStore 构造 Store。
func NewStore(cfg Config) *Store {
	normalized := cfg.normalize()
	return &Store{
		cfg:     normalized,
		metrics: normalized.Metrics,
		logger:  normalized.Logger,
		topics:  make(map[string]*record),
	}
}

// Put 保存 topic 的响应。
func (s *Store) Put(id string, message json.RawMessage) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(message, &probe); err != nil || probe == nil {
		return ErrNotObject
	}
	now := s.cfg.Clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.topics[id]; ok && now.Before(rec.expireAt) {
		s.metrics.incPost("conflict")
		return ErrAlreadyAnswered
	}
	s.topics[id] = &record{
		message:  append(json.RawMessage(nil), message...),
		postedAt: now,
		expireAt: now.Add(s.cfg.TTL),
	}
	s.metrics.incPost("stored")
	s.metrics.setStored(len(s.topics))
	s.logger.Info("topic answered", slog.String("topic", id))
	return nil
}

// Get 返回 topic 的响应，尚未投递时 ok 为 false。
func (s *Store) Get(id string) (json.RawMessage, bool) {
	now := s.cfg.Clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.topics[id]
	if !ok || !now.Before(rec.expireAt) {
		s.metrics.incPoll("pending")
		return nil, false
	}
	s.metrics.incPoll("delivered")
	return append(json.RawMessage(nil), rec.message...), true
}

// Delete 清除 topic。
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.topics[id]; !ok {
		return ErrNotFound
	}
	delete(s.topics, id)
	s.metrics.setStored(len(s.topics))
	return nil
}

// Sweep 删除已过期的 topic，返回删除数量。
func (s *Store) Sweep() int {
	now := s.cfg.Clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, rec := range s.topics {
		if !now.Before(rec.expireAt) {
			delete(s.topics, id)
			removed++
		}
	}
	s.metrics.setStored(len(s.topics))
	return removed
}

// RunSweeper 按 interval 周期清理，直到 ctx 结束。
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Info("expired topics swept", slog.Int("count", n))
			}
		}
	}
}
