// Package poller 提供默认的 topic 实现：为每个请求生成随机 topic id，
// 并轮询 relay 直到签名端投递响应。
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aegis-sign/connect/pkg/topic"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Poller 基于 relay 创建可轮询的 topic。
type Poller struct {
	cfg     Config
	base    string
	client  *http.Client
	logger  *slog.Logger
	metrics *Metrics
}

// New 构造 Poller。
func New(cfg Config) (*Poller, error) {
	normalized := cfg.normalize()
	if normalized.BaseURL == "" {
		return nil, errors.New("relay base url is required")
	}
	u, err := url.Parse(normalized.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid relay base url %q", normalized.BaseURL)
	}
	return &Poller{
		cfg:     normalized,
		base:    strings.TrimRight(u.String(), "/"),
		client:  normalized.Client,
		logger:  normalized.Logger,
		metrics: normalized.Metrics,
	}, nil
}

// Factory 返回 topic.Factory，isMobile 只作为指标标签。
func (p *Poller) Factory(isMobile bool) topic.Factory {
	channel := "display"
	if isMobile {
		channel = "mobile"
	}
	return func(ctx context.Context, kind topic.Kind) (topic.Topic, error) {
		return p.create(ctx, kind, channel), nil
	}
}

func (p *Poller) create(ctx context.Context, kind topic.Kind, channel string) *pollingTopic {
	id := uuid.NewString()
	t := &pollingTopic{
		Future:  topic.NewFuture(),
		poller:  p,
		id:      id,
		url:     p.base + "/topic/" + id,
		kind:    kind,
		channel: channel,
	}
	go t.run(ctx)
	return t
}

// pollingTopic 是单个请求独占的轮询 topic。
type pollingTopic struct {
	*topic.Future
	poller  *Poller
	id      string
	url     string
	kind    topic.Kind
	channel string
}

func (t *pollingTopic) URL() string { return t.url }

func (t *pollingTopic) run(parent context.Context) {
	p := t.poller
	ctx, cancel := context.WithTimeout(parent, p.cfg.Timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(p.cfg.PollInterval), 1)
	failures := 0
	for {
		if err := limiter.Wait(ctx); err != nil {
			// 下一个 token 会越过 deadline 时 Wait 立即返回，此时等到真正超时。
			<-ctx.Done()
			t.settle("", contextError(ctx))
			return
		}
		message, err := t.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.settle("", contextError(ctx))
				return
			}
			failures++
			p.metrics.incPoll("error")
			p.logger.Warn("topic poll failed", slog.String("topic", t.id), slog.Int("failures", failures), slog.Any("err", err))
			if failures >= p.cfg.MaxFailures {
				t.settle("", fmt.Errorf("polling topic %s: %w", t.id, err))
				return
			}
			continue
		}
		failures = 0
		if message == nil {
			p.metrics.incPoll("pending")
			continue
		}
		p.metrics.incPoll("delivered")
		value, err := extract(message, t.kind)
		t.settle(value, err)
		t.clear()
		return
	}
}

func (t *pollingTopic) settle(value string, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, topic.ErrTimeout):
		outcome = "timeout"
	case errors.Is(err, topic.ErrCancelled):
		outcome = "cancelled"
	case errors.Is(err, topic.ErrMalformed):
		outcome = "malformed"
	case err != nil:
		outcome = "error"
	}
	if err != nil {
		t.Reject(err)
	} else {
		t.Resolve(value)
	}
	t.poller.metrics.incSettled(string(t.kind), outcome, t.channel)
	t.poller.logger.Info("topic settled", slog.String("topic", t.id), slog.String("kind", string(t.kind)), slog.String("outcome", outcome))
}

type pollResponse struct {
	Message json.RawMessage `json:"message"`
}

func (t *pollingTopic) fetch(ctx context.Context) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating poll request: %w", err)
	}
	res, err := t.poller.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("doing poll request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll %s: status %d", t.url, res.StatusCode)
	}
	var body pollResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding poll response: %w", err)
	}
	if len(body.Message) == 0 || string(body.Message) == "null" {
		return nil, nil
	}
	return body.Message, nil
}

// clear 在结算后删除 relay 上的 topic，失败只记录日志。
func (t *pollingTopic) clear() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, t.url, nil)
	if err != nil {
		return
	}
	res, err := t.poller.client.Do(req)
	if err != nil {
		t.poller.logger.Warn("topic clear failed", slog.String("topic", t.id), slog.Any("err", err))
		return
	}
	res.Body.Close()
}

func extract(message json.RawMessage, kind topic.Kind) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(message, &fields); err != nil {
		return "", fmt.Errorf("%w: %v", topic.ErrMalformed, err)
	}
	if reason, ok := fields["error"]; ok {
		return "", fmt.Errorf("%w: %s", topic.ErrCancelled, strings.Trim(string(reason), `"`))
	}
	raw, ok := fields[string(kind)]
	if !ok {
		return "", fmt.Errorf("%w: missing %s", topic.ErrMalformed, kind)
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil || value == "" {
		return "", fmt.Errorf("%w: %s is not a non-empty string", topic.ErrMalformed, kind)
	}
	return value, nil
}

func contextError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return topic.ErrTimeout
	}
	return fmt.Errorf("%w: %w", topic.ErrCancelled, ctx.Err())
}

var _ topic.Topic = (*pollingTopic)(nil)
