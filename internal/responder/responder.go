// Package responder 模拟签名端：解析请求 URI，签发断言或给出交易哈希，并投递到 callback_url。
package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aegis-sign/connect/pkg/requesturi"
	"github.com/aegis-sign/connect/pkg/topic"
	"github.com/google/uuid"
)

// Issuer 签发身份断言。
type Issuer interface {
	Issue(claims map[string]any, ttl time.Duration) (string, error)
	CanSign() bool
}

// Config 控制 Responder 行为。
type Config struct {
	Issuer  Issuer
	Address string
	Name    string
	// TokenTTL 是签发断言的有效期。
	TokenTTL time.Duration
	Client   *http.Client
	Logger   *slog.Logger
}

func (c *Config) normalize() Config {
	cfg := *c
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 10 * time.Minute
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// Responder 对一条请求 URI 给出批准或拒绝。
type Responder struct {
	cfg Config
}

// Outcome 是投递到 topic 的内容摘要。
type Outcome struct {
	Kind  topic.Kind
	Value string
}

// New 构造 Responder，Issuer 必须具备签名能力。
func New(cfg Config) (*Responder, error) {
	if cfg.Issuer == nil || !cfg.Issuer.CanSign() {
		return nil, errors.New("responder requires a signing issuer")
	}
	if cfg.Address == "" {
		return nil, errors.New("responder address is required")
	}
	return &Responder{cfg: cfg.normalize()}, nil
}

// KindOf 按请求目标判断期望的响应种类：to=me 为身份请求，其余为交易。
func KindOf(in requesturi.Intent) topic.Kind {
	if in.To == "me" {
		return topic.KindAccessToken
	}
	return topic.KindTx
}

// Approve 批准请求。交易请求使用 txHash 作为结果，为空时生成一个占位哈希。
func (r *Responder) Approve(ctx context.Context, rawURI, txHash string) (Outcome, error) {
	in, err := r.parse(rawURI)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Kind: KindOf(in)}
	switch out.Kind {
	case topic.KindAccessToken:
		claims := map[string]any{"address": r.cfg.Address}
		if r.cfg.Name != "" {
			claims["name"] = r.cfg.Name
		}
		if in.ClientID != "" {
			claims["aud"] = in.ClientID
		}
		token, err := r.cfg.Issuer.Issue(claims, r.cfg.TokenTTL)
		if err != nil {
			return Outcome{}, fmt.Errorf("failed to issue credential: %w", err)
		}
		out.Value = token
	default:
		if txHash == "" {
			txHash = placeholderHash()
		}
		out.Value = txHash
	}
	if err := r.submit(ctx, in.CallbackURL, map[string]string{string(out.Kind): out.Value}); err != nil {
		return Outcome{}, err
	}
	r.cfg.Logger.Info("request approved", slog.String("kind", string(out.Kind)), slog.String("to", in.To), slog.String("label", in.Label))
	return out, nil
}

// Reject 拒绝请求，发起方的 topic 会以取消结算。
func (r *Responder) Reject(ctx context.Context, rawURI, reason string) error {
	in, err := r.parse(rawURI)
	if err != nil {
		return err
	}
	if reason == "" {
		reason = "rejected by user"
	}
	if err := r.submit(ctx, in.CallbackURL, map[string]string{"error": reason}); err != nil {
		return err
	}
	r.cfg.Logger.Info("request rejected", slog.String("to", in.To), slog.String("reason", reason))
	return nil
}

func (r *Responder) parse(rawURI string) (requesturi.Intent, error) {
	in, err := requesturi.Parse(strings.TrimSpace(rawURI))
	if err != nil {
		return requesturi.Intent{}, err
	}
	if in.CallbackURL == "" {
		return requesturi.Intent{}, errors.New("request has no callback_url")
	}
	return in, nil
}

func (r *Responder) submit(ctx context.Context, callbackURL string, payload map[string]string) error {
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(jsonBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.cfg.Client.Do(req)
	if err != nil {
		return fmt.Errorf("submit failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if len(body) > 0 {
			return fmt.Errorf("unexpected status code: %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

// placeholderHash 生成 32 字节的十六进制串，仅用于演示。
func placeholderHash() string {
	a, b := uuid.New(), uuid.New()
	return "0x" + strings.ReplaceAll(a.String()+b.String(), "-", "")
}
