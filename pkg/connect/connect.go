// Package connect 是带外请求/响应关联协议的入口：
// 为每个请求创建 topic、编码请求 URI、按环境投递，
// 等待 topic 结算并在结束后收起展示 UI。
package connect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aegis-sign/connect/pkg/apierrors"
	"github.com/aegis-sign/connect/pkg/credentials"
	"github.com/aegis-sign/connect/pkg/dispatch"
	"github.com/aegis-sign/connect/pkg/requesturi"
	"github.com/aegis-sign/connect/pkg/topic"
	"github.com/aegis-sign/connect/pkg/topic/poller"
	"github.com/aegis-sign/connect/pkg/web3"
)

// Credentials 校验签名端回传的断言。
type Credentials interface {
	Receive(ctx context.Context, token string, requested []string) (*credentials.Profile, error)
	CanSign() bool
}

// CredentialRequest 描述一次身份请求，Requested 中的 claim 必须出现在回传断言里。
type CredentialRequest struct {
	Requested []string
}

// Connect 持有构造后不可变的配置，可被多个并发请求共享。
type Connect struct {
	appName  string
	clientID string
	rpcURL   string
	isMobile bool
	canSign  bool
	redirect dispatch.Handler
	display  dispatch.Handler
	closer   dispatch.Closer
	topics   topic.Factory
	creds    Credentials
	logger   *slog.Logger
	metrics  *Metrics
}

// envelope 只存在于一次请求的生命周期内。
type envelope struct {
	uri      string
	topic    topic.Topic
	override dispatch.Handler
}

var nonWord = regexp.MustCompile(`\W+`)

// New 根据应用名与选项构造 Connect。
func New(appName string, opts ...Option) (*Connect, error) {
	cfg := config{appName: appName, builtinDisplay: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.appName == "" {
		cfg.appName = DefaultAppName
	}
	if cfg.infuraAPIKey == "" {
		cfg.infuraAPIKey = nonWord.ReplaceAllString(cfg.appName, "-")
	}
	if cfg.rpcURL == "" {
		cfg.rpcURL = DefaultRPCBase + "/" + cfg.infuraAPIKey
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	isMobile := dispatch.IsMobileUserAgent(cfg.userAgent)
	if cfg.mobile != nil {
		isMobile = *cfg.mobile
	}
	if cfg.display == nil && cfg.builtinDisplay {
		term := dispatch.NewTerminal(cfg.displayOut)
		cfg.display = term
		if cfg.closer == nil {
			cfg.closer = term
		}
	}
	if cfg.credentials == nil {
		cfg.credentials = credentials.New(credentials.Settings{})
	}
	var metrics *Metrics
	if cfg.registerer != nil {
		metrics = NewMetrics(cfg.registerer)
	}
	if cfg.topicFactory == nil {
		pollCfg := poller.DefaultConfig()
		pollCfg.BaseURL = cfg.relayURL
		if pollCfg.BaseURL == "" {
			pollCfg.BaseURL = DefaultRelayURL
		}
		pollCfg.Logger = cfg.logger
		if cfg.registerer != nil {
			pollCfg.Metrics = poller.NewMetrics(cfg.registerer)
		}
		p, err := poller.New(pollCfg)
		if err != nil {
			return nil, fmt.Errorf("configuring topic poller: %w", err)
		}
		cfg.topicFactory = p.Factory(isMobile)
	}
	return &Connect{
		appName:  cfg.appName,
		clientID: cfg.clientID,
		rpcURL:   cfg.rpcURL,
		isMobile: isMobile,
		canSign:  cfg.credentials.CanSign(),
		redirect: cfg.redirect,
		display:  cfg.display,
		closer:   cfg.closer,
		topics:   cfg.topicFactory,
		creds:    cfg.credentials,
		logger:   cfg.logger,
		metrics:  metrics,
	}, nil
}

// AppName 返回应用名。
func (c *Connect) AppName() string { return c.appName }

// RPCURL 返回 JSON-RPC 节点地址。
func (c *Connect) RPCURL() string { return c.rpcURL }

// IsMobile 返回构造时判定的运行环境。
func (c *Connect) IsMobile() bool { return c.isMobile }

// CanSign 表示凭证组件是否具备签名能力。
func (c *Connect) CanSign() bool { return c.canSign }

// RequestCredentials 请求签名端提供身份断言，并交给凭证组件校验。
func (c *Connect) RequestCredentials(ctx context.Context, req CredentialRequest, override dispatch.Handler) (*credentials.Profile, error) {
	token, err := c.request(ctx, topic.KindAccessToken, requesturi.Intent{To: "me"}, override)
	if err != nil {
		return nil, err
	}
	profile, err := c.creds.Receive(ctx, token, req.Requested)
	if err != nil {
		c.metrics.incVerify("rejected")
		if apierrors.HasCode(err, apierrors.CodeVerificationFailed) {
			return nil, err
		}
		return nil, apierrors.Wrap(apierrors.CodeVerificationFailed, "credential rejected", err)
	}
	c.metrics.incVerify("ok")
	return profile, nil
}

// RequestAddress 请求身份断言并返回其中的地址。
func (c *Connect) RequestAddress(ctx context.Context, override dispatch.Handler) (string, error) {
	profile, err := c.RequestCredentials(ctx, CredentialRequest{}, override)
	if err != nil {
		return "", err
	}
	return profile.Address, nil
}

// SendTransaction 请求签名端发送交易，返回签名端投递的原始结果（通常是交易哈希）。
// 结果不经校验，由调用方负责确认。
func (c *Connect) SendTransaction(ctx context.Context, tx requesturi.Intent, override dispatch.Handler) (string, error) {
	return c.request(ctx, topic.KindTx, tx, override)
}

// Web3Provider 返回绑定到当前实例的 JSON-RPC provider。
func (c *Connect) Web3Provider() *web3.Provider {
	return web3.New(c, web3.Config{RPCURL: c.rpcURL, Logger: c.logger})
}

// request 是所有操作共用的原语：
// INIT → TOPIC_CREATED → DISPATCHED → AWAITING_RESPONSE → SETTLED_OK | SETTLED_ERR。
func (c *Connect) request(ctx context.Context, kind topic.Kind, intent requesturi.Intent, override dispatch.Handler) (string, error) {
	if err := requesturi.Validate(intent); err != nil {
		c.metrics.incRejected(string(kind), outcomeOf(err))
		return "", err
	}
	finish := c.metrics.begin(string(kind))

	// topicCtx 只用于回收本请求的 topic，不对调用方暴露取消能力。
	topicCtx, release := context.WithCancel(ctx)
	defer release()

	tp, err := c.topics(topicCtx, kind)
	if err != nil {
		err = apierrors.Wrap(apierrors.CodeCorrelationFailed, "creating topic", err)
		finish(outcomeOf(err))
		return "", err
	}
	uri, err := requesturi.Encode(intent.WithApp(c.appName, tp.URL(), c.clientID))
	if err != nil {
		finish(outcomeOf(err))
		return "", err
	}
	value, err := c.deliver(kind, envelope{uri: uri, topic: tp, override: override})
	finish(outcomeOf(err))
	return value, err
}

func (c *Connect) deliver(kind topic.Kind, env envelope) (string, error) {
	strategy := dispatch.Select(c.isMobile, c.redirect, c.display)
	var closer dispatch.Closer
	if strategy.Displays() {
		closer = c.closer
	}
	if err := strategy.Dispatch(env.uri, env.override); err != nil {
		if closer != nil && !errors.Is(err, dispatch.ErrNoHandler) {
			c.close(kind, closer)
		}
		return "", err
	}
	c.logger.Debug("request dispatched", slog.String("kind", string(kind)), slog.Bool("mobile", c.isMobile), slog.String("callback", env.topic.URL()))

	value, err := settleThenClose(env.topic.Wait, closer, func(closeErr error) {
		c.metrics.incCloseFailure()
		c.logger.Warn("closing request display failed", slog.String("kind", string(kind)), slog.Any("err", closeErr))
	})
	if err != nil {
		c.logger.Info("request failed", slog.String("kind", string(kind)), slog.Any("err", err))
		return "", apierrors.Wrap(apierrors.CodeCorrelationFailed, "awaiting "+string(kind)+" response", err)
	}
	return value, nil
}

func (c *Connect) close(kind topic.Kind, closer dispatch.Closer) {
	if err := closer.Close(); err != nil {
		c.metrics.incCloseFailure()
		c.logger.Warn("closing request display failed", slog.String("kind", string(kind)), slog.Any("err", err))
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	if apiErr, ok := apierrors.FromError(err); ok {
		return strings.ToLower(string(apiErr.Code))
	}
	return "error"
}

var _ web3.Accounts = (*Connect)(nil)
