package connect

import (
	"io"
	"log/slog"

	"github.com/aegis-sign/connect/pkg/dispatch"
	"github.com/aegis-sign/connect/pkg/topic"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultAppName 在未提供应用名时使用。
	DefaultAppName = "uport-connect-app"
	// DefaultRPCBase 是默认的公共测试网节点，完整地址为 <base>/<api key>。
	DefaultRPCBase = "https://ropsten.infura.io"
	// DefaultRelayURL 是默认 topic relay。
	DefaultRelayURL = "https://chasqui.uport.me/api/v1"
)

// Option 允许自定义 Connect 行为。
type Option func(*config)

type config struct {
	appName      string
	clientID     string
	infuraAPIKey string
	rpcURL       string
	relayURL     string

	mobile    *bool
	userAgent string

	credentials  Credentials
	topicFactory topic.Factory

	display        dispatch.Handler
	closer         dispatch.Closer
	builtinDisplay bool
	displayOut     io.Writer
	redirect       dispatch.Handler

	logger     *slog.Logger
	registerer prometheus.Registerer
}

// WithClientID 设置应用的 client id。
func WithClientID(id string) Option {
	return func(c *config) { c.clientID = id }
}

// WithRPCURL 指定 JSON-RPC 节点地址。
func WithRPCURL(url string) Option {
	return func(c *config) { c.rpcURL = url }
}

// WithInfuraAPIKey 指定默认节点地址使用的 API key。
func WithInfuraAPIKey(key string) Option {
	return func(c *config) { c.infuraAPIKey = key }
}

// WithRelayURL 指定默认 topic 工厂使用的 relay。
func WithRelayURL(url string) Option {
	return func(c *config) { c.relayURL = url }
}

// WithCredentials 注入凭证校验组件。
func WithCredentials(creds Credentials) Option {
	return func(c *config) { c.credentials = creds }
}

// WithTopicFactory 替换默认的轮询 topic 工厂。
func WithTopicFactory(f topic.Factory) Option {
	return func(c *config) { c.topicFactory = f }
}

// WithDisplay 使用自定义展示 handler，同时关闭内置展示。
func WithDisplay(h dispatch.Handler) Option {
	return func(c *config) {
		c.display = h
		c.builtinDisplay = false
	}
}

// WithCloser 指定请求结束后收起展示 UI 的 handler。
func WithCloser(cl dispatch.Closer) Option {
	return func(c *config) { c.closer = cl }
}

// WithBuiltinDisplay 使用内置终端展示，w 为空时写 stdout。
func WithBuiltinDisplay(w io.Writer) Option {
	return func(c *config) {
		c.display = nil
		c.builtinDisplay = true
		c.displayOut = w
	}
}

// WithMobileRedirect 指定移动端跳转 handler。
func WithMobileRedirect(h dispatch.Handler) Option {
	return func(c *config) { c.redirect = h }
}

// WithMobile 显式指定运行环境，优先于 User-Agent 判断。
func WithMobile(mobile bool) Option {
	return func(c *config) { c.mobile = &mobile }
}

// WithUserAgent 提供用于判断移动端的 User-Agent。
func WithUserAgent(ua string) Option {
	return func(c *config) { c.userAgent = ua }
}

// WithLogger 注入 slog Logger。
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithRegisterer 指定 Prometheus 注册器，未指定时不采集指标。
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *config) { c.registerer = reg }
}
