// Package topic 定义一次性关联通道：每个请求创建一个 topic，
// 签名端把响应投递到 topic 的 URL，请求方等待且只等待一次结果。
package topic

import (
	"context"
	"errors"
)

// Kind 区分请求语义，仅用于通道命名/展示，不影响关联语义。
type Kind string

const (
	KindAccessToken Kind = "access_token"
	KindTx          Kind = "tx"
)

var (
	// ErrCancelled 表示签名端拒绝了请求，或调用方的 context 已取消。
	ErrCancelled = errors.New("topic cancelled")
	// ErrTimeout 表示在限定时间内未收到响应。
	ErrTimeout = errors.New("topic timed out")
	// ErrMalformed 表示收到的响应缺少期望字段或格式非法。
	ErrMalformed = errors.New("topic response malformed")
)

// Topic 是一次请求独占的关联通道。
type Topic interface {
	// URL 返回嵌入请求 URI 的回调地址。
	URL() string
	// Wait 阻塞直到 topic 结算，重复调用返回相同结果。
	Wait() (string, error)
}

// Factory 为某类请求创建新的 topic。
type Factory func(ctx context.Context, kind Kind) (Topic, error)

// FactoryBuilder 根据运行环境（是否移动端）构造 Factory。
type FactoryBuilder func(isMobile bool) Factory
