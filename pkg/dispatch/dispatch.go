// Package dispatch 根据运行环境选择请求的投递方式：
// 移动端走 URI 跳转，其他环境交给展示 handler（如二维码）。
package dispatch

import (
	"errors"

	"github.com/aegis-sign/connect/pkg/apierrors"
)

// ErrNoHandler 表示当前环境没有配置对应的 handler，此时没有任何 UI 被打开。
var ErrNoHandler = errors.New("no handler configured")

// Handler 接收请求 URI 并完成投递。
type Handler interface {
	Open(uri string) error
}

// HandlerFunc 允许普通函数作为 Handler。
type HandlerFunc func(uri string) error

// Open 实现 Handler。
func (f HandlerFunc) Open(uri string) error { return f(uri) }

// Closer 收起展示 handler 打开的 UI。
type Closer interface {
	Close() error
}

// CloserFunc 允许普通函数作为 Closer。
type CloserFunc func() error

// Close 实现 Closer。
func (f CloserFunc) Close() error { return f() }

// Strategy 是一次请求所用的投递策略，每次调用只运行一个 handler。
type Strategy interface {
	// Dispatch 投递 URI；override 非空时替换默认展示 handler，跳转策略忽略它。
	Dispatch(uri string, override Handler) error
	// Displays 表示该策略是否会展示需要事后收起的 UI。
	Displays() bool
}

// MobileRedirect 在移动端执行同窗口跳转。
type MobileRedirect struct {
	Redirect Handler
}

// Dispatch 实现 Strategy。
func (m MobileRedirect) Dispatch(uri string, _ Handler) error {
	if m.Redirect == nil {
		return apierrors.Wrap(apierrors.CodeDispatchFailed, "mobile redirect", ErrNoHandler)
	}
	if err := m.Redirect.Open(uri); err != nil {
		return apierrors.Wrap(apierrors.CodeDispatchFailed, "mobile redirect failed", err)
	}
	return nil
}

// Displays 实现 Strategy。
func (MobileRedirect) Displays() bool { return false }

// Display 把 URI 交给展示 handler 渲染成可扫描的形式。
type Display struct {
	Show Handler
}

// Dispatch 实现 Strategy。
func (d Display) Dispatch(uri string, override Handler) error {
	handler := d.Show
	if override != nil {
		handler = override
	}
	if handler == nil {
		return apierrors.Wrap(apierrors.CodeDispatchFailed, "display", ErrNoHandler)
	}
	if err := handler.Open(uri); err != nil {
		return apierrors.Wrap(apierrors.CodeDispatchFailed, "display handler failed", err)
	}
	return nil
}

// Displays 实现 Strategy。
func (Display) Displays() bool { return true }

// Select 依据环境分类选择策略。
func Select(isMobile bool, redirect, display Handler) Strategy {
	if isMobile {
		return MobileRedirect{Redirect: redirect}
	}
	return Display{Show: display}
}
