package topic

import "sync"

// Future 是只结算一次的结果容器，首次 Resolve/Reject 生效，其余调用被忽略。
type Future struct {
	once  sync.Once
	done  chan struct{}
	value string
	err   error
}

// NewFuture 创建未结算的 Future。
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolve 以响应内容结算，返回本次调用是否生效。
func (f *Future) Resolve(value string) bool {
	return f.settle(value, nil)
}

// Reject 以错误结算，返回本次调用是否生效。
func (f *Future) Reject(err error) bool {
	if err == nil {
		err = ErrMalformed
	}
	return f.settle("", err)
}

func (f *Future) settle(value string, err error) bool {
	settled := false
	f.once.Do(func() {
		f.value = value
		f.err = err
		settled = true
		close(f.done)
	})
	return settled
}

// Done 在结算后关闭。
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait 阻塞直到结算。
func (f *Future) Wait() (string, error) {
	<-f.done
	return f.value, f.err
}

// Static 是 URL 固定、由调用方手动结算的 Topic，适用于自带投递机制的宿主与测试。
type Static struct {
	*Future
	url string
}

// NewStatic 构造 Static topic。
func NewStatic(url string) *Static {
	return &Static{Future: NewFuture(), url: url}
}

// URL 实现 Topic。
func (s *Static) URL() string { return s.url }

var _ Topic = (*Static)(nil)
