package dispatch

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Terminal 是内置展示方式：把请求 URI 写到终端，由用户复制或交给外部二维码工具。
type Terminal struct {
	mu   sync.Mutex
	w    io.Writer
	open int
}

// NewTerminal 构造 Terminal，w 为空时写到 stdout。
func NewTerminal(w io.Writer) *Terminal {
	if w == nil {
		w = os.Stdout
	}
	return &Terminal{w: w}
}

// Open 实现 Handler。
func (t *Terminal) Open(uri string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open++
	_, err := fmt.Fprintf(t.w, "Approve this request with your signing app:\n\n  %s\n\n", uri)
	return err
}

// Close 实现 Closer。
func (t *Terminal) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.open == 0 {
		return nil
	}
	t.open--
	_, err := fmt.Fprintln(t.w, "Request finished.")
	return err
}

var (
	_ Handler = (*Terminal)(nil)
	_ Closer  = (*Terminal)(nil)
)
