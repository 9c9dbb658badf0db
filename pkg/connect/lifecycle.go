package connect

import (
	"github.com/aegis-sign/connect/pkg/dispatch"
)

// settleThenClose 等待结算，随后（无论成功失败）调用一次 closer，再返回原结果。
// closer 为空时直接返回等待结果。closer 的错误交给 onCloseErr，不覆盖结算结果。
func settleThenClose(wait func() (string, error), closer dispatch.Closer, onCloseErr func(error)) (string, error) {
	if closer == nil {
		return wait()
	}
	defer func() {
		if err := closer.Close(); err != nil && onCloseErr != nil {
			onCloseErr(err)
		}
	}()
	return wait()
}
