package connect

import (
	"context"
	"errors"
	"fmt"

	"github.com/aegis-sign/connect/pkg/apierrors"
	"github.com/aegis-sign/connect/pkg/dispatch"
	"github.com/aegis-sign/connect/pkg/requesturi"
)

// ABIEncoder 把合约方法调用编码为签名端可读的函数签名，例如 `transfer(address 0x1, uint256 2)`。
type ABIEncoder interface {
	EncodeFunction(method string, args ...any) (string, error)
}

// Contract 把合约方法调用转换为交易请求。不支持部署合约。
type Contract struct {
	conn    *Connect
	address string
	encoder ABIEncoder
}

// CallOpts 是单次调用的可选参数。
type CallOpts struct {
	Value    string
	Override dispatch.Handler
}

// Contract 返回绑定到 address 的合约调用器。
func (c *Connect) Contract(address string, encoder ABIEncoder) *Contract {
	return &Contract{conn: c, address: address, encoder: encoder}
}

// Address 返回合约地址。
func (k *Contract) Address() string { return k.address }

// Call 编码方法调用并通过 SendTransaction 发起交易请求。
func (k *Contract) Call(ctx context.Context, opts CallOpts, method string, args ...any) (string, error) {
	if k.address == "" {
		return "", apierrors.New(apierrors.CodeInvalidIntent, "contract creation is not supported")
	}
	if k.encoder == nil {
		return "", apierrors.Wrap(apierrors.CodeInvalidIntent, "encoding "+method, errors.New("no abi encoder configured"))
	}
	function, err := k.encoder.EncodeFunction(method, args...)
	if err != nil {
		return "", apierrors.Wrap(apierrors.CodeInvalidIntent, fmt.Sprintf("encoding %s", method), err)
	}
	return k.conn.SendTransaction(ctx, requesturi.Intent{
		To:       k.address,
		Value:    opts.Value,
		Function: function,
	}, opts.Override)
}
