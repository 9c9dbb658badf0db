package validator

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var errEmptyQuantity = errors.New("quantity is empty")

// HexToDecimal 将十六进制数量（可带 0x 前缀）转换为十进制字符串，不受 64 位限制。
func HexToDecimal(raw string) (string, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(raw), "0x"), "0X")
	if digits == "" {
		return "", errEmptyQuantity
	}
	n, ok := new(big.Int).SetString(digits, 16)
	if !ok || n.Sign() < 0 {
		return "", fmt.Errorf("invalid hex quantity %q", raw)
	}
	return n.String(), nil
}

// DecimalToHex 将十进制数量转换为 0x 前缀的十六进制字符串。
func DecimalToHex(raw string) (string, error) {
	digits := strings.TrimSpace(raw)
	if digits == "" {
		return "", errEmptyQuantity
	}
	n, ok := new(big.Int).SetString(digits, 10)
	if !ok || n.Sign() < 0 {
		return "", fmt.Errorf("invalid decimal quantity %q", raw)
	}
	return "0x" + n.Text(16), nil
}
