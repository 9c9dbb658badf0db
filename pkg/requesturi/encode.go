package requesturi

import (
	"strings"

	"github.com/aegis-sign/connect/pkg/apierrors"
	"github.com/aegis-sign/connect/pkg/validator"
)

// 参数键均为固定字面量，不做编码。
const (
	paramValue       = "value"
	paramFunction    = "function"
	paramBytecode    = "bytecode"
	paramLabel       = "label"
	paramCallbackURL = "callback_url"
	paramClientID    = "client_id"
)

type param struct {
	key   string
	value string
}

// Validate 检查 intent 是否可以被编码，不产生任何副作用。
func Validate(in Intent) error {
	_, err := params(in)
	return err
}

// Encode 生成 `me.uport:<to>?k=v&...` 形式的请求 URI。
// 参数顺序固定：value、function 或 bytecode（function 优先）、label、callback_url、client_id。
func Encode(in Intent) (string, error) {
	ps, err := params(in)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(Scheme)
	b.WriteByte(':')
	b.WriteString(in.To)
	b.WriteByte('?')
	for i, p := range ps {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.key)
		b.WriteByte('=')
		b.WriteString(escapeComponent(p.value))
	}
	return b.String(), nil
}

func params(in Intent) ([]param, error) {
	if in.To == "" {
		return nil, apierrors.New(apierrors.CodeInvalidIntent, "contract creation is not supported: intent has no target")
	}
	ps := make([]param, 0, 5)
	if in.Value != "" {
		dec, err := validator.HexToDecimal(in.Value)
		if err != nil {
			return nil, apierrors.Wrap(apierrors.CodeInvalidIntent, "invalid value", err)
		}
		ps = append(ps, param{paramValue, dec})
	}
	switch {
	case in.Function != "":
		ps = append(ps, param{paramFunction, in.Function})
	case in.Data != "":
		ps = append(ps, param{paramBytecode, in.Data})
	}
	for _, p := range []param{
		{paramLabel, in.Label},
		{paramCallbackURL, in.CallbackURL},
		{paramClientID, in.ClientID},
	} {
		if p.value != "" {
			ps = append(ps, p)
		}
	}
	return ps, nil
}

const upperhex = "0123456789ABCDEF"

// escapeComponent 按 encodeURIComponent 的字符集转义：仅保留 A-Z a-z 0-9 - _ . ! ~ * ' ( )。
func escapeComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
