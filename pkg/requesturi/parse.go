package requesturi

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/aegis-sign/connect/pkg/apierrors"
	"github.com/aegis-sign/connect/pkg/validator"
)

// Parse 是 Encode 的逆过程，供签名端解析收到的请求。value 会被还原为 0x 十六进制。
func Parse(raw string) (Intent, error) {
	rest, ok := strings.CutPrefix(raw, Scheme+":")
	if !ok {
		return Intent{}, apierrors.New(apierrors.CodeInvalidIntent, fmt.Sprintf("unsupported request uri %q", raw))
	}
	to, query, _ := strings.Cut(rest, "?")
	if to == "" {
		return Intent{}, apierrors.New(apierrors.CodeInvalidIntent, "request uri has no target")
	}
	in := Intent{To: to}
	if query == "" {
		return in, nil
	}
	for _, pair := range strings.Split(query, "&") {
		key, rawValue, _ := strings.Cut(pair, "=")
		value, err := url.PathUnescape(rawValue)
		if err != nil {
			return Intent{}, apierrors.Wrap(apierrors.CodeInvalidIntent, "invalid parameter "+key, err)
		}
		switch key {
		case paramValue:
			hex, err := validator.DecimalToHex(value)
			if err != nil {
				return Intent{}, apierrors.Wrap(apierrors.CodeInvalidIntent, "invalid value", err)
			}
			in.Value = hex
		case paramFunction:
			in.Function = value
		case paramBytecode:
			in.Data = value
		case paramLabel:
			in.Label = value
		case paramCallbackURL:
			in.CallbackURL = value
		case paramClientID:
			in.ClientID = value
		}
	}
	return in, nil
}
