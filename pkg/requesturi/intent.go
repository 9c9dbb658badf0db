// Package requesturi 负责 Call Intent 与 me.uport 请求 URI 之间的转换。
package requesturi

// Scheme 是请求 URI 的固定 scheme。
const Scheme = "me.uport"

// Intent 描述一次调用意图：目标、金额、函数/数据以及 facade 追加的应用身份字段。
type Intent struct {
	To       string `json:"to"`
	Value    string `json:"value,omitempty"`
	Function string `json:"function,omitempty"`
	Data     string `json:"data,omitempty"`

	Label       string `json:"label,omitempty"`
	CallbackURL string `json:"callback_url,omitempty"`
	ClientID    string `json:"client_id,omitempty"`
}

// WithApp 返回追加了应用身份字段的副本，空值不会覆盖已有字段。
func (in Intent) WithApp(label, callbackURL, clientID string) Intent {
	out := in
	if callbackURL != "" {
		out.CallbackURL = callbackURL
	}
	if label != "" {
		out.Label = label
	}
	if clientID != "" {
		out.ClientID = clientID
	}
	return out
}
