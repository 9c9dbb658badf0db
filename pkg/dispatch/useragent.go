package dispatch

import "github.com/mssola/useragent"

// IsMobileUserAgent 根据 User-Agent 判断是否移动端。
func IsMobileUserAgent(ua string) bool {
	if ua == "" {
		return false
	}
	return useragent.New(ua).Mobile()
}
