package utils

import (
	"time"

	"github.com/go-resty/resty/v2"
)

// NewRestyClient 创建统一配置的 Resty 客户端
// 它是全系统 REST 请求的统一入口（eBay API、图片拉取）
// timeout: 单次请求超时，超时即该调用终止，调用方决定是否重新发起
func NewRestyClient(timeout time.Duration) *resty.Client {
	return resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "ResaleHub-Go/1.0")
}
