package utils

import (
	"sync"
	"time"
)

// 使用 sync.Map 保证并发安全
var memoryCache sync.Map

// cacheItem 内部结构，包含值和过期时间
type cacheItem struct {
	value      string
	expiration int64
}

// SetCache 设置缓存
// OAuth 授权流程用: key=state, value=userID，ttl 覆盖整个授权跳转耗时
func SetCache(key, value string, ttl time.Duration) {
	memoryCache.Store(key, cacheItem{
		value:      value,
		expiration: time.Now().Add(ttl).Unix(),
	})
}

// GetCache 获取缓存并验证是否过期
func GetCache(key string) (string, bool) {
	val, ok := memoryCache.Load(key)
	if !ok {
		return "", false
	}

	item := val.(cacheItem)
	if time.Now().Unix() > item.expiration {
		memoryCache.Delete(key) // 懒删除
		return "", false
	}
	return item.value, true
}

// DeleteCache 删除缓存 (用完即焚)
func DeleteCache(key string) {
	memoryCache.Delete(key)
}
