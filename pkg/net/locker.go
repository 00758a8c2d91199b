package net

import (
	"fmt"
	"sync"
)

// KeyedLocker 按业务键互斥 (通用组件)
// 发布编排器用它保证同一 (user, marketplace) 的发布/刷新串行执行：
// 浏览器会话文件的读写和 OAuth 刷新都不允许并发竞争
type KeyedLocker interface {
	// Lock 锁定业务键，返回对应的解锁函数
	Lock(key string) (unlock func())
}

// keyedLocker 是 KeyedLocker 接口的具体实现
// 注意：它是私有的，外部只能通过 NewKeyedLocker 获取接口
type keyedLocker struct {
	locks sync.Map // key -> *sync.Mutex
}

var _ KeyedLocker = (*keyedLocker)(nil)

func NewKeyedLocker() KeyedLocker {
	return &keyedLocker{}
}

func (l *keyedLocker) Lock(key string) func() {
	// LoadOrStore 防止并发重复创建
	val, _ := l.locks.LoadOrStore(key, &sync.Mutex{})
	mu := val.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// AccountKey 拼接 (user, marketplace) 业务键
func AccountKey(userID int64, marketplace string) string {
	return fmt.Sprintf("%d:%s", userID, marketplace)
}
