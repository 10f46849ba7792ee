package reservation

import "sync"

// KeyedLocks 按字符串键的互斥锁集合：检查与随后的写入必须作为一个
// 不可分割的单元，否则两个并发请求会各自通过检查并赢得同一资源。
// 车辆维度守住同一时间窗的争用，客户维度守住“每客户最多一个未支付预订”。
// 锁对象一经创建不回收，键空间以车队/客户规模为上界。
type KeyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewKeyedLocks() *KeyedLocks {
	return &KeyedLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *KeyedLocks) get(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	return m
}

// Lock 获取某个键的互斥锁。
func (l *KeyedLocks) Lock(key string) {
	l.get(key).Lock()
}

// Unlock 释放某个键的互斥锁。
func (l *KeyedLocks) Unlock(key string) {
	l.get(key).Unlock()
}
