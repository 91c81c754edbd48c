package concurrent

import (
	"sync"
	"sync/atomic"
)

// Map 带计数的并发安全 map，推送中心用它登记在线客户端
type Map[K comparable, V any] struct {
	length atomic.Int64
	data   sync.Map
}

// Len 当前元素个数
func (m *Map[K, V]) Len() int64 {
	return m.length.Load()
}

func (m *Map[K, V]) Load(key K) (V, bool) {
	value, ok := m.data.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return value.(V), true
}

// Store 写入或覆盖，只有新 key 才计数
func (m *Map[K, V]) Store(key K, value V) {
	if _, loaded := m.data.Swap(key, value); !loaded {
		m.length.Add(1)
	}
}

// LoadAndDelete 删除并返回旧值，ok 表示 key 是否存在
func (m *Map[K, V]) LoadAndDelete(key K) (V, bool) {
	value, loaded := m.data.LoadAndDelete(key)
	if !loaded {
		var zero V
		return zero, false
	}
	m.length.Add(-1)
	return value.(V), true
}

// Range f 返回 false 时停止，遍历期间允许增删
func (m *Map[K, V]) Range(f func(K, V) bool) {
	m.data.Range(func(key, value any) bool {
		return f(key.(K), value.(V))
	})
}
