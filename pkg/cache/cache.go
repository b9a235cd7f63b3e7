package cache

import (
	"sync"
	"time"
)

// item 缓存项
type item[V any] struct {
	value      V
	expiration int64 // UnixNano，0表示永不过期
}

// expired 检查是否过期
func (it *item[V]) expired(now int64) bool {
	return it.expiration != 0 && now > it.expiration
}

// Cache 带过期时间的内存缓存
type Cache[V any] struct {
	items map[string]*item[V]
	mu    sync.RWMutex
	ttl   time.Duration

	onEvict func(key string, value V)

	// 清理相关
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// Option 缓存选项
type Option[V any] func(*Cache[V])

// WithCleanup 定期清理过期项
func WithCleanup[V any](interval time.Duration) Option[V] {
	return func(c *Cache[V]) { c.cleanupInterval = interval }
}

// WithEvict 过期或删除时回调
func WithEvict[V any](fn func(key string, value V)) Option[V] {
	return func(c *Cache[V]) { c.onEvict = fn }
}

// New 创建缓存，ttl 为 0 表示永不过期
func New[V any](ttl time.Duration, opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		items:       make(map[string]*item[V]),
		ttl:         ttl,
		stopCleanup: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.cleanupInterval > 0 {
		go c.cleanupLoop()
	}

	return c
}

// cleanupLoop 定期清理过期项
func (c *Cache[V]) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.DeleteExpired()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *Cache[V]) deadline() int64 {
	if c.ttl <= 0 {
		return 0
	}
	return time.Now().Add(c.ttl).UnixNano()
}

// Set 写入缓存，使用默认过期时间
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	c.items[key] = &item[V]{value: value, expiration: c.deadline()}
	c.mu.Unlock()
}

// Get 读取缓存，过期项视为不存在
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if it.expired(time.Now().UnixNano()) {
		c.Delete(key)
		return zero, false
	}
	return it.value, true
}

// Touch 读取并顺延过期时间
func (c *Cache[V]) Touch(key string) (V, bool) {
	v, ok := c.Get(key)
	if !ok {
		return v, false
	}
	c.mu.Lock()
	if it, exists := c.items[key]; exists {
		it.expiration = c.deadline()
	}
	c.mu.Unlock()
	return v, true
}

// Delete 删除缓存
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	it, ok := c.items[key]
	delete(c.items, key)
	c.mu.Unlock()

	if ok && c.onEvict != nil {
		c.onEvict(key, it.value)
	}
}

// DeleteExpired 清理所有过期项
func (c *Cache[V]) DeleteExpired() {
	now := time.Now().UnixNano()
	var evicted []string
	var values []V

	c.mu.Lock()
	for k, it := range c.items {
		if it.expired(now) {
			evicted = append(evicted, k)
			values = append(values, it.value)
			delete(c.items, k)
		}
	}
	c.mu.Unlock()

	if c.onEvict != nil {
		for i, k := range evicted {
			c.onEvict(k, values[i])
		}
	}
}

// Range 遍历未过期的项，fn 返回 false 时停止
func (c *Cache[V]) Range(fn func(key string, value V) bool) {
	now := time.Now().UnixNano()

	c.mu.RLock()
	snapshot := make(map[string]V, len(c.items))
	for k, it := range c.items {
		if !it.expired(now) {
			snapshot[k] = it.value
		}
	}
	c.mu.RUnlock()

	for k, v := range snapshot {
		if !fn(k, v) {
			return
		}
	}
}

// Count 缓存项数量（含未清理的过期项）
func (c *Cache[V]) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close 停止清理并逐项回调
func (c *Cache[V]) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCleanup)
	})

	c.mu.Lock()
	items := c.items
	c.items = make(map[string]*item[V])
	c.mu.Unlock()

	if c.onEvict != nil {
		for k, it := range items {
			c.onEvict(k, it.value)
		}
	}
}
