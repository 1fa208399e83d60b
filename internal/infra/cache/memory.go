package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	body      []byte
	expiresAt time.Time
}

// Memory 是进程内缓存；可选的 janitor 定期清理过期条目。
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewMemory 创建内存缓存。cleanupInterval<=0 时不启动 janitor（过期条目只在读时被忽略）。
func NewMemory(cleanupInterval time.Duration) *Memory {
	m := &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
	}
	if cleanupInterval > 0 {
		m.stop = make(chan struct{})
		m.done = make(chan struct{})
		go m.janitor(cleanupInterval)
	}
	return m
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || !m.now().Before(e.expiresAt) {
		return nil, false, nil
	}
	return e.body, true, nil
}

func (m *Memory) Set(_ context.Context, key string, body []byte, ttl time.Duration) error {
	b := append([]byte(nil), body...)
	m.mu.Lock()
	m.entries[key] = entry{body: b, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

// Len 返回当前条目数（含尚未清理的过期条目）。
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) deleteExpired() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

func (m *Memory) janitor(interval time.Duration) {
	defer close(m.done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			m.deleteExpired()
		case <-m.stop:
			return
		}
	}
}

// Close 停止 janitor；可重复调用。
func (m *Memory) Close() error {
	m.once.Do(func() {
		if m.stop != nil {
			close(m.stop)
			<-m.done
		}
	})
	return nil
}
