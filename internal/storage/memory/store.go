package memory

import (
	"sync"

	"tempmail/client/internal/storage"
)

// Store 进程内键值存储，充当会话作用域的存储，也可用作持久作用域的替身。
type Store struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewStore 创建内存存储
func NewStore() *Store {
	return &Store{data: make(map[string]string)}
}

// Get 获取键值
func (s *Store) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return value, nil
}

// Set 设置键值
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
	return nil
}

// Delete 删除键，键不存在时不报错
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// Clear 清空全部键，相当于结束当前会话
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[string]string)
}

// Len 返回键数量
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Health 内存存储始终可用
func (s *Store) Health() error {
	return nil
}
