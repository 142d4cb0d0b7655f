package storage

import (
	"errors"
	"sync"
)

// fallbackKV 后端不可用时把写入保留在进程内存中
type fallbackKV struct {
	backend KV

	mu     sync.RWMutex
	shadow map[string]string
}

// WithMemoryFallback 包装 kv：写入遇到 ErrUnavailable 时值仍保留在内存，后续读取可见
//
// 写入仍返回 ErrUnavailable，调用方可据此记录未持久化。kv 为 nil 时返回 nil。
func WithMemoryFallback(kv KV) KV {
	if kv == nil {
		return nil
	}
	if _, wrapped := kv.(*fallbackKV); wrapped {
		return kv
	}
	return &fallbackKV{backend: kv, shadow: make(map[string]string)}
}

// Get 后端读取成功时以后端为准，否则返回内存中的值
func (f *fallbackKV) Get(key string) (string, error) {
	value, err := f.backend.Get(key)
	if err == nil {
		return value, nil
	}
	if !Degraded(err) && !errors.Is(err, ErrNotFound) {
		return "", err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if shadowed, ok := f.shadow[key]; ok {
		return shadowed, nil
	}
	return "", err
}

func (f *fallbackKV) Set(key, value string) error {
	err := f.backend.Set(key, value)

	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case err == nil:
		delete(f.shadow, key)
	case Degraded(err):
		f.shadow[key] = value
	}
	return err
}

func (f *fallbackKV) Delete(key string) error {
	f.mu.Lock()
	delete(f.shadow, key)
	f.mu.Unlock()
	return f.backend.Delete(key)
}

func (f *fallbackKV) Health() error {
	return f.backend.Health()
}
