package filesystem

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"tempmail/client/internal/storage"
)

// Store 基于单个 JSON 文件的持久键值存储
//
// 每次写入都会重写整个文件（先写临时文件再 rename），进程崩溃不会留下半截文件。
type Store struct {
	mu   sync.RWMutex
	path string
	data map[string]string
	log  *zap.Logger
}

// NewStore 打开（或创建）状态文件
//
// 文件损坏时记录警告并从空状态开始，不阻止客户端启动。
func NewStore(path string, log *zap.Logger) (*Store, error) {
	if err := ValidatePath(path); err != nil {
		return nil, fmt.Errorf("invalid state path: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	normalized := NormalizePath(path)
	if err := os.MkdirAll(filepath.Dir(normalized), 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	s := &Store{
		path: normalized,
		data: make(map[string]string),
		log:  log,
	}

	content, err := os.ReadFile(normalized)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read state file: %w", err)
	default:
		if len(content) > 0 {
			if err := json.Unmarshal(content, &s.data); err != nil {
				log.Warn("state file is corrupt, starting empty",
					zap.String("path", normalized),
					zap.Error(err),
				)
				s.data = make(map[string]string)
			}
		}
	}

	return s, nil
}

// Path 返回状态文件的绝对路径
func (s *Store) Path() string {
	return s.path
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

// Set 设置键值并落盘
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, existed := s.data[key]
	s.data[key] = value
	if err := s.flushLocked(); err != nil {
		if existed {
			s.data[key] = previous
		} else {
			delete(s.data, key)
		}
		return err
	}
	return nil
}

// Delete 删除键并落盘
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, existed := s.data[key]
	if !existed {
		return nil
	}
	delete(s.data, key)
	if err := s.flushLocked(); err != nil {
		s.data[key] = previous
		return err
	}
	return nil
}

// Health 检查状态目录是否可写
func (s *Store) Health() error {
	tmpFile, err := os.CreateTemp(filepath.Dir(s.path), ".health-*")
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	name := tmpFile.Name()
	_ = tmpFile.Close()
	_ = os.Remove(name)
	return nil
}

func (s *Store) flushLocked() error {
	content, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		s.log.Debug("failed to chmod state file", zap.Error(err))
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return nil
}
