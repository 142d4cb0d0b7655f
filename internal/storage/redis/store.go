package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tempmail/client/internal/config"
	"tempmail/client/internal/storage"
)

const opTimeout = 3 * time.Second

// Store 基于 Redis 的持久键值存储，适合多个客户端进程共享偏好
type Store struct {
	rdb    *goredis.Client
	prefix string
	log    *zap.Logger
}

// New 创建 Redis 存储并测试连接
func New(cfg config.StorageConfig, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
		PoolSize:     4,
		MinIdleConns: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("connected to Redis",
		zap.String("address", cfg.RedisAddr),
		zap.Int("db", cfg.RedisDB),
	)

	return NewWithClient(rdb, cfg.RedisPrefix, log), nil
}

// NewWithClient 使用现有客户端创建存储
func NewWithClient(rdb *goredis.Client, prefix string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{rdb: rdb, prefix: prefix, log: log}
}

// Get 获取键值
func (s *Store) Get(key string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	value, err := s.rdb.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return value, nil
}

// Set 设置键值（不过期）
func (s *Store) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := s.rdb.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// Delete 删除键
func (s *Store) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := s.rdb.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// Health 测试 Redis 连接
func (s *Store) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// Close 关闭 Redis 连接
func (s *Store) Close() error {
	if err := s.rdb.Close(); err != nil {
		s.log.Error("failed to close Redis connection", zap.Error(err))
		return err
	}
	s.log.Info("Redis connection closed")
	return nil
}
