package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "redskull:http:"

// Redis 让多个进程共享同一份响应缓存（SET EX）。
type Redis struct {
	client *redis.Client
}

// OpenRedis 连接并 PING 一次；连不上直接返回错误（不静默降级为内存缓存）。
func OpenRedis(ctx context.Context, addr string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis 连接失败：%w", err)
	}
	return &Redis{client: client}, nil
}

// NewRedis 包装已有 client（测试用）。
func NewRedis(client *redis.Client) *Redis { return &Redis{client: client} }

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, body []byte, ttl time.Duration) error {
	return r.client.Set(ctx, redisKeyPrefix+key, body, ttl).Err()
}

func (r *Redis) Close() error { return r.client.Close() }
