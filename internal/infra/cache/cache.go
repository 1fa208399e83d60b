// Package cache 提供 HTTP 响应缓存（按完整 URL 作为 key，带 TTL）。
//
// 后端：memory（默认）/ file（<dir>/cache/http/ 下的原子写文件）/ badger / redis / none。
// 所有后端都满足：过期条目不返回（视为 miss，由上层重新抓取）。
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultTTL 是响应缓存的默认有效期。
const DefaultTTL = 30 * time.Minute

// Cache 是响应缓存的统一接口。
//
// 约束：
// - Get 未命中或已过期返回 ok=false, err=nil
// - Set 对同一 key 覆盖写（重复写入同一内容是幂等的）
// - 实现必须并发安全
type Cache interface {
	Get(ctx context.Context, key string) (body []byte, ok bool, err error)
	Set(ctx context.Context, key string, body []byte, ttl time.Duration) error
	Close() error
}

const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

var ErrUnknownBackend = errors.New("cache: unknown backend")

// Options 描述 Open 需要的参数。
type Options struct {
	Backend   string // 为空等价于 memory
	Dir       string // file / badger 的根目录
	RedisAddr string // redis 的 host:port
	RedisDB   int
}

// Open 按 Backend 构造缓存实现。
func Open(ctx context.Context, opts Options) (Cache, error) {
	switch b := strings.ToLower(strings.TrimSpace(opts.Backend)); b {
	case "", BackendMemory:
		return NewMemory(time.Minute), nil
	case BackendNone:
		return Nop{}, nil
	case BackendFile:
		if strings.TrimSpace(opts.Dir) == "" {
			return nil, fmt.Errorf("cache: file 后端需要 dir")
		}
		return NewFile(opts.Dir), nil
	case BackendBadger:
		if strings.TrimSpace(opts.Dir) == "" {
			return nil, fmt.Errorf("cache: badger 后端需要 dir")
		}
		return OpenBadger(opts.Dir)
	case BackendRedis:
		if strings.TrimSpace(opts.RedisAddr) == "" {
			return nil, fmt.Errorf("cache: redis 后端需要 addr")
		}
		return OpenRedis(ctx, opts.RedisAddr, opts.RedisDB)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, b)
	}
}

// Nop 不缓存任何内容。
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Nop) Close() error { return nil }
