package stream

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Fetcher 是 backend 访问投递页的唯一出口（由 session 实现）。
type Fetcher interface {
	Get(ctx context.Context, ref string, cacheable bool) ([]byte, error)
}

// Backend 把“某家投递站点的页面结构”限制在各自的包内部。
//
// 约束：
// - Match 必须是纯函数，且只看 URL
// - Unpack 不做缓存、不做重试（这些由 session 层统一实现）
// - Unpack 失败时返回 *Error（Stage 指明卡在哪一步），Backend/URL 可留空由 Resolver 补齐
type Backend interface {
	Name() string
	Match(u *url.URL) bool
	Unpack(ctx context.Context, f Fetcher, deliveryURL string) (string, error)
}

// Registry 是按注册顺序匹配的只读 backend 列表。
type Registry struct {
	backends []Backend
}

func NewRegistry(backends ...Backend) (Registry, error) {
	seen := make(map[string]struct{}, len(backends))
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b == nil {
			return Registry{}, fmt.Errorf("backend 不能为空")
		}
		name := strings.ToLower(strings.TrimSpace(b.Name()))
		if name == "" {
			return Registry{}, fmt.Errorf("backend.Name 不能为空")
		}
		if _, ok := seen[name]; ok {
			return Registry{}, fmt.Errorf("重复的 backend：%q", name)
		}
		seen[name] = struct{}{}
		out = append(out, b)
	}
	return Registry{backends: out}, nil
}

// Match 返回第一个认领 u 的 backend。
func (r Registry) Match(u *url.URL) (Backend, bool) {
	for _, b := range r.backends {
		if b.Match(u) {
			return b, true
		}
	}
	return nil, false
}

// Names 返回已注册的 backend 名称（注册顺序）。
func (r Registry) Names() []string {
	out := make([]string, 0, len(r.backends))
	for _, b := range r.backends {
		out = append(out, strings.ToLower(b.Name()))
	}
	return out
}
