// Package session 持有进程级的站点会话：绑定 base origin 的 HTTP client、
// bootstrap 时拿到的授权 cookie，以及响应缓存。
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/John-Robertt/redskull/internal/infra/cache"
)

const (
	// DefaultBootstrapPath 是用于换取 cookie 的面板接口（无需授权）。
	DefaultBootstrapPath = "/ajax/user/panel"

	maxBodyBytes = 16 << 20
)

// ErrNoCookie 表示 bootstrap 响应里没有 Set-Cookie。
var ErrNoCookie = errors.New("session: bootstrap 响应缺少 Set-Cookie")

// Options 描述 New 的参数。Client 与 BaseURL 必填。
type Options struct {
	BaseURL       string
	Client        *http.Client
	Cache         cache.Cache   // nil 等价于不缓存
	TTL           time.Duration // <=0 使用 cache.DefaultTTL
	BootstrapPath string        // 为空使用 DefaultBootstrapPath
	Logger        zerolog.Logger
}

// Session 是进程内共享的站点会话。
//
// 约束：
// - Bootstrap 最多执行一次；完成（无论成败）后 readiness 信号关闭，永不重置
// - 之后 session 唯一的可变状态是 cookie 与缓存，两者都是覆盖写
// - Get 本身不等待 bootstrap：需要 cookie 的调用方先 Ready(ctx)
type Session struct {
	base          *url.URL
	client        *http.Client
	cache         cache.Cache
	ttl           time.Duration
	bootstrapPath string
	log           zerolog.Logger

	mu     sync.RWMutex
	cookie string

	bootOnce sync.Once
	ready    chan struct{}
	bootErr  error

	flight singleflight.Group
}

func New(opts Options) (*Session, error) {
	if opts.Client == nil {
		return nil, errors.New("session: http client 不能为空")
	}
	base, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("session: base url 无效：%w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("session: base url 必须是绝对地址：%q", opts.BaseURL)
	}
	c := opts.Cache
	if c == nil {
		c = cache.Nop{}
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	bp := strings.TrimSpace(opts.BootstrapPath)
	if bp == "" {
		bp = DefaultBootstrapPath
	}
	return &Session{
		base:          base,
		client:        opts.Client,
		cache:         c,
		ttl:           ttl,
		bootstrapPath: bp,
		log:           opts.Logger,
		ready:         make(chan struct{}),
	}, nil
}

// BaseURL 返回绑定的 origin。
func (s *Session) BaseURL() string { return s.base.String() }

// Cookie 返回当前授权 cookie（name=value）；bootstrap 前为空。
func (s *Session) Cookie() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cookie
}

// Start 在后台启动 bootstrap（只会启动一次），立即返回。
// bootstrap 不继承 ctx 的取消：它属于整个进程，而不是某一次调用。
func (s *Session) Start(ctx context.Context) {
	s.bootOnce.Do(func() {
		bctx := context.WithoutCancel(ctx)
		go func() {
			defer close(s.ready)
			s.bootErr = s.bootstrap(bctx)
			if s.bootErr != nil {
				s.log.Warn().Err(s.bootErr).Msg("bootstrap 失败，后续请求将不带 cookie")
				return
			}
			s.log.Debug().Msg("bootstrap 完成")
		}()
	})
}

// Ready 确保 bootstrap 已启动，并等待其完成。
//
// bootstrap 失败不会让 Ready 返回错误（请求继续以未授权方式发出）；
// 只有 ctx 结束时才返回 ctx.Err()。
func (s *Session) Ready(ctx context.Context) error {
	s.Start(ctx)
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Bootstrap 同步执行（或等待已在进行中的）bootstrap，并返回其结果。
func (s *Session) Bootstrap(ctx context.Context) error {
	if err := s.Ready(ctx); err != nil {
		return err
	}
	return s.bootErr
}

func (s *Session) bootstrap(ctx context.Context) error {
	u := s.resolve(s.bootstrapPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return &NetworkError{URL: u.String(), Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &NetworkError{URL: u.String(), Err: &HTTPStatusError{StatusCode: resp.StatusCode}}
	}
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return ErrNoCookie
	}
	// 只取第一条 Set-Cookie 的 name=value（属性部分不属于 Cookie 请求头）。
	first := cookies[0]
	s.mu.Lock()
	s.cookie = first.Name + "=" + first.Value
	s.mu.Unlock()
	return nil
}

// Request 描述一次 GET。
type Request struct {
	Ref       string      // 相对路径（基于 base origin）或绝对 URL
	Cacheable bool        // true：先查缓存，成功后写缓存（key=完整 URL）
	Header    http.Header // 额外请求头（优先级高于默认头）
}

// Get 是 Do 的简写。
func (s *Session) Get(ctx context.Context, ref string, cacheable bool) ([]byte, error) {
	return s.Do(ctx, Request{Ref: ref, Cacheable: cacheable})
}

// GetJSON 抓取并把 body 解码进 out。
func (s *Session) GetJSON(ctx context.Context, ref string, cacheable bool, out any) error {
	b, err := s.Get(ctx, ref, cacheable)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("session: 解析 JSON 失败（%s）：%w", s.resolve(ref), err)
	}
	return nil
}

// Do 发出 GET 并返回 body。
//
// 可缓存请求：同 key 的并发请求合并为一次网络抓取；只缓存 2xx 响应。
// 返回的切片可能被多个调用方共享：只读。
func (s *Session) Do(ctx context.Context, r Request) ([]byte, error) {
	u := s.resolve(r.Ref).String()
	if !r.Cacheable {
		return s.fetch(ctx, u, r.Header)
	}

	if b, ok, err := s.cache.Get(ctx, u); err != nil {
		s.log.Warn().Err(err).Str("url", u).Msg("读取缓存失败，按未命中处理")
	} else if ok {
		s.log.Debug().Str("url", u).Msg("cache hit")
		return b, nil
	}

	// 共享抓取不继承任何单个调用方的取消：调用方放弃时只是不再等待，
	// 抓取继续完成并写缓存（仍受 http.Client.Timeout 约束）。
	fctx := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(u, func() (any, error) {
		b, err := s.fetch(fctx, u, r.Header)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(fctx, u, b, s.ttl); err != nil {
			s.log.Warn().Err(err).Str("url", u).Msg("写入缓存失败")
		}
		return b, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (s *Session) fetch(ctx context.Context, u string, extra http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &NetworkError{URL: u, Err: err}
	}
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c := s.Cookie(); c != "" && req.Header.Get("Cookie") == "" {
		req.Header.Set("Cookie", c)
	}

	s.log.Debug().Str("url", u).Msg("GET")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: u, Err: err}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &NetworkError{URL: u, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &NetworkError{URL: u, Err: &HTTPStatusError{
			StatusCode: resp.StatusCode,
			Location:   resp.Header.Get("Location"),
		}}
	}
	return b, nil
}

func (s *Session) resolve(ref string) *url.URL {
	ref = strings.TrimSpace(ref)
	ru, err := url.Parse(ref)
	if err != nil {
		// 交给 http.NewRequest 报错（保留原始字符串便于定位）。
		return &url.URL{Opaque: ref}
	}
	return s.base.ResolveReference(ru)
}
