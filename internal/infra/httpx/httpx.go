package httpx

import (
	"errors"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultTimeout = 20 * time.Second

// Transport 把“默认请求头 + UA 池 + 限速 + 代理”固化为统一策略。
//
// 约束：
// - 不做重试：传输错误原样返回给上层（由调用方决定是否重来）
// - 不覆盖调用方已显式设置的请求头
type Transport struct {
	Base *http.Transport

	// Headers 是每个请求都会带上的默认头（调用方已设置的同名头优先）。
	Headers http.Header

	// Limiter 为 nil 表示不限速。
	Limiter *rate.Limiter

	ua *uaPool
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}
	if t.Limiter != nil {
		if err := t.Limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}

	// Clone 会复制 Header，避免在 RoundTripper 内部“污染”调用方的 request。
	r := req.Clone(req.Context())
	for k, vs := range t.Headers {
		if r.Header.Get(k) != "" {
			continue
		}
		for _, v := range vs {
			r.Header.Add(k, v)
		}
	}
	if r.Header.Get("User-Agent") == "" && t.ua != nil {
		r.Header.Set("User-Agent", t.ua.random())
	}
	return t.Base.RoundTrip(r)
}

// Options 描述 NewClient 的可选项；零值可用。
type Options struct {
	ProxyURL   string
	Timeout    time.Duration // <=0 使用默认 20s
	RatePerSec float64       // <=0 不限速
	Headers    http.Header
}

// NewClient 构造用于站点抓取的 HTTP client。
//
// 规则：
// - proxyURL 非空：走代理，且禁用 keep-alive（代理池轮换依赖该行为）
// - Headers 未指定 User-Agent 时从内置 UA 池随机选取
// - 总超时由 Timeout 决定（库内部不再叠加其它超时）
func NewClient(opts Options) (*http.Client, error) {
	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}

	if p := strings.TrimSpace(opts.ProxyURL); p != "" {
		u, err := url.Parse(p)
		if err != nil {
			return nil, err
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, errors.New("proxy url 缺少 scheme 或 host")
		}
		base.Proxy = http.ProxyURL(u)
		base.DisableKeepAlives = true
	}

	tr := &Transport{
		Base:    base,
		Headers: opts.Headers.Clone(),
		ua:      globalUA,
	}
	if opts.RatePerSec > 0 {
		burst := int(opts.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		tr.Limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), burst)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

// DefaultHeaders 是模拟桌面 Chrome 的最小请求头集合（不含 UA：UA 由池提供）。
func DefaultHeaders() http.Header {
	h := http.Header{}
	h.Set("sec-ch-ua", `"Not A;Brand";v="99", "Chromium";v="106", "Google Chrome";v="106"`)
	h.Set("sec-ch-ua-mobile", "?0")
	h.Set("sec-ch-ua-platform", `"Windows"`)
	h.Set("upgrade-insecure-requests", "1")
	return h
}

type uaPool struct {
	mu  sync.Mutex
	rnd *rand.Rand
	uas []string
}

func (p *uaPool) random() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uas[p.rnd.Intn(len(p.uas))]
}

var globalUA = newUAPool()

func newUAPool() *uaPool {
	uas := []string{
		"Mozilla/5.0 (Windows NT 10.0; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/106.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
	}
	return &uaPool{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		uas: uas,
	}
}
