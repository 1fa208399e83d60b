package app

import (
	"context"
	"fmt"

	"github.com/John-Robertt/redskull/internal/config"
	"github.com/John-Robertt/redskull/internal/infra/cache"
	"github.com/John-Robertt/redskull/internal/infra/httpx"
	"github.com/John-Robertt/redskull/internal/log"
	"github.com/John-Robertt/redskull/internal/session"
	"github.com/John-Robertt/redskull/internal/vrf"
)

// Open 按最终配置装配完整的 Client（HTTP client、缓存、session、参考 vrf 实现），
// 并在后台启动 bootstrap。调用方负责 Close。
func Open(ctx context.Context, eff config.EffectiveConfig) (*Client, error) {
	hc, err := httpx.NewClient(httpx.Options{
		ProxyURL:   eff.ProxyURL,
		Timeout:    eff.Timeout,
		RatePerSec: eff.RatePerSec,
		Headers:    httpx.DefaultHeaders(),
	})
	if err != nil {
		return nil, fmt.Errorf("app: 构造 http client 失败：%w", err)
	}

	store, err := cache.Open(ctx, cache.Options{
		Backend:   eff.CacheBackend,
		Dir:       eff.CacheDir,
		RedisAddr: eff.RedisAddr,
		RedisDB:   eff.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("app: 打开缓存失败：%w", err)
	}

	sess, err := session.New(session.Options{
		BaseURL: eff.BaseURL,
		Client:  hc,
		Cache:   store,
		TTL:     eff.CacheTTL,
		Logger:  log.WithComponent("session"),
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	codec := vrf.Default()
	if eff.SignKey != "" {
		codec.SignKey = eff.SignKey
	}
	if eff.DecodeKey != "" {
		codec.DecodeKey = eff.DecodeKey
	}
	c, err := New(Options{
		Site:             sess,
		Signer:           codec,
		Codec:            codec,
		SupportedServers: eff.SupportedServers,
		Logger:           log.WithComponent("app"),
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	c.closers = append(c.closers, store.Close)

	sess.Start(ctx)
	l := log.WithComponent("app")
	l.Debug().
		Str("base_url", sess.BaseURL()).
		Str("cache", eff.CacheBackend).
		Msg("client 就绪")
	return c, nil
}
