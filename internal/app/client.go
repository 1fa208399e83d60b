// Package app 是对外的流水线入口：把 session、签名/解码、解析器与 stream 解析串起来。
//
// 约束：
// - 每个操作先等待 session 就绪（bootstrap 完成或失败），再发请求
// - 只负责编排，不做重试；错误原样（带上下文）返回
package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/redskull/internal/domain"
	"github.com/John-Robertt/redskull/internal/extract"
	"github.com/John-Robertt/redskull/internal/stream"
	"github.com/John-Robertt/redskull/internal/stream/filemoon"
	"github.com/John-Robertt/redskull/internal/vrf"
)

const (
	SearchPath  = "/search"
	HomePath    = "/home"
	ServersPath = "/ajax/film/servers"

	// streamWorkers 是 EpisodeStreams 的并发上限。
	streamWorkers = 4
)

var (
	// ErrBackendNotAvailable 表示详情中没有所请求 backend 的 episode id。
	ErrBackendNotAvailable = errors.New("app: 该 backend 没有可用的片源")
	// ErrEmptyContentID 表示 content id 为空。
	ErrEmptyContentID = errors.New("app: content id 不能为空")
)

// Site 是 Client 需要的站点会话能力（由 *session.Session 实现）。
type Site interface {
	Ready(ctx context.Context) error
	Get(ctx context.Context, ref string, cacheable bool) ([]byte, error)
	GetJSON(ctx context.Context, ref string, cacheable bool, out any) error
}

// Options 描述 New 的参数。Site 必填；其余为空时使用参考实现。
type Options struct {
	Site             Site
	Signer           vrf.Signer
	Codec            vrf.Codec
	Backends         []stream.Backend // 为空时只注册 filemoon
	SupportedServers []string         // 为空时使用 extract.DefaultServers
	Logger           zerolog.Logger
}

// Client 可以被多个 goroutine 并发使用。
type Client struct {
	site     Site
	signer   vrf.Signer
	resolver *stream.Resolver
	servers  []string
	log      zerolog.Logger
	closers  []func() error
}

func New(opts Options) (*Client, error) {
	if opts.Site == nil {
		return nil, errors.New("app: site 不能为空")
	}
	ref := vrf.Default()
	signer, codec := opts.Signer, opts.Codec
	if signer == nil {
		signer = ref
	}
	if codec == nil {
		codec = ref
	}

	backends := opts.Backends
	if len(backends) == 0 {
		backends = []stream.Backend{filemoon.New()}
	}
	reg, err := stream.NewRegistry(backends...)
	if err != nil {
		return nil, err
	}
	res, err := stream.NewResolver(stream.Options{
		Fetcher:  opts.Site,
		Codec:    codec,
		Registry: reg,
		Logger:   opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	servers := opts.SupportedServers
	if len(servers) == 0 {
		servers = extract.DefaultServers
	}
	opts.Logger.Debug().Strs("backends", reg.Names()).Strs("servers", servers).Msg("stream backend 已注册")
	return &Client{
		site:     opts.Site,
		signer:   signer,
		resolver: res,
		servers:  append([]string(nil), servers...),
		log:      opts.Logger,
	}, nil
}

// Close 释放 Open 创建的资源（缓存连接等）。New 构造的 Client 无需 Close。
func (c *Client) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Search 搜索关键词；page < 1 视为 1。
func (c *Client) Search(ctx context.Context, keyword string, page int) (domain.Listing, error) {
	if page < 1 {
		page = 1
	}
	if err := c.site.Ready(ctx); err != nil {
		return domain.Listing{}, err
	}
	q := url.Values{
		"vrf":     {c.signer.Sign(keyword)},
		"keyword": {keyword},
		"page":    {strconv.Itoa(page)},
	}
	html, err := c.site.Get(ctx, SearchPath+"?"+q.Encode(), true)
	if err != nil {
		return domain.Listing{}, err
	}
	l, err := extract.ParseListing(html)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("app: 解析搜索结果失败：%w", err)
	}
	c.log.Debug().Str("keyword", keyword).Int("page", page).Int("results", len(l.Results)).Msg("search")
	return l, nil
}

// Trending 返回首页轮播。
func (c *Client) Trending(ctx context.Context) ([]domain.TrendingItem, error) {
	if err := c.site.Ready(ctx); err != nil {
		return nil, err
	}
	html, err := c.site.Get(ctx, HomePath, true)
	if err != nil {
		return nil, err
	}
	items, err := extract.ParseTrending(html)
	if err != nil {
		return nil, fmt.Errorf("app: 解析首页失败：%w", err)
	}
	return items, nil
}

type serversResponse struct {
	HTML string `json:"html"`
}

// SeriesDetail 返回剧集详情（可用 backend + 季/集树）。
func (c *Client) SeriesDetail(ctx context.Context, contentID string) (domain.SeriesDetail, error) {
	contentID = strings.TrimSpace(contentID)
	if contentID == "" {
		return domain.SeriesDetail{}, ErrEmptyContentID
	}
	if err := c.site.Ready(ctx); err != nil {
		return domain.SeriesDetail{}, err
	}
	q := url.Values{
		"id":  {contentID},
		"vrf": {c.signer.Sign(contentID)},
	}
	var resp serversResponse
	if err := c.site.GetJSON(ctx, ServersPath+"?"+q.Encode(), true, &resp); err != nil {
		return domain.SeriesDetail{}, err
	}
	d, err := extract.ParseCatalog([]byte(resp.HTML), c.servers)
	if err != nil {
		return domain.SeriesDetail{}, fmt.Errorf("app: 解析详情失败：%w", err)
	}
	return d, nil
}

// MovieDetail 返回电影详情：backend 名称 => episode id。
// contentID 必须指向电影（详情中有 season 1 / episode 1），否则返回 extract.ErrNoMovieEpisode。
func (c *Client) MovieDetail(ctx context.Context, contentID string) (domain.MovieDetail, error) {
	d, err := c.SeriesDetail(ctx, contentID)
	if err != nil {
		return nil, err
	}
	return extract.ProjectMovie(d)
}

// EpisodeStream 把 episode id 解析为播放地址。
func (c *Client) EpisodeStream(ctx context.Context, episodeID string) (domain.StreamTarget, error) {
	if err := c.site.Ready(ctx); err != nil {
		return domain.StreamTarget{}, err
	}
	return c.resolver.Resolve(ctx, episodeID)
}

// MovieStream 是 MovieDetail + EpisodeStream 的组合；backend 为空时按白名单顺序取第一个可用的。
func (c *Client) MovieStream(ctx context.Context, contentID, backend string) (domain.StreamTarget, error) {
	movie, err := c.MovieDetail(ctx, contentID)
	if err != nil {
		return domain.StreamTarget{}, err
	}
	epID, err := c.pick(movie, backend)
	if err != nil {
		return domain.StreamTarget{}, err
	}
	return c.EpisodeStream(ctx, epID)
}

func (c *Client) pick(sources map[string]string, backend string) (string, error) {
	backend = strings.ToLower(strings.TrimSpace(backend))
	if backend != "" {
		if id, ok := sources[backend]; ok && id != "" {
			return id, nil
		}
		return "", fmt.Errorf("%w：%q", ErrBackendNotAvailable, backend)
	}
	for _, name := range c.servers {
		if id, ok := sources[strings.ToLower(name)]; ok && id != "" {
			return id, nil
		}
	}
	return "", ErrBackendNotAvailable
}

// EpisodeStreams 并发解析一集的所有 backend 片源（sources 以 backend 名称为键）。
// 任一解析失败则整体失败并取消其余解析。
func (c *Client) EpisodeStreams(ctx context.Context, sources map[string]string) (map[string]domain.StreamTarget, error) {
	if err := c.site.Ready(ctx); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]domain.StreamTarget, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(streamWorkers)
	for i, name := range names {
		g.Go(func() error {
			t, err := c.resolver.Resolve(gctx, sources[name])
			if err != nil {
				return fmt.Errorf("backend %s：%w", name, err)
			}
			results[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]domain.StreamTarget, len(names))
	for i, name := range names {
		out[name] = results[i]
	}
	return out, nil
}
