package domain

// SearchResult 是目录页（搜索结果）中的一条条目。
//
// MediaID 是站点详情链接本身（不透明引用），调用方原样回传即可。
type SearchResult struct {
	Title   string `json:"title"`
	Poster  string `json:"poster"`
	Quality string `json:"quality"`
	Rating  string `json:"rating"`
	Type    string `json:"type"`
	MediaID string `json:"media_id"`
}

// Listing 是一页搜索结果。
//
// MaxPage 为空表示页面没有分页锚点：调用方应视为“恰好一页”。
// MaxPage 保留站点给出的原始文本（例如 "5"），不做数值化。
type Listing struct {
	MaxPage string         `json:"max_page_no,omitempty"`
	Results []SearchResult `json:"results"`
}

// HasMaxPage 报告分页信息是否存在。
func (l Listing) HasMaxPage() bool { return l.MaxPage != "" }

// TrendingItem 是首页轮播中的一条条目。
// Type 由详情链接的首个路径段推导（例如 /movie/xxx => movie）。
type TrendingItem struct {
	Title   string `json:"title"`
	Poster  string `json:"poster"`
	Quality string `json:"quality"`
	Rating  string `json:"rating"`
	Type    string `json:"type"`
	MediaID string `json:"media_id"`
}

// ServerMap 是 backend 名称（小写）到站点 server id 的映射。
// 只包含受支持的 backend。
type ServerMap map[string]string

// Inverse 返回 server id => backend 名称。
func (m ServerMap) Inverse() map[string]string {
	out := make(map[string]string, len(m))
	for name, id := range m {
		out[id] = name
	}
	return out
}

// Episode 是某一季中的一集。
// Sources 以站点 server id 为键（只含 ServerMap 中出现的 id），值为 episode id（用于解析播放地址）。
// 需要按 backend 名称取用时用 SeriesDetail.ByBackend。
type Episode struct {
	Name    string            `json:"name"`
	Date    string            `json:"date"`
	Sources map[string]string `json:"sources"`
}

// SeasonTree 按 season => episode 两级整数键组织。
type SeasonTree map[int]map[int]Episode

// Episode 返回指定季/集；不存在时 ok=false。
func (t SeasonTree) Episode(season, episode int) (Episode, bool) {
	eps, ok := t[season]
	if !ok {
		return Episode{}, false
	}
	ep, ok := eps[episode]
	return ep, ok
}

// SeriesDetail 是剧集详情：可用 backend + 季/集树。
type SeriesDetail struct {
	Servers  ServerMap  `json:"servers"`
	Episodes SeasonTree `json:"episodes"`
}

// ByBackend 把 id 键的 Sources 重新按 backend 名称为键；不在 Servers 中的 id 被丢弃。
func (d SeriesDetail) ByBackend(sources map[string]string) map[string]string {
	inv := d.Servers.Inverse()
	out := make(map[string]string, len(sources))
	for id, epID := range sources {
		if name, ok := inv[id]; ok {
			out[name] = epID
		}
	}
	return out
}

// MovieDetail 是电影详情：backend 名称 => episode id。
// 它等价于 SeriesDetail.ByBackend(Episodes[1][1].Sources)。
type MovieDetail map[string]string

// StreamTarget 是一次解析的最终结果。
//
// URL 为空表示投递页属于未实现的 backend（不是错误，调用方可以换一个 backend 重试）。
type StreamTarget struct {
	URL         string `json:"url"`
	Backend     string `json:"backend,omitempty"`
	DeliveryURL string `json:"delivery_url,omitempty"`
}

// Playable 报告是否拿到了可播放地址。
func (t StreamTarget) Playable() bool { return t.URL != "" }
