package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/redskull/internal/domain"
)

// DefaultServers 是默认支持的 backend 白名单（小写）。
var DefaultServers = []string{"filemoon"}

// ErrNoMovieEpisode 表示详情里没有 season 1 / episode 1（调用方把剧集当成了电影）。
var ErrNoMovieEpisode = errors.New("extract: 详情中没有 season 1 / episode 1")

// ParseCatalog 把详情片段解析为 SeriesDetail。
//
// 两阶段，顺序不能换：
// 1) ServerMap：只保留白名单中的 backend
// 2) SeasonTree：每集的 sources 只保留第 1 阶段出现过的 server id
//
// 无法解析的季号/集号/data-ep 只跳过该节点，不让整页失败。
func ParseCatalog(html []byte, supported []string) (domain.SeriesDetail, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return domain.SeriesDetail{}, err
	}
	servers := parseServers(doc, supported)
	return domain.SeriesDetail{
		Servers:  servers,
		Episodes: parseSeasons(doc, servers),
	}, nil
}

func parseServers(doc *goquery.Document, supported []string) domain.ServerMap {
	allow := make(map[string]struct{}, len(supported))
	for _, s := range supported {
		allow[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}

	servers := domain.ServerMap{}
	doc.Find("div#servers > div.server").Each(func(_ int, s *goquery.Selection) {
		// 名称取所有内层 div 文本的拼接。
		name := strings.ToLower(text(s.Find("div")))
		if _, ok := allow[name]; !ok {
			return
		}
		id := attr(s, "data-id")
		if id == "" {
			return
		}
		servers[name] = id
	})
	return servers
}

func parseSeasons(doc *goquery.Document, servers domain.ServerMap) domain.SeasonTree {
	ids := servers.Inverse()
	tree := domain.SeasonTree{}
	doc.Find("div#episodes > div.episodes").Each(func(_ int, s *goquery.Selection) {
		season, err := strconv.Atoi(attr(s, "data-season"))
		if err != nil || season < 0 {
			return
		}
		eps := map[int]domain.Episode{}
		s.Find("div.range > div.episode > a").Each(func(_ int, a *goquery.Selection) {
			n, err := EpisodeOrdinal(attr(a, "data-kname"))
			if err != nil {
				return
			}
			sources, err := parseSources(attr(a, "data-ep"), ids)
			if err != nil {
				return
			}
			eps[n] = domain.Episode{
				Name:    text(a.Find("span.name").First()),
				Date:    episodeDate(attr(a, "title")),
				Sources: sources,
			}
		})
		// 同一季号出现多个块时合并（后出现的同集号覆盖先出现的）。
		if prev, ok := tree[season]; ok {
			for k, v := range eps {
				prev[k] = v
			}
			return
		}
		tree[season] = eps
	})
	return tree
}

// EpisodeOrdinal 从 data-kname（例如 "ep-3-end"、"ep-full"）推导集号。
//
// 规则：去掉末尾 "-end"；以 "full" 结尾一律为 1（特别篇/电影）；
// 否则取最后一个 "-" 分段按十进制解析。
func EpisodeOrdinal(kname string) (int, error) {
	k := strings.TrimSuffix(strings.TrimSpace(kname), "-end")
	if strings.HasSuffix(k, "full") {
		return 1, nil
	}
	seg := k
	if i := strings.LastIndexByte(k, '-'); i >= 0 {
		seg = k[i+1:]
	}
	n, err := strconv.Atoi(seg)
	if err != nil {
		return 0, fmt.Errorf("extract: 无法从 %q 解析集号：%w", kname, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("extract: 集号为负：%q", kname)
	}
	return n, nil
}

// parseSources 解析 data-ep（server id => episode id 的 JSON 对象），只保留已知 id。
// 值既可能是字符串也可能是数字。
func parseSources(raw string, known map[string]string) (map[string]string, error) {
	out := map[string]string{}
	if raw == "" {
		return out, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	for id, v := range m {
		if _, ok := known[id]; !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			s = strings.TrimSpace(string(v))
		}
		if s == "" || s == "null" {
			continue
		}
		out[id] = s
	}
	return out, nil
}

// episodeDate 取 title 中最后一个 " - " 之后的部分（"Episode 3 - Pilot - Sep 22, 2005" => "Sep 22, 2005"）。
func episodeDate(title string) string {
	if i := strings.LastIndex(title, " - "); i >= 0 {
		return strings.TrimSpace(title[i+3:])
	}
	return strings.TrimSpace(title)
}

// ProjectMovie 取 season 1 / episode 1 的 sources，并按 backend 名称重新键。
func ProjectMovie(d domain.SeriesDetail) (domain.MovieDetail, error) {
	ep, ok := d.Episodes.Episode(1, 1)
	if !ok {
		return nil, ErrNoMovieEpisode
	}
	return domain.MovieDetail(d.ByBackend(ep.Sources)), nil
}
