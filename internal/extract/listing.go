// Package extract 把站点页面（HTML 片段）解析为结构化结果。
//
// 约束：
// - 所有函数都是纯函数：相同输入 => 相同输出，不做任何 I/O
// - 可选字段缺失时返回空串，不报错（站点模板经常少字段）
package extract

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/redskull/internal/domain"
)

// 分页“下一段/最后一页”箭头。
const pageArrow = "»"

// ParseListing 把搜索结果页解析为 Listing（最大页码 + 条目）。
func ParseListing(html []byte) (domain.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return domain.Listing{}, err
	}

	results := make([]domain.SearchResult, 0, 32)
	doc.Find("div.filmlist > div.item").Each(func(_ int, s *goquery.Selection) {
		r := domain.SearchResult{
			Title:   attr(s.Find("a.poster").First(), "title"),
			Poster:  attr(s.Find("a.poster > img").First(), "src"),
			Quality: text(s.Find("div.icons > div.quality").First()),
			Rating:  text(s.Find("span.imdb").First()),
			Type:    text(s.Find("div.meta > i.type").First()),
			MediaID: attr(s.Find("a.poster").First(), "href"),
		}
		// 没有详情链接的条目无法继续解析，直接丢弃。
		if r.MediaID == "" {
			return
		}
		results = append(results, r)
	})

	return domain.Listing{
		MaxPage: maxPage(doc),
		Results: results,
	}, nil
}

// maxPage 从左到右扫描分页锚点：箭头锚点优先，否则取最后一个锚点；
// 返回其 page 参数。没有锚点（或锚点没有 page 参数）时返回空串。
func maxPage(doc *goquery.Document) string {
	anchors := doc.Find("div.content > div.pagenav > ul.pagination > li > a")
	n := anchors.Length()
	if n == 0 {
		return ""
	}

	last := anchors.Last()
	anchors.EachWithBreak(func(i int, a *goquery.Selection) bool {
		if text(a) == pageArrow {
			last = a
			return false
		}
		return true
	})
	return pageParam(attr(last, "href"))
}

func pageParam(href string) string {
	if href == "" {
		return ""
	}
	q := href
	if u, err := url.Parse(href); err == nil {
		q = u.RawQuery
	} else if i := strings.IndexByte(href, '?'); i >= 0 {
		q = href[i+1:]
	}
	vals, err := url.ParseQuery(q)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(vals.Get("page"))
}

// ParseTrending 把首页轮播解析为 TrendingItem 列表。
func ParseTrending(html []byte) ([]domain.TrendingItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	items := make([]domain.TrendingItem, 0, 16)
	doc.Find("div#slider > div.swiper-wrapper > div.item.swiper-slide").Each(func(_ int, s *goquery.Selection) {
		info := s.Find("div.container > div.info").First()
		link := attr(info.Find("div.actions > a.watchnow").First(), "href")
		items = append(items, domain.TrendingItem{
			Title:   text(info.Find("h3.title").First()),
			Poster:  attr(s, "data-src"),
			Quality: text(info.Find("div.meta > span.quality").First()),
			Rating:  text(info.Find("div.meta > span.imdb").First()),
			Type:    TypeFromLink(link),
			MediaID: link,
		})
	})
	return items, nil
}

// TypeFromLink 去掉开头的 "/" 后取第一个路径段（/movie/xxx => movie）。
func TypeFromLink(link string) string {
	link = strings.TrimPrefix(strings.TrimSpace(link), "/")
	head, _, _ := strings.Cut(link, "/")
	return head
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}

func text(s *goquery.Selection) string { return normSpace(s.Text()) }

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }
