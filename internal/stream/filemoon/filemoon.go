// Package filemoon 实现 filemoon 投递页的播放地址提取。
package filemoon

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/redskull/internal/stream"
	"github.com/John-Robertt/redskull/internal/stream/packer"
)

const name = "filemoon"

// fileRe 匹配播放器配置中的 file:"<绝对 URL>"。
var fileRe = regexp.MustCompile(`file\s*:\s*"((?:http|ftp|https)://[\w_-]+(?:\.[\w_-]+)+[\w.,@?^=%&:/~+#-]*[\w@?^=%&/~+#-])"`)

type Backend struct{}

func New() Backend { return Backend{} }

func (Backend) Name() string { return name }

// Match 认领 URL 中含 "filemoon" 的投递页（域名经常更换）。
func (Backend) Match(u *url.URL) bool {
	if u == nil {
		return false
	}
	return strings.Contains(strings.ToLower(u.String()), name)
}

// Unpack 抓取投递页并返回 m3u8 地址。投递页不缓存。
func (Backend) Unpack(ctx context.Context, f stream.Fetcher, deliveryURL string) (string, error) {
	html, err := f.Get(ctx, deliveryURL, false)
	if err != nil {
		return "", &stream.Error{Stage: stream.StageDeliveryPageFetched, Err: err}
	}

	script, err := locate(html)
	if err != nil {
		return "", &stream.Error{Stage: stream.StagePayloadLocated, Err: err}
	}

	src, err := packer.Unpack(script)
	if err != nil {
		return "", &stream.Error{Stage: stream.StagePayloadUnpacked, Err: fmt.Errorf("%w: %w", stream.ErrPayloadMalformed, err)}
	}

	m3u8, err := Extract(src)
	if err != nil {
		return "", &stream.Error{Stage: stream.StageURLExtracted, Err: err}
	}
	return m3u8, nil
}

// locate 返回最后一个以 packer 包装函数开头的 <script> 文本。
func locate(html []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", err
	}
	var found string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if t := s.Text(); packer.Detect(t) {
			found = t
		}
	})
	if found == "" {
		return "", stream.ErrPayloadNotFound
	}
	return found, nil
}

// Extract 从还原后的播放器脚本里取第一个 file:"..." 地址，并要求它是 m3u8。
func Extract(src string) (string, error) {
	m := fileRe.FindStringSubmatch(src)
	if m == nil {
		return "", stream.ErrStreamURLNotFound
	}
	if !strings.Contains(m[1], "m3u8") {
		return "", fmt.Errorf("%w：%s", stream.ErrUnexpectedStreamFormat, m[1])
	}
	return m[1], nil
}
