package filemoon

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/redskull/internal/stream"
	"github.com/John-Robertt/redskull/internal/stream/packer"
)

const packHead = `eval(function(p,a,c,k,e,d){while(c--)if(k[c])p=p.replace(new RegExp('\\b'+c.toString(a)+'\\b','g'),k[c]);return p}`

// jwplayer("v").setup({sources:[{file:"https://cdn.test/hls/master.<ext>"}]})
func playerScript(ext string) string {
	return packHead + `('0("1").2({3:[{4:"5://6.7/8/9.10"}]})',10,11,'jwplayer|v|setup|sources|file|https|cdn|test|hls|master|` + ext + `'.split('|'),0,{}))`
}

type pageFetcher map[string][]byte

func (p pageFetcher) Get(_ context.Context, ref string, cacheable bool) ([]byte, error) {
	if cacheable {
		return nil, errors.New("投递页不应走缓存")
	}
	b, ok := p[ref]
	if !ok {
		return nil, errors.New("not found: " + ref)
	}
	return b, nil
}

const deliveryURL = "https://filemoon.test/e/abc123"

func page(scripts ...string) []byte {
	html := "<html><head><script src=\"/jw.js\"></script></head><body><div id=\"vplayer\"></div>"
	for _, s := range scripts {
		html += "<script type=\"text/javascript\">" + s + "</script>"
	}
	return []byte(html + "</body></html>")
}

func TestUnpack_ReturnsM3U8(t *testing.T) {
	f := pageFetcher{deliveryURL: page("var a=1;", playerScript("m3u8"))}
	got, err := New().Unpack(context.Background(), f, deliveryURL)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/hls/master.m3u8", got)
}

func TestUnpack_LastPackedScriptWins(t *testing.T) {
	f := pageFetcher{deliveryURL: page(playerScript("mp4"), playerScript("m3u8"))}
	got, err := New().Unpack(context.Background(), f, deliveryURL)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/hls/master.m3u8", got)
}

func TestUnpack_NoScript(t *testing.T) {
	f := pageFetcher{deliveryURL: page("var player = {};", "eval(atob('eA=='))")}
	_, err := New().Unpack(context.Background(), f, deliveryURL)
	require.ErrorIs(t, err, stream.ErrPayloadNotFound)

	var se *stream.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, stream.StagePayloadLocated, se.Stage)
}

func TestUnpack_NotM3U8(t *testing.T) {
	f := pageFetcher{deliveryURL: page(playerScript("mp4"))}
	_, err := New().Unpack(context.Background(), f, deliveryURL)
	require.ErrorIs(t, err, stream.ErrUnexpectedStreamFormat)

	var se *stream.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, stream.StageURLExtracted, se.Stage)
}

func TestUnpack_NoFileField(t *testing.T) {
	script := packHead + `('0("1").2({3:[]})',10,4,'jwplayer|v|setup|sources'.split('|'),0,{}))`
	f := pageFetcher{deliveryURL: page(script)}
	_, err := New().Unpack(context.Background(), f, deliveryURL)
	require.ErrorIs(t, err, stream.ErrStreamURLNotFound)
}

func TestUnpack_MalformedScript(t *testing.T) {
	script := packHead + `('0 1',200,2,'a|b'.split('|'),0,{}))`
	f := pageFetcher{deliveryURL: page(script)}
	_, err := New().Unpack(context.Background(), f, deliveryURL)
	require.ErrorIs(t, err, stream.ErrPayloadMalformed)
	require.ErrorIs(t, err, packer.ErrMalformed)

	var se *stream.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, stream.StagePayloadUnpacked, se.Stage)
}

func TestUnpack_FetchError(t *testing.T) {
	_, err := New().Unpack(context.Background(), pageFetcher{}, deliveryURL)
	var se *stream.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, stream.StageDeliveryPageFetched, se.Stage)
}

func TestMatch(t *testing.T) {
	for raw, want := range map[string]bool{
		"https://filemoon.sx/e/abc":        true,
		"https://FILEMOON.to/e/abc":        true,
		"http://127.0.0.1:8080/filemoon/e": true,
		"https://mcloud.to/e/abc":          false,
	} {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, want, New().Match(u), raw)
	}
	assert.False(t, New().Match(nil))
}

func TestExtract(t *testing.T) {
	got, err := Extract(`p.setup({file : "https://x.cdn.test/a/b/index-v1-a1.m3u8?t=9&e=1"});`)
	require.NoError(t, err)
	assert.Equal(t, "https://x.cdn.test/a/b/index-v1-a1.m3u8?t=9&e=1", got)

	// 主机名至少要有一个点。
	_, err = Extract(`{file:"https://localhost/x.m3u8"}`)
	assert.ErrorIs(t, err, stream.ErrStreamURLNotFound)
}
