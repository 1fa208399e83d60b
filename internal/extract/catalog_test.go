package extract

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/redskull/internal/domain"
)

const seriesHTML = `<div id="servers">
  <div class="server" data-id="41"><div>Filemoon</div></div>
  <div class="server" data-id="28"><div>MyCloud</div></div>
  <div class="server" data-id="35"><div>Streamtape</div></div>
</div>
<div id="episodes">
  <div class="episodes" data-season="1">
    <div class="range">
      <div class="episode"><a data-kname="1-1" title="Episode 1 - Pilot - Mar 24, 2005"
         data-ep='{"41":"ep-f-1","28":"ep-m-1"}'><span class="name">Pilot</span></a></div>
      <div class="episode"><a data-kname="1-2-end" title="Episode 2 - Diversity Day - Mar 29, 2005"
         data-ep='{"41":"ep-f-2"}'><span class="name">Diversity Day</span></a></div>
      <div class="episode"><a data-kname="1-x" title="bad" data-ep='{"41":"ep-f-x"}'><span class="name">Bad</span></a></div>
      <div class="episode"><a data-kname="1-3" title="broken json" data-ep='{"41":'><span class="name">Broken</span></a></div>
    </div>
  </div>
  <div class="episodes" data-season="2">
    <div class="range">
      <div class="episode"><a data-kname="2-1" title="Episode 1 - The Dundies - Sep 20, 2005"
         data-ep='{"35":"ep-s-1","41":12345}'><span class="name">The Dundies</span></a></div>
    </div>
  </div>
  <div class="episodes" data-season="abc"><div class="range"></div></div>
</div>`

func TestParseCatalog_Series(t *testing.T) {
	got, err := ParseCatalog([]byte(seriesHTML), DefaultServers)
	require.NoError(t, err)

	want := domain.SeriesDetail{
		Servers: domain.ServerMap{"filemoon": "41"},
		Episodes: domain.SeasonTree{
			1: {
				1: {Name: "Pilot", Date: "Mar 24, 2005", Sources: map[string]string{"41": "ep-f-1"}},
				2: {Name: "Diversity Day", Date: "Mar 29, 2005", Sources: map[string]string{"41": "ep-f-2"}},
			},
			2: {
				1: {Name: "The Dundies", Date: "Sep 20, 2005", Sources: map[string]string{"41": "12345"}},
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("SeriesDetail 不符合预期 (-want +got):\n%s", diff)
	}
	_, ok := got.Episodes[3]
	assert.False(t, ok, "不存在的季不应出现")
}

func TestParseCatalog_MultipleSupportedServers(t *testing.T) {
	got, err := ParseCatalog([]byte(seriesHTML), []string{"FileMoon", "mycloud"})
	require.NoError(t, err)
	assert.Equal(t, domain.ServerMap{"filemoon": "41", "mycloud": "28"}, got.Servers)
	assert.Equal(t, map[string]string{"41": "ep-f-1", "28": "ep-m-1"}, got.Episodes[1][1].Sources)
	// 35 不在 ServerMap 中，被过滤。
	assert.Equal(t, map[string]string{"41": "12345"}, got.Episodes[2][1].Sources)
}

func TestParseCatalog_ServerNameJoinsInnerDivs(t *testing.T) {
	html := `<div id="servers">
  <div class="server" data-id="41"><div>File</div><div>moon</div></div>
  <div class="server" data-id="28"><div><span>My</span></div><div>Cloud</div></div>
</div>`
	got, err := ParseCatalog([]byte(html), []string{"filemoon", "mycloud"})
	require.NoError(t, err)
	assert.Equal(t, domain.ServerMap{"filemoon": "41", "mycloud": "28"}, got.Servers)
}

func TestParseCatalog_EmptyDocument(t *testing.T) {
	got, err := ParseCatalog(nil, DefaultServers)
	require.NoError(t, err)
	assert.Empty(t, got.Servers)
	assert.Empty(t, got.Episodes)
}

func TestParseCatalog_ServerMapKeysStayInAllowList(t *testing.T) {
	names := []string{"Filemoon", "FILEMOON", "mycloud", "Vidstream", "streamtape", "", " filemoon ", "doodstream", "filemoon2"}
	allow := map[string]bool{"filemoon": true, "streamtape": true}
	rnd := rand.New(rand.NewSource(7))

	for round := 0; round < 200; round++ {
		var b strings.Builder
		b.WriteString(`<div id="servers">`)
		for i := 0; i < rnd.Intn(6); i++ {
			fmt.Fprintf(&b, `<div class="server" data-id="%d"><div>%s</div></div>`, rnd.Intn(100), names[rnd.Intn(len(names))])
		}
		b.WriteString(`</div>`)

		got, err := ParseCatalog([]byte(b.String()), []string{"filemoon", "streamtape"})
		require.NoError(t, err)
		for k := range got.Servers {
			require.True(t, allow[k], "ServerMap 出现白名单之外的 key：%q (html=%s)", k, b.String())
		}
	}
}

func TestEpisodeOrdinal(t *testing.T) {
	cases := map[string]int{
		"ep-3-end": 3,
		"ep-full":  1,
		"1-12":     12,
		"7":        7,
		"2-full":   1,
		"full-end": 1,
		"1-0":      0,
	}
	for in, want := range cases {
		got, err := EpisodeOrdinal(in)
		require.NoError(t, err, "kname=%q", in)
		assert.Equal(t, want, got, "kname=%q", in)
	}

	for _, bad := range []string{"", "ep-x", "ep-", "end"} {
		_, err := EpisodeOrdinal(bad)
		assert.Error(t, err, "kname=%q", bad)
	}
}

func TestEpisodeOrdinal_FullSuffixAlwaysOne(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	alphabet := "abc123-_xyz9"
	for i := 0; i < 500; i++ {
		n := rnd.Intn(12)
		var b strings.Builder
		for j := 0; j < n; j++ {
			b.WriteByte(alphabet[rnd.Intn(len(alphabet))])
		}
		kname := b.String() + "full"
		got, err := EpisodeOrdinal(kname)
		require.NoError(t, err, "kname=%q", kname)
		require.Equal(t, 1, got, "kname=%q", kname)
	}
}

func TestProjectMovie_EqualsSeriesEpisodeOneRemapped(t *testing.T) {
	html := `<div id="servers">
  <div class="server" data-id="41"><div>Filemoon</div></div>
  <div class="server" data-id="28"><div>MyCloud</div></div>
</div>
<div id="episodes"><div class="episodes" data-season="1"><div class="range">
  <div class="episode"><a data-kname="full" title="Glass Onion - Dec 23, 2022"
     data-ep='{"41":"mv-f","28":"mv-m","99":"mv-x"}'><span class="name">Full</span></a></div>
</div></div></div>`

	supported := []string{"filemoon", "mycloud"}
	series, err := ParseCatalog([]byte(html), supported)
	require.NoError(t, err)

	movie, err := ProjectMovie(series)
	require.NoError(t, err)

	// 手工按 servers 重映射 season1/episode1 的 sources，结果必须完全一致。
	inv := map[string]string{}
	for name, id := range series.Servers {
		inv[id] = name
	}
	want := domain.MovieDetail{}
	for id, ep := range series.Episodes[1][1].Sources {
		want[inv[id]] = ep
	}
	assert.Equal(t, want, movie)
	assert.Equal(t, domain.MovieDetail{"filemoon": "mv-f", "mycloud": "mv-m"}, movie)
}

func TestProjectMovie_MissingEpisode(t *testing.T) {
	_, err := ProjectMovie(domain.SeriesDetail{Episodes: domain.SeasonTree{2: {1: {}}}})
	require.ErrorIs(t, err, ErrNoMovieEpisode)

	_, err = ProjectMovie(domain.SeriesDetail{Episodes: domain.SeasonTree{1: {2: {}}}})
	require.ErrorIs(t, err, ErrNoMovieEpisode)
}
