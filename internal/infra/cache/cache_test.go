package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestMemory_GetSetExpire(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{t: time.Unix(1000, 0)}
	m := NewMemory(0)
	m.now = clk.now
	defer m.Close()

	require.NoError(t, m.Set(ctx, "https://x.test/a", []byte("A"), time.Minute))
	b, ok, err := m.Get(ctx, "https://x.test/a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A", string(b))

	_, ok, _ = m.Get(ctx, "https://x.test/missing")
	assert.False(t, ok)

	clk.t = clk.t.Add(time.Minute)
	_, ok, _ = m.Get(ctx, "https://x.test/a")
	assert.False(t, ok, "到期即视为 miss")

	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 1, m.deleteExpired())
	assert.Equal(t, 0, m.Len())
}

func TestMemory_SetCopiesBody(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)
	body := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", body, time.Minute))
	body[0] = 'X'
	got, _, _ := m.Get(ctx, "k")
	assert.Equal(t, "abc", string(got))
}

func TestMemory_JanitorStopsOnClose(t *testing.T) {
	m := NewMemory(5 * time.Millisecond)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}

func TestFile_ReadWriteExpire(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{t: time.Unix(5000, 0)}
	f := NewFile(t.TempDir())
	f.now = clk.now

	key := "https://hdtoday.test/search?keyword=a%2Fb&page=1"
	require.NoError(t, f.Set(ctx, key, []byte("<html/>"), 30*time.Minute))

	_, err := os.Stat(f.Path(key))
	require.NoError(t, err, "期望文件存在")

	b, ok, err := f.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "<html/>", string(b))

	clk.t = clk.t.Add(31 * time.Minute)
	_, ok, err = f.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFile_CorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	f := NewFile(t.TempDir())
	require.NoError(t, f.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, os.WriteFile(f.Path("k"), []byte("{not json"), 0o644))

	_, ok, err := f.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBadger_GetSet(t *testing.T) {
	ctx := context.Background()
	b, err := OpenBadger(t.TempDir())
	require.NoError(t, err)
	defer b.Close()

	_, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Set(ctx, "k", []byte("v1"), time.Hour))
	require.NoError(t, b.Set(ctx, "k", []byte("v2"), time.Hour))
	got, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", string(got))
}

func TestRedis_GetSetExpire(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	r := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer r.Close()

	require.NoError(t, r.Set(ctx, "https://x.test/home", []byte("home"), 30*time.Minute))
	assert.True(t, mr.Exists(redisKeyPrefix+"https://x.test/home"))

	got, ok, err := r.Get(ctx, "https://x.test/home")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "home", string(got))

	mr.FastForward(31 * time.Minute)
	_, ok, err = r.Get(ctx, "https://x.test/home")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpen_Backends(t *testing.T) {
	ctx := context.Background()

	c, err := Open(ctx, Options{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, c)
	require.NoError(t, c.Close())

	c, err = Open(ctx, Options{Backend: "NONE"})
	require.NoError(t, err)
	assert.IsType(t, Nop{}, c)

	c, err = Open(ctx, Options{Backend: "file", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &File{}, c)

	_, err = Open(ctx, Options{Backend: "file"})
	require.Error(t, err)

	_, err = Open(ctx, Options{Backend: "memcached"})
	require.ErrorIs(t, err, ErrUnknownBackend)

	mr := miniredis.RunT(t)
	c, err = Open(ctx, Options{Backend: "redis", RedisAddr: mr.Addr()})
	require.NoError(t, err)
	assert.IsType(t, &Redis{}, c)
	require.NoError(t, c.Close())
}
