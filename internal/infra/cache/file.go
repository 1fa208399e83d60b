package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/John-Robertt/redskull/internal/infra/fsx"
)

// File 提供 <root>/cache/http/ 下的文件缓存读写。
//
// 约束：
// - 文件名是 key 的 sha256（避免 URL 中的字符造成路径穿越）
// - 写入走 fsx.WriteFileAtomicReplace（并发写同一 key 时最后一次 rename 胜出）
// - 过期条目不返回，也不主动删除（下一次 Set 覆盖）
type File struct {
	Root string // <root>（缓存根目录）
	now  func() time.Time
}

type fileEntry struct {
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
	Body      []byte    `json:"body"`
}

func NewFile(root string) *File {
	return &File{
		Root: filepath.Clean(strings.TrimSpace(root)),
		now:  time.Now,
	}
}

// Path 返回 key 对应的缓存文件绝对路径。
func (f *File) Path(key string) string {
	return filepath.Join(f.dir(), fileName(key))
}

func (f *File) dir() string { return filepath.Join(f.Root, "cache", "http") }

func fileName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:]) + ".json"
}

func (f *File) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := os.ReadFile(f.Path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var e fileEntry
	if err := json.Unmarshal(b, &e); err != nil {
		// 损坏的缓存文件当作 miss，下一次 Set 会覆盖。
		return nil, false, nil
	}
	// 哈希冲突几乎不可能，但 key 不一致时也当作 miss。
	if e.Key != key || !f.now().Before(e.ExpiresAt) {
		return nil, false, nil
	}
	return e.Body, true, nil
}

func (f *File) Set(_ context.Context, key string, body []byte, ttl time.Duration) error {
	b, err := json.Marshal(fileEntry{
		Key:       key,
		ExpiresAt: f.now().Add(ttl).UTC(),
		Body:      body,
	})
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(f.dir(), fileName(key), b)
}

func (f *File) Close() error { return nil }
