// Package log 封装进程级 zerolog logger。
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config 描述全局 logger 的配置。
type Config struct {
	Level  string    // 可选："debug" / "info" / "warn" ...；为空时读 REDSKULL_LOG_LEVEL
	Output io.Writer // 可选：默认 os.Stderr（stdout 留给 JSON 输出）
}

var (
	once sync.Once
	base = zerolog.Nop()
)

// Configure 只生效一次；后续调用被忽略。
func Configure(cfg Config) {
	once.Do(func() {
		level := zerolog.InfoLevel
		raw := cfg.Level
		if raw == "" {
			raw = os.Getenv("REDSKULL_LOG_LEVEL")
		}
		if raw != "" {
			if parsed, err := zerolog.ParseLevel(raw); err == nil {
				level = parsed
			}
		}
		zerolog.TimeFieldFormat = time.RFC3339

		w := cfg.Output
		if w == nil {
			w = os.Stderr
		}
		base = zerolog.New(zerolog.SyncWriter(w)).Level(level).With().Timestamp().Logger()
	})
}

// WithComponent 返回带 component 字段的子 logger。未调用 Configure 时是 Nop logger（库代码默认静默）。
func WithComponent(component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}
