package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

// Configure 只生效一次，因此默认值与配置后的行为放在同一个测试里按顺序验证。
func TestConfigure_OnceAndComponent(t *testing.T) {
	if l := WithComponent("x"); l.GetLevel() != zerolog.Disabled {
		t.Fatalf("未配置时应为 Nop logger，实际 level=%s", l.GetLevel())
	}

	var buf bytes.Buffer
	Configure(Config{Level: "warn", Output: &buf})
	Configure(Config{Level: "debug", Output: &bytes.Buffer{}})

	l := WithComponent("session")
	l.Info().Msg("丢弃")
	l.Warn().Str("k", "v").Msg("保留")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("期望恰好一行 JSON，实际=%q err=%v", buf.String(), err)
	}
	if line["component"] != "session" || line["level"] != "warn" || line["k"] != "v" || line["message"] != "保留" {
		t.Fatalf("日志字段不符合预期：%v", line)
	}
	if _, ok := line["time"]; !ok {
		t.Fatalf("日志必须带 time 字段：%v", line)
	}
}
