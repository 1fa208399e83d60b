package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/John-Robertt/redskull/internal/extract"
	"github.com/John-Robertt/redskull/internal/vrf"
)

const (
	// ErrCodeNotFound 表示 --config 显式指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	// FileName 是 cwd 下默认读取的配置文件名（可选）。
	FileName = "redskull.json"
	// EnvFileName 是 cwd 下默认读取的 dotenv 文件名（可选）。
	EnvFileName = ".env"

	DefaultBaseURL      = "https://hdtoday.ru"
	DefaultTimeout      = 20 * time.Second
	DefaultCacheBackend = "memory"
	DefaultCacheTTL     = 30 * time.Minute
	DefaultLogLevel     = "info"
	// DefaultCacheDir 相对 cwd；只有 file / badger 后端会用到。
	DefaultCacheDir = ".redskull"

	maxKeyLen = 256
)

// 环境变量覆盖项（优先级高于配置文件）。
const (
	EnvBaseURL   = "REDSKULL_BASE_URL"
	EnvProxy     = "REDSKULL_PROXY"
	EnvCache     = "REDSKULL_CACHE"
	EnvRedisAddr = "REDSKULL_REDIS_ADDR"
	EnvLogLevel  = "REDSKULL_LOG_LEVEL"
)

// CLIArgs 只包含 CLI 暴露的入口；空串表示未指定。
type CLIArgs struct {
	ConfigPath string
	LogLevel   string
}

// FileConfig 对应 redskull.json 的解析结构。
type FileConfig struct {
	BaseURL          string       `json:"base_url"`
	Proxy            *ProxyConfig `json:"proxy"`
	TimeoutSec       int          `json:"timeout_sec"`
	RatePerSec       float64      `json:"rate_per_sec"`
	Cache            *CacheConfig `json:"cache"`
	SupportedServers []string     `json:"supported_servers"`
	VRF              *VRFConfig   `json:"vrf"`
	LogLevel         string       `json:"log_level"`
}

type ProxyConfig struct {
	URL string `json:"url"`
}

type CacheConfig struct {
	Backend   string `json:"backend"`
	Dir       string `json:"dir"`
	RedisAddr string `json:"redis_addr"`
	RedisDB   int    `json:"redis_db"`
	TTLSec    int    `json:"ttl_sec"`
}

// VRFConfig 覆盖签名/解码密钥（站点换 key 时不需要改代码）。
type VRFConfig struct {
	SignKey   string `json:"sign_key"`
	DecodeKey string `json:"decode_key"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	BaseURL    string
	ProxyURL   string
	Timeout    time.Duration
	RatePerSec float64

	CacheBackend string
	CacheDir     string
	RedisAddr    string
	RedisDB      int
	CacheTTL     time.Duration

	SupportedServers []string
	SignKey          string
	DecodeKey        string

	LogLevel string

	// Source 是实际读取的配置文件路径；没有读到文件时为空。
	Source string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 读取配置文件与 dotenv，然后与环境变量、CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 --config：必须存在
// 2) 否则尝试 <cwd>/redskull.json（可选）
// 3) <cwd>/.env（可选）只补充进程环境中没有的变量，不修改进程环境
//
// 覆盖优先级（固定）：
// - log_level：CLI > env > config > 默认 info
// - base_url / proxy / cache.backend / cache.redis_addr：env > config > 默认
// - 其他字段：仅由 config 控制
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	env, err := loadEnv(filepath.Join(cwdAbs, EnvFileName))
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: filepath.Join(cwdAbs, EnvFileName), Err: err}
	}

	var (
		cfgPath string
		fc      FileConfig
		exists  bool
	)
	if p := strings.TrimSpace(cli.ConfigPath); p != "" {
		cfgPath = absCleanFrom(cwdAbs, p)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
	} else {
		cfgPath = filepath.Join(cwdAbs, FileName)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
	}

	eff, err := merge(cwdAbs, cli, fc, env)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if exists {
		eff.Source = cfgPath
	}
	return eff, nil
}

// lookupFunc 先查进程环境，再查 dotenv；空值视为未设置。
type lookupFunc func(key string) string

func loadEnv(path string) (lookupFunc, error) {
	dot, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			dot = nil
		} else {
			return nil, err
		}
	}
	return func(key string) string {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		return strings.TrimSpace(dot[key])
	}, nil
}

func merge(cwd string, cli CLIArgs, fc FileConfig, env lookupFunc) (EffectiveConfig, error) {
	baseURL := firstNonEmpty(env(EnvBaseURL), fc.BaseURL, DefaultBaseURL)
	if err := validateHTTPURL("base_url", baseURL); err != nil {
		return EffectiveConfig{}, err
	}
	baseURL = strings.TrimRight(baseURL, "/")

	proxyURL := env(EnvProxy)
	if proxyURL == "" && fc.Proxy != nil {
		proxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return EffectiveConfig{}, fmt.Errorf("proxy.url 无效：%w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return EffectiveConfig{}, fmt.Errorf("proxy.url 必须包含 scheme 与 host：%q", proxyURL)
		}
	}

	if fc.TimeoutSec < 0 {
		return EffectiveConfig{}, fmt.Errorf("timeout_sec 不能为负：%d", fc.TimeoutSec)
	}
	timeout := DefaultTimeout
	if fc.TimeoutSec > 0 {
		timeout = time.Duration(fc.TimeoutSec) * time.Second
	}
	if fc.RatePerSec < 0 {
		return EffectiveConfig{}, fmt.Errorf("rate_per_sec 不能为负：%v", fc.RatePerSec)
	}

	cc := CacheConfig{}
	if fc.Cache != nil {
		cc = *fc.Cache
	}
	backend := strings.ToLower(firstNonEmpty(env(EnvCache), cc.Backend, DefaultCacheBackend))
	redisAddr := firstNonEmpty(env(EnvRedisAddr), cc.RedisAddr)
	cacheDir := ""
	switch backend {
	case "memory", "none":
	case "file", "badger":
		cacheDir = absCleanFrom(cwd, firstNonEmpty(cc.Dir, DefaultCacheDir))
	case "redis":
		if redisAddr == "" {
			return EffectiveConfig{}, fmt.Errorf("cache.backend=redis 但 cache.redis_addr 为空")
		}
	default:
		return EffectiveConfig{}, fmt.Errorf("cache.backend 只能是 memory/file/badger/redis/none，实际是 %q", backend)
	}
	if cc.TTLSec < 0 {
		return EffectiveConfig{}, fmt.Errorf("cache.ttl_sec 不能为负：%d", cc.TTLSec)
	}
	ttl := DefaultCacheTTL
	if cc.TTLSec > 0 {
		ttl = time.Duration(cc.TTLSec) * time.Second
	}

	servers, err := normalizeServers(fc.SupportedServers)
	if err != nil {
		return EffectiveConfig{}, err
	}

	signKey, decodeKey := vrf.DefaultSignKey, vrf.DefaultDecodeKey
	if fc.VRF != nil {
		if fc.VRF.SignKey != "" {
			signKey = fc.VRF.SignKey
		}
		if fc.VRF.DecodeKey != "" {
			decodeKey = fc.VRF.DecodeKey
		}
	}
	if len(signKey) > maxKeyLen || len(decodeKey) > maxKeyLen {
		return EffectiveConfig{}, fmt.Errorf("vrf key 长度必须在 1..%d 之间", maxKeyLen)
	}

	level := strings.ToLower(firstNonEmpty(cli.LogLevel, env(EnvLogLevel), fc.LogLevel, DefaultLogLevel))
	if _, err := zerolog.ParseLevel(level); err != nil {
		return EffectiveConfig{}, fmt.Errorf("log_level 无效：%q", level)
	}

	return EffectiveConfig{
		BaseURL:          baseURL,
		ProxyURL:         proxyURL,
		Timeout:          timeout,
		RatePerSec:       fc.RatePerSec,
		CacheBackend:     backend,
		CacheDir:         cacheDir,
		RedisAddr:        redisAddr,
		RedisDB:          cc.RedisDB,
		CacheTTL:         ttl,
		SupportedServers: servers,
		SignKey:          signKey,
		DecodeKey:        decodeKey,
		LogLevel:         level,
	}, nil
}

func normalizeServers(in []string) ([]string, error) {
	if len(in) == 0 {
		return append([]string(nil), extract.DefaultServers...), nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			return nil, fmt.Errorf("supported_servers 不能包含空值")
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s 无效：%q", field, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s 必须是 http/https：%q", field, raw)
	}
	return nil
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
