// Package vrf 提供站点请求签名（vrf token）与投递参数解码。
//
// 两者都是站点私有算法，随时可能变化：上层只依赖 Signer / Codec 接口，
// 这里的 RC4 实现只是当前版本的参考实现，密钥由配置注入。
package vrf

import (
	"crypto/rc4"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Signer 把原始文本变换为请求 token。
//
// 约束：确定性、无 I/O、无副作用。调用方负责在发送前做 URL 编码。
type Signer interface {
	Sign(text string) string
}

// Codec 把投递引用密文还原为 URL 片段。
//
// 约束：确定性、无 I/O；输入不合法时返回 *DecodeError，调用方不得重试。
type Codec interface {
	Decode(ciphertext string) (string, error)
}

// SignerFunc 让普通函数满足 Signer（测试/替换用）。
type SignerFunc func(text string) string

func (f SignerFunc) Sign(text string) string { return f(text) }

// CodecFunc 让普通函数满足 Codec（测试/替换用）。
type CodecFunc func(ciphertext string) (string, error)

func (f CodecFunc) Decode(ciphertext string) (string, error) { return f(ciphertext) }

// ErrDecode 是所有解码失败的根错误。
var ErrDecode = errors.New("vrf: decode failed")

// DecodeError 记录解码失败的输入与原因。
type DecodeError struct {
	Input  string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	in := e.Input
	if len(in) > 32 {
		in = in[:32] + "..."
	}
	if e.Err != nil {
		return fmt.Sprintf("vrf: 无法解码 %q（%s）：%v", in, e.Reason, e.Err)
	}
	return fmt.Sprintf("vrf: 无法解码 %q（%s）", in, e.Reason)
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDecode}
	}
	return []error{ErrDecode, e.Err}
}

// RC4 是当前站点方案的参考实现：
//
//	Sign(text)   = base64url( rc4(SignKey, QueryEscape(text)) )
//	Decode(ct)   = QueryUnescape( rc4(DecodeKey, base64url⁻¹(ct)) )
//
// SignKey 与 DecodeKey 是两把独立的密钥。
type RC4 struct {
	SignKey   string
	DecodeKey string
}

// 参考密钥（站点更新后通过配置覆盖）。
const (
	DefaultSignKey   = "FWsfu0KQd9vxYGNB"
	DefaultDecodeKey = "8z5Ag5wgagfsOuhz"
)

// Default 返回使用内置参考密钥的实现。
func Default() RC4 {
	return RC4{SignKey: DefaultSignKey, DecodeKey: DefaultDecodeKey}
}

func (r RC4) Sign(text string) string {
	b := rc4XOR(r.SignKey, []byte(url.QueryEscape(text)))
	return base64.RawURLEncoding.EncodeToString(b)
}

func (r RC4) Decode(ciphertext string) (string, error) {
	ct := strings.TrimSpace(ciphertext)
	if ct == "" {
		return "", &DecodeError{Input: ciphertext, Reason: "空输入"}
	}
	raw, err := decodeBase64(ct)
	if err != nil {
		return "", &DecodeError{Input: ciphertext, Reason: "base64", Err: err}
	}
	plain := rc4XOR(r.DecodeKey, raw)
	out, err := url.QueryUnescape(string(plain))
	if err != nil {
		return "", &DecodeError{Input: ciphertext, Reason: "url unescape", Err: err}
	}
	return out, nil
}

// Encode 是 Decode 的配对编码（站点服务端的行为）；用于测试与本地回放。
func (r RC4) Encode(fragment string) string {
	b := rc4XOR(r.DecodeKey, []byte(url.QueryEscape(fragment)))
	return base64.RawURLEncoding.EncodeToString(b)
}

func rc4XOR(key string, in []byte) []byte {
	out := make([]byte, len(in))
	c, err := rc4.NewCipher([]byte(key))
	if err != nil {
		// key 长度由 config 校验（1..256），这里只会因编程错误触发。
		panic(fmt.Sprintf("vrf: 非法 rc4 key（len=%d）", len(key)))
	}
	c.XORKeyStream(out, in)
	return out
}

// decodeBase64 同时接受 URL-safe 与标准字母表、有无 padding。
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	s = strings.NewReplacer("+", "-", "/", "_").Replace(s)
	return base64.RawURLEncoding.DecodeString(s)
}
