// Package packer 还原 Dean Edwards p.a.c.k.e.r 形式的混淆脚本。
//
// 约束：
// - 只做模式还原（payload + 符号表替换），不执行任何 JS
// - 纯函数：相同输入 => 相同输出
package packer

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformed 表示脚本不是可识别的 packer 结构（参数缺失、radix/count 非法等）。
var ErrMalformed = errors.New("packer: 脚本结构不可识别")

const (
	alnum62 = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	ascii95 = " !\"#$%&'()*+,-./0123456789:;<=>?@ABCDEFGHIJKLMNOPQRSTUVWXYZ[\\]^_`abcdefghijklmnopqrstuvwxyz{|}~"
)

var (
	headRe = regexp.MustCompile(`^eval\s*\(\s*function\s*\(\s*p\s*,\s*a\s*,\s*c\s*,\s*k\s*,\s*e\s*,\s*[rd]\s*\)`)
	// }('payload', radix, count, 'k|e|y'.split('|')
	argsRe = regexp.MustCompile(`(?s)\}\s*\(\s*'((?:[^'\\]|\\.)*)'\s*,\s*(\d+|\[\])\s*,\s*(\d+)\s*,\s*'((?:[^'\\]|\\.)*)'\s*\.split\(\s*'\|'\s*\)`)
	wordRe = regexp.MustCompile(`\b\w+\b`)
)

// Detect 报告 script 是否以 packer 包装函数开头（忽略前导空白）。
func Detect(script string) bool {
	return headRe.MatchString(strings.TrimSpace(script))
}

// Unpack 还原 packer 脚本，返回原始源码。
func Unpack(script string) (string, error) {
	m := argsRe.FindStringSubmatch(script)
	if m == nil {
		return "", fmt.Errorf("%w：找不到 payload 参数", ErrMalformed)
	}
	payload := unescape(m[1])

	radix := 62
	if m[2] != "[]" {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return "", fmt.Errorf("%w：radix %q", ErrMalformed, m[2])
		}
		radix = n
	}
	if radix < 2 || radix > len(ascii95) {
		return "", fmt.Errorf("%w：radix 超出范围：%d", ErrMalformed, radix)
	}

	count, err := strconv.Atoi(m[3])
	if err != nil {
		return "", fmt.Errorf("%w：count %q", ErrMalformed, m[3])
	}
	// 只有下标 < count 的符号参与替换；符号表长短不一时按两者较小者截断。
	keys := strings.Split(unescape(m[4]), "|")
	if len(keys) > count {
		keys = keys[:count]
	}

	decode := unbaser(radix)
	return wordRe.ReplaceAllStringFunc(payload, func(word string) string {
		i, ok := decode(word)
		if !ok || i < 0 || i >= len(keys) || keys[i] == "" {
			return word
		}
		return keys[i]
	}), nil
}

// unbaser 返回把 token 还原为符号表下标的函数。
// radix<=36 只接受 Number.toString(radix) 的小写输出；更大的 radix 使用 packer 自己的字母表。
// 溢出 int 的 token 一律视为不可还原。
func unbaser(radix int) func(string) (int, bool) {
	if radix <= 36 {
		return func(s string) (int, bool) {
			if strings.ContainsAny(s, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
				return 0, false
			}
			n, err := strconv.ParseInt(s, radix, strconv.IntSize)
			if err != nil || n < 0 {
				return 0, false
			}
			return int(n), true
		}
	}

	alphabet := alnum62[:min(radix, len(alnum62))]
	if radix > len(alnum62) {
		alphabet = ascii95[:radix]
	}
	index := make(map[rune]int, len(alphabet))
	for i, r := range alphabet {
		index[r] = i
	}
	return func(s string) (int, bool) {
		n := 0
		for _, r := range s {
			d, ok := index[r]
			if !ok || n > (math.MaxInt-d)/radix {
				return 0, false
			}
			n = n*radix + d
		}
		return n, true
	}
}

// unescape 处理 JS 单引号字符串里的转义（只覆盖 packer 会产生的几种）。
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
