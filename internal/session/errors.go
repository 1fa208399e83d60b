package session

import (
	"fmt"
	"strings"
)

// HTTPStatusError 表示站点返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	StatusCode int
	Location   string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d location=%s", e.StatusCode, loc)
}

// NetworkError 是网络层失败的外壳：传输错误、非 2xx、读 body 失败。
//
// 约束：session 层不重试；错误原样交给调用方。
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network: GET %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StatusCode 返回非 2xx 时的状态码；其它情况返回 0。
func (e *NetworkError) StatusCode() int {
	if se, ok := e.Err.(*HTTPStatusError); ok {
		return se.StatusCode
	}
	return 0
}
