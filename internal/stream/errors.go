package stream

import (
	"errors"
	"fmt"
)

// Stage 是解析状态机中的状态。
// Error.Stage 记录失败时正在进入的状态。
type Stage string

const (
	StageIdentifierReceived  Stage = "identifier_received"
	StageDeliveryRefFetched  Stage = "delivery_ref_fetched"
	StageDeliveryRefDecoded  Stage = "delivery_ref_decoded"
	StageDeliveryPageFetched Stage = "delivery_page_fetched"
	StagePayloadLocated      Stage = "payload_located"
	StagePayloadUnpacked     Stage = "payload_unpacked"
	StageURLExtracted        Stage = "url_extracted"
)

var (
	// ErrPayloadNotFound 表示投递页里没有混淆播放器脚本。
	ErrPayloadNotFound = errors.New("stream: 投递页中没有找到播放器脚本")
	// ErrPayloadMalformed 表示找到了脚本但无法还原。
	ErrPayloadMalformed = errors.New("stream: 播放器脚本无法还原")
	// ErrStreamURLNotFound 表示还原后的脚本里没有 file:"<url>" 片段。
	ErrStreamURLNotFound = errors.New("stream: 播放器脚本中没有播放地址")
	// ErrUnexpectedStreamFormat 表示找到了地址但不是 m3u8。
	ErrUnexpectedStreamFormat = errors.New("stream: 播放地址不是 m3u8")
)

// Error 是解析阶段的可追溯错误。
type Error struct {
	Stage   Stage
	Backend string // 进入 backend 之前为空
	URL     string // 当前阶段正在处理的 URL（可能为空）
	Err     error
}

func (e *Error) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("stream stage=%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("stream backend=%s stage=%s: %v", e.Backend, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
