// Package stream 把 episode id 解析为可播放的 HLS 地址。
//
// 状态机（顺序固定，任一步失败即整体失败）：
//
//	IdentifierReceived -> DeliveryRefFetched -> DeliveryRefDecoded
//	-> DeliveryPageFetched -> PayloadLocated -> PayloadUnpacked -> URLExtracted
//
// 前两步由 Resolver 完成；投递页之后的步骤由匹配到的 Backend 完成。
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/John-Robertt/redskull/internal/domain"
	"github.com/John-Robertt/redskull/internal/vrf"
)

// EpisodeInfoPath 返回投递引用（密文）的接口，无需 token。
const EpisodeInfoPath = "/ajax/episode/info"

// ErrEmptyIdentifier 表示 episode id 为空。
var ErrEmptyIdentifier = errors.New("stream: episode id 不能为空")

// Options 描述 NewResolver 的参数。Fetcher 与 Codec 必填。
type Options struct {
	Fetcher  Fetcher
	Codec    vrf.Codec
	Registry Registry
	Logger   zerolog.Logger
}

// Resolver 是无状态的：可以被多个 goroutine 并发使用。
type Resolver struct {
	fetch Fetcher
	codec vrf.Codec
	reg   Registry
	log   zerolog.Logger
}

func NewResolver(opts Options) (*Resolver, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("stream: fetcher 不能为空")
	}
	if opts.Codec == nil {
		return nil, errors.New("stream: codec 不能为空")
	}
	return &Resolver{
		fetch: opts.Fetcher,
		codec: opts.Codec,
		reg:   opts.Registry,
		log:   opts.Logger,
	}, nil
}

type episodeInfo struct {
	URL string `json:"url"`
}

// Resolve 解析 episodeID。
//
// 投递页不属于任何已注册 backend 时返回 URL 为空的 StreamTarget 且 err == nil：
// 这不是失败，调用方可以换一个 backend 的 episode id 再试。
func (r *Resolver) Resolve(ctx context.Context, episodeID string) (domain.StreamTarget, error) {
	episodeID = strings.TrimSpace(episodeID)
	if episodeID == "" {
		return domain.StreamTarget{}, &Error{Stage: StageIdentifierReceived, Err: ErrEmptyIdentifier}
	}

	ref := EpisodeInfoPath + "?" + url.Values{"id": {episodeID}}.Encode()
	body, err := r.fetch.Get(ctx, ref, false)
	if err != nil {
		return domain.StreamTarget{}, &Error{Stage: StageDeliveryRefFetched, URL: ref, Err: err}
	}
	var info episodeInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return domain.StreamTarget{}, &Error{Stage: StageDeliveryRefFetched, URL: ref, Err: fmt.Errorf("解析 episode info 失败：%w", err)}
	}

	deliveryURL, u, err := r.decode(info.URL)
	if err != nil {
		return domain.StreamTarget{}, &Error{Stage: StageDeliveryRefDecoded, URL: ref, Err: err}
	}

	b, ok := r.reg.Match(u)
	if !ok {
		r.log.Debug().Str("delivery_url", deliveryURL).Msg("投递页不属于已支持的 backend")
		return domain.StreamTarget{DeliveryURL: deliveryURL}, nil
	}

	name := strings.ToLower(b.Name())
	m3u8, err := b.Unpack(ctx, r.fetch, deliveryURL)
	if err != nil {
		var se *Error
		if !errors.As(err, &se) {
			se = &Error{Stage: StageDeliveryPageFetched, Err: err}
		}
		if se.Backend == "" {
			se.Backend = name
		}
		if se.URL == "" {
			se.URL = deliveryURL
		}
		return domain.StreamTarget{}, se
	}

	r.log.Debug().Str("backend", name).Str("episode_id", episodeID).Msg("解析完成")
	return domain.StreamTarget{URL: m3u8, Backend: name, DeliveryURL: deliveryURL}, nil
}

// decode 把密文还原为投递页地址，并要求它是绝对 http(s) URL。
func (r *Resolver) decode(ciphertext string) (string, *url.URL, error) {
	plain, err := r.codec.Decode(ciphertext)
	if err != nil {
		return "", nil, err
	}
	plain = strings.TrimSpace(plain)
	u, err := url.Parse(plain)
	if err != nil {
		return "", nil, &vrf.DecodeError{Input: ciphertext, Reason: "url", Err: err}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", nil, &vrf.DecodeError{Input: ciphertext, Reason: "url"}
	}
	return plain, u, nil
}
