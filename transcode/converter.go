// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package transcode 将 G.711 音频转为 AAC，AAC 编码器由外部提供。
package transcode

import (
	"errors"
	"sync"

	"github.com/cnotch/rtpengine/av/codec"
	"github.com/cnotch/rtpengine/av/codec/aac"
	"github.com/cnotch/xlog"
	"github.com/zaf/g711"
)

// leadIn 转码时间线相对首个音频包的提前量（毫秒）
const leadIn = 750

// 错误定义
var (
	ErrUnsupportedCodec = errors.New("transcode: only ALAW and ULAW can be transcoded")
	ErrEmptyInput       = errors.New("transcode: no input data")
)

// Encoder 外部 AAC 编码器
type Encoder interface {
	// InputSamples 每次编码需要的采样数（所有声道合计）
	InputSamples() int
	// MaxOutputBytes 单次编码输出的最大字节数
	MaxOutputBytes() int
	SampleRate() int
	Channels() int
	// Encode 编码恰好 InputSamples 个采样，返回 0 字节表示编码器仍在缓冲。
	// 输出可以是原始 AAC 帧，也可以带 ADTS 头
	Encode(pcm []int16) ([]byte, error)
}

// Converter 单个轨道的 G.711 到 AAC 转换器，并发安全
type Converter struct {
	mu            sync.Mutex
	enc           Encoder
	pcm           []int16
	first         bool
	seeded        bool
	frameMsTime   float64
	frameDuration float64
	config        []byte // 从 ADTS 头得到的 AudioSpecificConfig
	logger        *xlog.Logger
}

// NewConverter 创建转换器
func NewConverter(enc Encoder, logger *xlog.Logger) *Converter {
	if logger == nil {
		logger = xlog.L()
	}
	channels := max(enc.Channels(), 1)
	return &Converter{
		enc:           enc,
		pcm:           make([]int16, 0, enc.InputSamples()*2),
		first:         true,
		frameDuration: float64(enc.InputSamples()) * 1000 / float64(enc.SampleRate()*channels),
		logger:        logger,
	}
}

// FrameDuration 每个 AAC 帧的毫秒时长
func (c *Converter) FrameDuration() float64 { return c.frameDuration }

// Config 编码器输出 ADTS 时对应的 AudioSpecificConfig，尚未得知时为 nil
func (c *Converter) Config() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// Transcode 加入一个 G.711 包，凑够一帧时返回原始 AAC 帧及其时间戳
func (c *Converter) Transcode(id codec.CodecID, payload []byte, msTime int64) (frame []byte, ts int64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id != codec.CodecALAW && id != codec.CodecULAW {
		c.logger.Errorf("transcode: unsupported codec %s provided", id)
		return nil, 0, ErrUnsupportedCodec
	}
	if len(payload) == 0 {
		c.logger.Errorf("transcode: no %s input data provided", id)
		return nil, 0, ErrEmptyInput
	}

	if !c.seeded {
		c.seeded = true
		c.frameMsTime = float64(msTime - leadIn)
	}

	decode := g711.DecodeUlawFrame
	if id == codec.CodecALAW {
		decode = g711.DecodeAlawFrame
	}
	for _, b := range payload {
		c.pcm = append(c.pcm, decode(b))
	}

	in := c.enc.InputSamples()
	if len(c.pcm) < in {
		return nil, 0, nil
	}
	if len(c.pcm)*2 > in*7 {
		c.logger.Warnf("transcode: cleared PCM buffer (%d samples) to prevent memory leak", len(c.pcm))
		c.pcm = c.pcm[:0]
		return nil, 0, nil
	}

	out, err := c.enc.Encode(c.pcm[:in])
	if err != nil {
		c.logger.Errorf("transcode: encoding failed: %v", err)
		c.pcm = c.pcm[:0]
		if !c.first {
			c.frameMsTime += c.frameDuration
		}
		return nil, 0, err
	}
	c.drain(in)

	if len(out) == 0 {
		// 编码器仍在预热，重新确定起始时间
		c.frameMsTime = float64(msTime - leadIn)
		if c.logger.LevelEnabled(xlog.DebugLevel) {
			c.logger.Debugf("transcode: finding initial timestamp (%d)", int64(c.frameMsTime))
		}
		return nil, 0, nil
	}

	if aac.IsADTS(out) {
		h, raw, err := aac.SplitADTS(out)
		if err != nil {
			c.logger.Warnf("transcode: dropped malformed ADTS frame (%d bytes)", len(out))
			return nil, 0, err
		}
		if c.config == nil {
			c.config = h.ToAsc()
			c.logger.Infof("transcode: encoder emits ADTS, %dHz %d channels", h.SampleRate(), h.Channels())
		}
		out = raw
	}

	if c.first {
		c.first = false
	} else {
		c.frameMsTime += c.frameDuration
	}
	if c.logger.LevelEnabled(xlog.DebugLevel) {
		c.logger.Debugf("transcode: (%dms) encoded %d PCM samples to %d AAC bytes",
			int64(c.frameMsTime), in, len(out))
	}
	return out, int64(c.frameMsTime), nil
}

func (c *Converter) drain(n int) {
	rest := copy(c.pcm, c.pcm[n:])
	c.pcm = c.pcm[:rest]
}
