// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transcode

import (
	"sync"

	"github.com/cnotch/rtpengine/av/codec"
	"github.com/cnotch/xlog"
)

// EncoderFactory 为输入轨道创建 AAC 编码器
type EncoderFactory func(track uint64) (Encoder, error)

// Registry 按轨道管理转换器，首次使用时创建
type Registry struct {
	lock       sync.Mutex
	factory    EncoderFactory
	converters map[uint64]*Converter // nil 表示创建失败，不再重试
	logger     *xlog.Logger
}

// NewRegistry 创建转换器注册表
func NewRegistry(factory EncoderFactory, logger *xlog.Logger) *Registry {
	if logger == nil {
		logger = xlog.L()
	}
	return &Registry{
		factory:    factory,
		converters: make(map[uint64]*Converter),
		logger:     logger,
	}
}

// Converter 获取轨道的转换器，不存在时创建
func (r *Registry) Converter(track uint64) *Converter {
	r.lock.Lock()
	defer r.lock.Unlock()

	if c, ok := r.converters[track]; ok {
		return c
	}

	var c *Converter
	enc, err := r.factory(track)
	if err != nil {
		r.logger.Errorf("transcode: failed to create AAC encoder for track %d: %v", track, err)
	} else {
		c = NewConverter(enc, r.logger.With(xlog.Fields(xlog.F("track", track))))
		r.logger.Infof("transcode: AAC converter created for track %d, frame %.2fms", track, c.FrameDuration())
	}
	r.converters[track] = c
	return c
}

// Transcode 实现 rtp.Transcoder
func (r *Registry) Transcode(track uint64, id codec.CodecID, payload []byte, msTime int64) ([]byte, int64, bool) {
	c := r.Converter(track)
	if c == nil {
		return nil, 0, false
	}
	aac, ts, err := c.Transcode(id, payload, msTime)
	if err != nil || len(aac) == 0 {
		return nil, 0, false
	}
	return aac, ts, true
}

// Remove 删除轨道的转换器
func (r *Registry) Remove(track uint64) {
	r.lock.Lock()
	delete(r.converters, track)
	r.lock.Unlock()
}

// Len 转换器数量
func (r *Registry) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.converters)
}
