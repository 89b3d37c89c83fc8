// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

import (
	"fmt"
	"strings"
)

// MediaType 媒体类型
type MediaType int

// 媒体类型常量
const (
	MediaTypeUnknown MediaType = iota - 1 // Usually treated as MediaTypeData
	MediaTypeVideo
	MediaTypeAudio
	MediaTypeData // Opaque data information usually continuous
	MediaTypeSubtitle
	MediaTypeAttachment // Opaque data information usually sparse
	MediaTypeNB
)

// String returns a lower-case ASCII representation of the media type.
func (mt MediaType) String() string {
	switch mt {
	case MediaTypeVideo:
		return "video"
	case MediaTypeAudio:
		return "audio"
	case MediaTypeData:
		return "data"
	case MediaTypeSubtitle:
		return "subtitle"
	case MediaTypeAttachment:
		return "attachment"
	default:
		return ""
	}
}

// MarshalText marshals the MediaType to text.
func (mt *MediaType) MarshalText() ([]byte, error) {
	return []byte(mt.String()), nil
}

// UnmarshalText unmarshals text to a MediaType.
func (mt *MediaType) UnmarshalText(text []byte) error {
	if !mt.unmarshalText(string(text)) {
		return fmt.Errorf("unrecognized media type: %q", text)
	}
	return nil
}

func (mt *MediaType) unmarshalText(text string) bool {
	switch strings.ToLower(text) {
	case "video":
		*mt = MediaTypeVideo
	case "audio":
		*mt = MediaTypeAudio
	case "data":
		*mt = MediaTypeData
	case "subtitle":
		*mt = MediaTypeSubtitle
	case "attachment":
		*mt = MediaTypeAttachment
	default:
		return false
	}
	return true
}

// Frame 音视频完整帧（访问单元）
//
// H.264 与 H.265 的 Payload 由若干 4 字节大端长度前缀的 NAL 单元组成。
type Frame struct {
	MediaType         // 媒体类型
	TrackID   uint64  // 所属轨道
	Codec     CodecID // 编码
	Timestamp int64   // 毫秒，所有轨道共享同一时间轴
	Keyframe  bool    // 是否关键帧
	Payload   []byte  // 媒体数据载荷
}

// FrameWriter 包装 WriteFrame 方法的接口
type FrameWriter interface {
	WriteFrame(frame *Frame) error
}

// FrameWriterFunc 函数形式的 FrameWriter
type FrameWriterFunc func(frame *Frame) error

// WriteFrame calls f(frame).
func (f FrameWriterFunc) WriteFrame(frame *Frame) error { return f(frame) }

// InitWriter 接收轨道的解码器初始化数据（AVCC、HVCC 等）
type InitWriter interface {
	WriteInit(trackID uint64, init []byte) error
}

// InitWriterFunc 函数形式的 InitWriter
type InitWriterFunc func(trackID uint64, init []byte) error

// WriteInit calls f(trackID, init).
func (f InitWriterFunc) WriteInit(trackID uint64, init []byte) error { return f(trackID, init) }
