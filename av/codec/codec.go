// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

import (
	"fmt"
	"strings"
)

// CodecID 编码标识，在轨道配置时确定，之后不再改变
type CodecID int

// 支持的编码
const (
	CodecUnknown CodecID = iota
	CodecH264
	CodecHEVC
	CodecVP8
	CodecVP9
	CodecMPEG2
	CodecAAC
	CodecMP2
	CodecMP3
	CodecAC3
	CodecALAW
	CodecULAW
	CodecPCM
	CodecOpus
)

var codecNames = [...]string{
	CodecUnknown: "",
	CodecH264:    "H264",
	CodecHEVC:    "HEVC",
	CodecVP8:     "VP8",
	CodecVP9:     "VP9",
	CodecMPEG2:   "MPEG2",
	CodecAAC:     "AAC",
	CodecMP2:     "MP2",
	CodecMP3:     "MP3",
	CodecAC3:     "AC3",
	CodecALAW:    "ALAW",
	CodecULAW:    "ULAW",
	CodecPCM:     "PCM",
	CodecOpus:    "opus",
}

// String returns the canonical codec name.
func (c CodecID) String() string {
	if c < 0 || int(c) >= len(codecNames) {
		return ""
	}
	return codecNames[c]
}

// MarshalText marshals the CodecID to text.
func (c CodecID) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText unmarshals text to a CodecID.
func (c *CodecID) UnmarshalText(text []byte) error {
	id := ParseCodec(string(text))
	if id == CodecUnknown {
		return fmt.Errorf("unrecognized codec: %q", text)
	}
	*c = id
	return nil
}

// ParseCodec 解析编码名称，同时接受 SDP rtpmap 中的常见别名
func ParseCodec(name string) CodecID {
	switch strings.ToUpper(name) {
	case "H264":
		return CodecH264
	case "HEVC", "H265":
		return CodecHEVC
	case "VP8":
		return CodecVP8
	case "VP9":
		return CodecVP9
	case "MPEG2", "MPV":
		return CodecMPEG2
	case "AAC", "MPEG4-GENERIC":
		return CodecAAC
	case "MP2":
		return CodecMP2
	case "MP3", "MPA":
		return CodecMP3
	case "AC3":
		return CodecAC3
	case "ALAW", "PCMA":
		return CodecALAW
	case "ULAW", "PCMU":
		return CodecULAW
	case "PCM", "L16":
		return CodecPCM
	case "OPUS":
		return CodecOpus
	}
	return CodecUnknown
}

// MediaType 编码对应的媒体类型
func (c CodecID) MediaType() MediaType {
	switch c {
	case CodecH264, CodecHEVC, CodecVP8, CodecVP9, CodecMPEG2:
		return MediaTypeVideo
	case CodecAAC, CodecMP2, CodecMP3, CodecAC3, CodecALAW, CodecULAW, CodecPCM, CodecOpus:
		return MediaTypeAudio
	}
	return MediaTypeUnknown
}

// DefaultMultiplier 返回 RTP 时间戳到毫秒的换算系数（每毫秒的 RTP 时钟数）。
// 视频、MP2 和 MP3 固定为 90，opus 固定为 48，其余为时钟频率/1000。
func (c CodecID) DefaultMultiplier(clockRate int) float64 {
	if c.MediaType() == MediaTypeVideo || c == CodecMP2 || c == CodecMP3 {
		return 90
	}
	if c == CodecOpus {
		return 48
	}
	if clockRate <= 0 {
		return 1
	}
	return float64(clockRate) / 1000
}

// TrackProperties 解包器所需的轨道属性
type TrackProperties struct {
	ID         uint64    `json:"id"`
	Codec      CodecID   `json:"codec"`
	Type       MediaType `json:"type"`
	ClockRate  int       `json:"clockrate,omitempty"`
	Channels   int       `json:"channels,omitempty"`
	Multiplier float64   `json:"multiplier"`
	Init       []byte    `json:"-"` // AVCC、HVCC 或 AudioSpecificConfig
}

// NewTrackProperties 根据编码和时钟频率创建轨道属性
func NewTrackProperties(id uint64, c CodecID, clockRate int, init []byte) TrackProperties {
	return TrackProperties{
		ID:         id,
		Codec:      c,
		Type:       c.MediaType(),
		ClockRate:  clockRate,
		Multiplier: c.DefaultMultiplier(clockRate),
		Init:       init,
	}
}
