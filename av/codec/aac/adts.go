// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aac

import "errors"

// ADTSHeaderSize 不含 CRC 的 ADTS 头长度
const ADTSHeaderSize = 7

// ErrInvalidADTS 非法的 ADTS 帧
var ErrInvalidADTS = errors.New("aac: invalid ADTS frame")

// ADTSHeader ADTS 固定头和可变头，见 ISO/IEC 13818-7 6.2
//
//	syncword(12) id(1) layer(2) protection_absent(1)
//	profile(2) sampling_frequency_index(4) private(1) channel_configuration(3)
//	original(1) home(1) copyright_id(1) copyright_start(1)
//	frame_length(13) buffer_fullness(11) raw_data_blocks(2)
type ADTSHeader [ADTSHeaderSize]byte

// NewADTSHeader 构造 payloadSize 字节原始 AAC 数据的 ADTS 头，
// profile 为 Audio Object Type 减 1
func NewADTSHeader(profile, sampleRateIdx, channelConfig byte, payloadSize int) ADTSHeader {
	frameLen := payloadSize + ADTSHeaderSize
	return ADTSHeader{
		0xff,
		0xf1, // MPEG-4，无 CRC
		profile<<6&0xc0 | sampleRateIdx<<2&0x3c | channelConfig>>2&0x01,
		channelConfig<<6&0xc0 | byte(frameLen>>11)&0x03,
		byte(frameLen >> 3),
		byte(frameLen<<5)&0xe0 | 0x1f, // buffer_fullness 0x7ff 表示可变码率
		0xfc,
	}
}

// SplitADTS 拆分以 ADTS 头开始的帧，返回头和原始 AAC 数据
func SplitADTS(frame []byte) (h ADTSHeader, payload []byte, err error) {
	if len(frame) < ADTSHeaderSize || frame[0] != 0xff || frame[1]&0xf0 != 0xf0 {
		return h, nil, ErrInvalidADTS
	}
	copy(h[:], frame)

	headerSize := ADTSHeaderSize
	if h.HasCRC() {
		headerSize += 2
	}
	frameLen := h.FrameLength()
	if frameLen < headerSize || frameLen > len(frame) {
		return h, nil, ErrInvalidADTS
	}
	return h, frame[headerSize:frameLen], nil
}

// IsADTS 判断数据是否以 ADTS 同步字开始
func IsADTS(frame []byte) bool {
	return len(frame) >= ADTSHeaderSize && frame[0] == 0xff && frame[1]&0xf6 == 0xf0
}

// HasCRC 头后是否跟有 2 字节 CRC
func (h ADTSHeader) HasCRC() bool { return h[1]&0x01 == 0 }

// Profile Audio Object Type 减 1
func (h ADTSHeader) Profile() uint8 { return h[2] >> 6 }

// SamplingIndex 采样频率索引
func (h ADTSHeader) SamplingIndex() uint8 { return h[2] >> 2 & 0x0f }

func (h ADTSHeader) SampleRate() int { return SampleRate(int(h.SamplingIndex())) }

func (h ADTSHeader) ChannelConfig() uint8 { return (h[2]&0x01)<<2 | h[3]>>6 }

func (h ADTSHeader) Channels() uint8 { return aacAudioChannels[h.ChannelConfig()&0x07] }

// FrameLength 含头的帧长度
func (h ADTSHeader) FrameLength() int {
	return int(h[3]&0x03)<<11 | int(h[4])<<3 | int(h[5]>>5)
}

// PayloadSize 原始 AAC 数据长度
func (h ADTSHeader) PayloadSize() int {
	size := h.FrameLength() - ADTSHeaderSize
	if h.HasCRC() {
		size -= 2
	}
	return size
}

// ToAsc 生成等价的 2 字节 AudioSpecificConfig
func (h ADTSHeader) ToAsc() []byte {
	return Encode2BytesASC(h.Profile()+1, h.SamplingIndex(), h.ChannelConfig())
}
