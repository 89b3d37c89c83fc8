// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mpeg

// MPEG-2 视频起始码
const (
	StartCodePicture  = 0x00
	StartCodeSequence = 0xB3
	StartCodeGOP      = 0xB8
)

// 图像类型
const (
	FrameTypeI = 1
	FrameTypeP = 2
	FrameTypeB = 3
)

// MPEG2Info 从 MPEG-2 视频基本流中提取的头信息
type MPEG2Info struct {
	TempSeq   uint16 // temporal_reference，10 bits
	FrameType uint8  // picture_coding_type
	IsHeader  bool   // 包含 sequence_header
	Width     int
	Height    int
}

// ParseMPEG2 扫描 data 中的起始码，提取序列头和图像头信息
func ParseMPEG2(data []byte) (info MPEG2Info) {
	ParseMPEG2Into(data, &info)
	return
}

// ParseMPEG2Into 与 ParseMPEG2 相同，但只覆盖 data 中出现的字段
func ParseMPEG2Into(data []byte, info *MPEG2Info) {
	for i := 0; i+3 < len(data); i++ {
		if data[i] != 0 || data[i+1] != 0 || data[i+2] != 1 {
			continue
		}
		switch data[i+3] {
		case StartCodeSequence:
			info.IsHeader = true
			if i+7 <= len(data) {
				info.Width = int(data[i+4])<<4 | int(data[i+5])>>4
				info.Height = int(data[i+5]&0x0F)<<8 | int(data[i+6])
			}
		case StartCodePicture:
			if i+6 <= len(data) {
				info.TempSeq = uint16(data[i+4])<<2 | uint16(data[i+5])>>6
				info.FrameType = (data[i+5] & 0x38) >> 3
			}
		}
		i += 3
	}
}
