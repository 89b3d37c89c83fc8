// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtp

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// MPEGVideoHeader RFC 2250 3.4 MPEG 视频专用头（4 字节）
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|    MBZ  |T|         TR        | |N|S|B|E|  P  | | BFC | | FFC |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	                                AN              FBV     FFV
type MPEGVideoHeader []byte

// TotalLen 头部总长度，包括可选的 MPEG-2 扩展头
func (h MPEGVideoHeader) TotalLen() int {
	n := 4
	if len(h) > 0 && h[0]&0x08 != 0 {
		n += 4
		if len(h) > 8 && h[4]&0x40 != 0 {
			n += int(h[8])
		}
	}
	return n
}

// Clear 清零
func (h MPEGVideoHeader) Clear() {
	binary.BigEndian.PutUint32(h, 0)
}

// SetTempRef 设置 temporal reference（10 bits）
func (h MPEGVideoHeader) SetTempRef(ref uint16) {
	h[0] |= byte(ref>>8) & 0x03
	h[1] = byte(ref)
}

// SetPictureType 设置图像类型
func (h MPEGVideoHeader) SetPictureType(pt uint8) { h[2] |= pt & 0x7 }

// SetSequence 标记包含序列头
func (h MPEGVideoHeader) SetSequence() { h[2] |= 0x20 }

// SetBegin 标记 slice 开始
func (h MPEGVideoHeader) SetBegin() { h[2] |= 0x10 }

// SetEnd 标记 slice 结束
func (h MPEGVideoHeader) SetEnd() { h[2] |= 0x08 }

func (h MPEGVideoHeader) String() string {
	if len(h) < 4 {
		return "invalid MPEG video header"
	}
	head := binary.BigEndian.Uint32(h)
	var sb strings.Builder
	fmt.Fprintf(&sb, "TR=%d", (head&0x3FF0000)>>16)
	if head&0x4000000 != 0 {
		sb.WriteString(" Ext")
	}
	if head&0x2000 != 0 {
		sb.WriteString(" SeqHead")
	}
	if head&0x1000 != 0 {
		sb.WriteString(" SliceBegin")
	}
	if head&0x800 != 0 {
		sb.WriteString(" SliceEnd")
	}
	fmt.Fprintf(&sb, " PicType=%d", (head&0x700)>>8)
	if head&0x80 != 0 {
		sb.WriteString(" FBV")
	}
	fmt.Fprintf(&sb, " BFC=%d", (head&0x70)>>4)
	if head&0x8 != 0 {
		sb.WriteString(" FFV")
	}
	fmt.Fprintf(&sb, " FFC=%d", head&0x7)
	return sb.String()
}
