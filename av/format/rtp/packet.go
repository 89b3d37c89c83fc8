// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/cnotch/rtpengine/utils/bits"
	"github.com/cnotch/xlog"
	"github.com/pion/rtp"
)

// 发送与排序相关的默认参数
var (
	// MaxSend 单个 RTP 包最大发送字节数（MTU 1500 - IP/UDP 28 字节）
	MaxSend = 1500 - 28
	// ReorderWait 乱序等待的包数，超过后将序号登记为期望重传
	ReorderWait = 5
	// DropTimeout 丢包判定的包数，超过后放弃等待
	DropTimeout = 30
)

const (
	headerLength = 12
	fuHeaderSize = 2
)

// 错误定义
var (
	ErrShortPacket    = errors.New("rtp: packet shorter than its header")
	ErrBufferTooSmall = errors.New("rtp: payload exceeds borrowed packet buffer")
	ErrEmptyPayload   = errors.New("rtp: empty payload")
)

// SendFunc 发送回调，data 在回调返回后即被复用；
// channel 用于 TCP 交织传输，UDP 时忽略。
type SendFunc func(data []byte, channel int)

// Packet RTP 数据包。
//
// managed 包拥有自己的缓冲区，作为发送端时可以按需扩容；
// 借用包只引用外部内存，既不扩容也不保留。
type Packet struct {
	buf     []byte // 完整缓冲区
	n       int    // 有效数据长度
	managed bool
	fec     *fecContext

	SentPackets uint32 // 已发送包数（含 FEC）
	SentBytes   uint32 // 已发送字节数（含 FEC）

	Logger *xlog.Logger
}

// NewPacket 创建用于发送的 RTP 包，缓冲区可容纳 MaxSend 字节的载荷与 FU 头
func NewPacket(payloadType uint8, sequence uint16, timestamp, ssrc uint32, csrcCount uint8) *Packet {
	csrcCount &= 0x0F
	hsize := headerLength + 4*int(csrcCount)
	p := &Packet{
		buf:     make([]byte, hsize+fuHeaderSize+MaxSend),
		n:       hsize,
		managed: true,
	}
	p.buf[0] = 2<<6 | csrcCount // version, padding, extension, csrc count
	p.buf[1] = payloadType & 0x7F
	p.SetSequence(sequence)
	p.SetTimestamp(timestamp)
	p.SetSSRC(ssrc)
	return p
}

// WrapPacket 包装外部缓冲区，不复制
func WrapPacket(data []byte) *Packet {
	return &Packet{buf: data, n: len(data)}
}

// Clone 复制出一个拥有独立缓冲区的包
func (p *Packet) Clone() *Packet {
	c := &Packet{
		buf:         append([]byte(nil), p.buf...),
		n:           p.n,
		managed:     true,
		SentPackets: p.SentPackets,
		SentBytes:   p.SentBytes,
		Logger:      p.Logger,
	}
	if len(c.buf) == 0 {
		c.buf = make([]byte, headerLength+fuHeaderSize+MaxSend)
	}
	return c
}

func (p *Packet) logger() *xlog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return xlog.L()
}

// Managed 包是否拥有自己的缓冲区
func (p *Packet) Managed() bool { return p.managed }

// Bytes 包的有效数据
func (p *Packet) Bytes() []byte { return p.buf[:p.n] }

// Len 有效数据长度
func (p *Packet) Len() int { return p.n }

func (p *Packet) byteAt(off int) byte {
	v, _ := bits.ByteReader(p.buf).Uint8(off)
	return v
}

// Validate 检查包是否至少包含完整的头
func (p *Packet) Validate() error {
	if p.n < headerLength {
		return ErrShortPacket
	}
	if _, err := bits.ByteReader(p.buf[:p.n]).Slice(0, p.HeaderSize()); err != nil {
		return ErrShortPacket
	}
	return nil
}

// Version RTP 版本
func (p *Packet) Version() uint8 { return p.byteAt(0) >> 6 & 0x3 }

// Padding 是否有填充
func (p *Packet) Padding() bool { return p.byteAt(0)>>5&0x1 == 1 }

// Extension 是否有扩展头
func (p *Packet) Extension() bool { return p.byteAt(0)>>4&0x1 == 1 }

// CSRCCount CSRC 数量
func (p *Packet) CSRCCount() uint8 { return p.byteAt(0) & 0x0F }

// Marker 标志位
func (p *Packet) Marker() bool { return p.byteAt(1)>>7 == 1 }

// PayloadType 载荷类型
func (p *Packet) PayloadType() uint8 { return p.byteAt(1) & 0x7F }

// Sequence 序号
func (p *Packet) Sequence() uint16 {
	v, _ := bits.ByteReader(p.buf).Uint16(2)
	return v
}

// Timestamp 时间戳
func (p *Packet) Timestamp() uint32 {
	v, _ := bits.ByteReader(p.buf).Uint32(4)
	return v
}

// SSRC 同步源
func (p *Packet) SSRC() uint32 {
	v, _ := bits.ByteReader(p.buf).Uint32(8)
	return v
}

// HeaderSize 头长度，包括 CSRC 列表和扩展头
func (p *Packet) HeaderSize() int {
	size := headerLength + 4*int(p.CSRCCount())
	if p.Extension() {
		extLen, _ := bits.ByteReader(p.buf).Uint16(size + 2)
		size += (1 + int(extLen)) * 4
	}
	return size
}

func (p *Packet) paddingSize() int {
	if !p.Padding() || p.n == 0 {
		return 0
	}
	return int(p.buf[p.n-1])
}

// PayloadSize 载荷长度，填充超出包长时返回 0
func (p *Packet) PayloadSize() int {
	hsize := p.HeaderSize()
	padding := p.paddingSize()
	if hsize+padding >= p.n {
		if padding > 0 {
			p.logger().Warnf("rtp: packet has more padding than payload; ignoring packet")
		}
		return 0
	}
	return p.n - hsize - padding
}

// Payload 载荷，不含填充
func (p *Packet) Payload() []byte {
	size := p.PayloadSize()
	if size == 0 {
		return nil
	}
	hsize := p.HeaderSize()
	return p.buf[hsize : hsize+size]
}

// SetMarker 设置标志位
func (p *Packet) SetMarker(marker bool) {
	if marker {
		p.buf[1] |= 0x80
	} else {
		p.buf[1] &= 0x7F
	}
}

// SetPayloadType 设置载荷类型
func (p *Packet) SetPayloadType(pt uint8) {
	p.buf[1] = p.buf[1]&0x80 | pt&0x7F
}

// SetSequence 设置序号
func (p *Packet) SetSequence(seq uint16) {
	binary.BigEndian.PutUint16(p.buf[2:], seq)
}

// SetTimestamp 设置时间戳
func (p *Packet) SetTimestamp(ts uint32) {
	binary.BigEndian.PutUint32(p.buf[4:], ts)
}

// SetSSRC 设置同步源
func (p *Packet) SetSSRC(ssrc uint32) {
	binary.BigEndian.PutUint32(p.buf[8:], ssrc)
}

// IncreaseSequence 序号加一，自动回绕
func (p *Packet) IncreaseSequence() {
	p.SetSequence(p.Sequence() + 1)
}

// Header 使用 pion/rtp 解码头部，用于诊断
func (p *Packet) Header() (h rtp.Header, err error) {
	_, err = h.Unmarshal(p.Bytes())
	return
}

// String 可读的包描述
func (p *Packet) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%db RTP packet, ", p.n)
	if p.Marker() {
		sb.WriteString("(marked), ")
	}
	fmt.Fprintf(&sb, "payload type %d, #%d, time %d, SSRC %d, payload %db",
		p.PayloadType(), p.Sequence(), p.Timestamp(), p.SSRC(), p.PayloadSize())
	return sb.String()
}

// IsRTCPPayloadType 载荷类型是否落在 RTCP 包类型区间（72~76）
func IsRTCPPayloadType(pt uint8) bool {
	return pt >= 72 && pt <= 76
}
