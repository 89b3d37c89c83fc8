// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtp

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cnotch/rtpengine/av/codec"
	"github.com/cnotch/rtpengine/av/codec/h264"
	"github.com/cnotch/rtpengine/av/codec/hevc"
	"github.com/cnotch/rtpengine/av/codec/mpeg"
)

const vp8MaxChunk = 1200

var bootTime = time.Now()

// BootMS 进程启动以来的毫秒数
func BootMS() int64 {
	return int64(time.Since(bootTime) / time.Millisecond)
}

// transmit 发送 buf[:size]，更新计数并递增序号
func (p *Packet) transmit(send SendFunc, size, channel int) {
	p.n = size
	send(p.buf[:size], channel)
	p.SentPackets++
	p.SentBytes += uint32(size)
	p.IncreaseSequence()
}

// ensureCapacity 保证缓冲区能容纳 size 字节，只有 managed 包可以扩容
func (p *Packet) ensureCapacity(size int) error {
	if size <= len(p.buf) {
		return nil
	}
	if !p.managed {
		p.logger().Errorf("rtp: data too big for packet (%d > %d), not sending", size, len(p.buf))
		return ErrBufferTooSmall
	}
	buf := make([]byte, size)
	copy(buf, p.buf)
	p.buf = buf
	return nil
}

// fragmentSize 分片时每个包可携带的载荷字节数，缓冲区放不下任何载荷时拒绝发送
func (p *Packet) fragmentSize(hsize, overhead int) (int, error) {
	n := len(p.buf) - hsize - overhead
	if n <= 0 {
		p.logger().Errorf("rtp: packet buffer too small to fragment (%d bytes, header %d), not sending",
			len(p.buf), hsize+overhead)
		return 0, ErrBufferTooSmall
	}
	return n, nil
}

// SendH264 发送一个 H.264 NAL 单元（不含起始码或长度前缀）。
// 放不进单个包时使用 FU-A 分片；lastOfAU 表示该 NAL 是访问单元的最后一个。
func (p *Packet) SendH264(send SendFunc, nal []byte, channel int, lastOfAU bool) error {
	if len(nal) == 0 {
		return nil
	}
	hsize := p.HeaderSize()
	if len(nal)+hsize+fuHeaderSize <= len(p.buf) {
		nalType := h264.NalType(nal[0])
		// 只有 VCL 单元才设置 marker
		p.SetMarker(lastOfAU && nalType >= h264.NalSlice && nalType <= h264.NalIdrSlice)
		copy(p.buf[hsize:], nal)
		p.transmit(send, hsize+len(nal), channel)
		return nil
	}

	sending, err := p.fragmentSize(hsize, fuHeaderSize)
	if err != nil {
		return err
	}
	p.SetMarker(false)
	p.buf[hsize] = nal[0]&0xE0 | h264.NalFuAInRtp // FU indicator
	fuHeader := nal[0] & h264.NalTypeBitmask
	body := nal[1:]
	for sent := 0; sent < len(body); {
		fu := fuHeader
		if sent == 0 {
			fu |= 0x80 // S
		}
		n := sending
		if sent+n >= len(body) {
			fu |= 0x40 // E
			n = len(body) - sent
			if lastOfAU {
				p.SetMarker(true)
			}
		}
		p.buf[hsize+1] = fu
		copy(p.buf[hsize+2:], body[sent:sent+n])
		p.transmit(send, hsize+2+n, channel)
		sent += n
	}
	return nil
}

// SendH265 发送一个 H.265 NAL 单元，放不进单个包时使用 FU 分片（RFC 7798 4.4.3）
func (p *Packet) SendH265(send SendFunc, nal []byte, channel int) error {
	if len(nal) < 2 {
		return nil
	}
	hsize := p.HeaderSize()
	if len(nal)+hsize+3 <= len(p.buf) {
		p.SetMarker(true)
		copy(p.buf[hsize:], nal)
		p.transmit(send, hsize+len(nal), channel)
		return nil
	}

	sending, err := p.fragmentSize(hsize, 3)
	if err != nil {
		return err
	}
	p.SetMarker(false)
	p.buf[hsize] = nal[0]&0x81 | hevc.NalFuInRtp<<1
	p.buf[hsize+1] = nal[1]
	fuHeader := (nal[0] & 0x7E) >> 1
	body := nal[2:]
	for sent := 0; sent < len(body); {
		fu := fuHeader
		if sent == 0 {
			fu |= 0x80
		}
		n := sending
		if sent+n >= len(body) {
			fu |= 0x40
			n = len(body) - sent
			p.SetMarker(true)
		}
		p.buf[hsize+2] = fu
		copy(p.buf[hsize+3:], body[sent:sent+n])
		p.transmit(send, hsize+3+n, channel)
		sent += n
	}
	return nil
}

// SendVP8 按 1200 字节分块发送 VP8/VP9 帧，每块前加 1 字节载荷描述符（RFC 7741 4.2）
func (p *Packet) SendVP8(send SendFunc, frame []byte, channel int) error {
	if len(frame) == 0 {
		return nil
	}
	hsize := p.HeaderSize()
	chunk, err := p.fragmentSize(hsize, 1)
	if err != nil {
		return err
	}
	chunk = min(chunk, vp8MaxChunk)
	isKeyframe := frame[0]&0x01 == 0
	startOfPartition := true

	for off := 0; off < len(frame); {
		n := min(chunk, len(frame)-off)
		p.SetMarker(off+n == len(frame))

		var descriptor byte
		if startOfPartition {
			descriptor |= 0x10 // S
		}
		if !isKeyframe {
			descriptor |= 0x20 // N
		}
		p.buf[hsize] = descriptor
		copy(p.buf[hsize+1:], frame[off:off+n])
		p.transmit(send, hsize+1+n, channel)

		startOfPartition = false
		off += n
	}
	return nil
}

// SendMPEG2 发送 MPEG-2 视频，每个包前加 RFC 2250 视频专用头
func (p *Packet) SendMPEG2(send SendFunc, frame []byte, channel int) error {
	if len(frame) == 0 {
		return nil
	}
	hsize := p.HeaderSize()
	sending, err := p.fragmentSize(hsize, 4)
	if err != nil {
		return err
	}
	head := MPEGVideoHeader(p.buf[hsize : hsize+4])
	if len(frame) <= sending {
		p.SetMarker(true)
		info := mpeg.ParseMPEG2(frame)
		head.Clear()
		head.SetTempRef(info.TempSeq)
		head.SetPictureType(info.FrameType)
		if info.IsHeader {
			head.SetSequence()
		}
		head.SetBegin()
		head.SetEnd()
		copy(p.buf[hsize+4:], frame)
		p.transmit(send, hsize+4+len(frame), channel)
		return nil
	}

	p.SetMarker(false)
	var info mpeg.MPEG2Info
	for sent := 0; sent < len(frame); {
		head.Clear()
		n := sending
		if sent+n >= len(frame) {
			head.SetEnd()
			n = len(frame) - sent
			p.SetMarker(true)
		}
		mpeg.ParseMPEG2Into(frame[:sent+n], &info)
		head.SetTempRef(info.TempSeq)
		head.SetPictureType(info.FrameType)
		if sent == 0 {
			if info.IsHeader {
				head.SetSequence()
			}
			head.SetBegin()
		}
		copy(p.buf[hsize+4:], frame[sent:sent+n])
		p.transmit(send, hsize+4+n, channel)
		sent += n
	}
	return nil
}

// SendData 按编码打包并发送一个访问单元。
// H.264/H.265 的 payload 为 4 字节长度前缀的 NAL 单元序列。
func (p *Packet) SendData(send SendFunc, payload []byte, channel int, c codec.CodecID) error {
	switch c {
	case codec.CodecH264:
		return p.sendH264AU(send, payload, channel)
	case codec.CodecHEVC:
		return eachNALU(payload, func(nal []byte) error {
			return p.SendH265(send, nal, channel)
		})
	case codec.CodecVP8, codec.CodecVP9:
		return p.SendVP8(send, payload, channel)
	case codec.CodecMPEG2:
		return p.SendMPEG2(send, payload, channel)
	}

	p.SetMarker(true)
	hsize := p.HeaderSize()
	var header [4]byte
	headerLen := 0
	switch c {
	case codec.CodecAAC:
		// RFC 3640 AU-headers-length = 16 bits，AU-size 13 bits + AU-Index 3 bits
		binary.BigEndian.PutUint32(header[:], uint32(len(payload)<<3)&0x0010fff8|0x00100000)
		headerLen = 4
	case codec.CodecMP3, codec.CodecMP2:
		// RFC 2250 3.5 MBZ 与 Frag_Offset 始终为 0
		headerLen = 4
		if len(payload) == 0 || payload[0] != 0xFF {
			p.logger().Errorf("rtp: MP2/MP3 data does not start with header")
		}
	case codec.CodecAC3:
		// 6 bits MBZ，FT = 0 完整帧，1 帧
		binary.BigEndian.PutUint16(header[:], 1)
		headerLen = 2
	}

	size := hsize + headerLen + len(payload)
	if err := p.ensureCapacity(size); err != nil {
		return err
	}
	copy(p.buf[hsize:], header[:headerLen])
	copy(p.buf[hsize+headerLen:], payload)
	p.transmit(send, size, channel)
	return nil
}

// sendH264AU 发送访问单元中的 NAL 单元，跳过填充数据。
// 延后一个 NAL 发送，以便确定访问单元的最后一个 NAL。
func (p *Packet) sendH264AU(send SendFunc, payload []byte, channel int) error {
	var last []byte
	err := eachNALU(payload, func(nal []byte) error {
		if h264.NalType(nal[0]) == h264.NalFillerData {
			return nil
		}
		if last != nil {
			if err := p.SendH264(send, last, channel, false); err != nil {
				return err
			}
		}
		last = nal
		return nil
	})
	if err == ErrBufferTooSmall {
		return err
	}
	if last != nil {
		if serr := p.SendH264(send, last, channel, true); serr != nil {
			return serr
		}
	}
	return err
}

// eachNALU 遍历 4 字节长度前缀的 NAL 单元，fn 返回错误时停止
func eachNALU(payload []byte, fn func(nal []byte) error) error {
	for off := 0; off < len(payload); {
		if off+4 > len(payload) {
			return fmt.Errorf("rtp: truncated NAL length at offset %d", off)
		}
		size := int(binary.BigEndian.Uint32(payload[off:]))
		off += 4
		if size > len(payload)-off {
			return fmt.Errorf("rtp: NAL size %d exceeds remaining %d bytes", size, len(payload)-off)
		}
		if size > 0 {
			if err := fn(payload[off : off+size]); err != nil {
				return err
			}
		}
		off += size
	}
	return nil
}

// SendTS 发送 MPEG-TS 载荷，时间戳使用 90kHz 的本地时钟
func (p *Packet) SendTS(send SendFunc, payload []byte, channel int) error {
	hsize := p.HeaderSize()
	if err := p.ensureCapacity(hsize + len(payload)); err != nil {
		return err
	}
	copy(p.buf[hsize:], payload)
	p.SetTimestamp(uint32(BootMS() * 90))
	p.transmit(send, hsize+len(payload), channel)
	return nil
}

// SendNoPacket 只更新计数和序号，不实际发送
func (p *Packet) SendNoPacket(payloadLen int) {
	p.SentPackets++
	p.SentBytes += uint32(payloadLen + p.HeaderSize())
	p.SetTimestamp(uint32(BootMS()))
	p.IncreaseSequence()
}
