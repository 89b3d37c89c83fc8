// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtp

import (
	"encoding/binary"
	"errors"
)

// FEC 行列数限制（SMPTE 2022-1）
const (
	FECMinRows       = 4
	FECMaxRows       = 20
	FECMinColumns    = 1
	FECMaxColumns    = 20
	FECMaxMatrixSize = 100

	fecHeaderSize = 16 // RFC 2733 FEC 头 + SMPTE 2022-1 扩展
)

// FEC 配置错误
var (
	ErrFECRows    = errors.New("rtp: fec rows should have a value between 4-20")
	ErrFECColumns = errors.New("rtp: fec columns should have a value between 1-20")
	ErrFECMatrix  = errors.New("rtp: the product of fec rows * columns cannot exceed 100")
)

// fecBuffer 行或列的异或累加器
type fecBuffer struct {
	bitstring []byte
	sequence  uint16 // SNBase
	timestamp uint32
}

// fecContext 2-D XOR FEC 状态（Pro-MPEG COP3 / SMPTE 2022-1）
type fecContext struct {
	rows      int
	columns   int
	maxIndex  int
	needsInit bool

	index          int
	lengthRecovery int // 载荷长度，整个流内恒定
	rtpBufSize     int
	bitstringSize  int

	row      fecBuffer
	cols     []fecBuffer // 按列号索引，原地复用
	scratch  []byte
	out      []byte
	columnSN uint16
	rowSN    uint16
}

// ConfigureFEC 启用 rows 行 columns 列的 2-D FEC，参数无效时不改变当前状态
func (p *Packet) ConfigureFEC(rows, columns int) error {
	switch {
	case rows < FECMinRows || rows > FECMaxRows:
		p.logger().Errorf("rtp: rows should have a value between 4-20")
		return ErrFECRows
	case columns < FECMinColumns || columns > FECMaxColumns:
		p.logger().Errorf("rtp: columns should have a value between 1-20")
		return ErrFECColumns
	case rows*columns > FECMaxMatrixSize:
		p.logger().Errorf("rtp: the product of rows * columns cannot exceed 100")
		return ErrFECMatrix
	}

	if p.fec == nil {
		p.fec = &fecContext{}
	}
	p.fec.rows = rows
	p.fec.columns = columns
	p.fec.maxIndex = rows * columns
	p.fec.needsInit = true
	p.logger().Infof("rtp: enabling 2d-fec with %d rows and %d columns", rows, columns)
	return nil
}

// FECEnabled 是否已配置 FEC
func (p *Packet) FECEnabled() bool { return p.fec != nil }

func (f *fecContext) init(payloadLen int) {
	f.needsInit = false
	f.index = 0
	f.lengthRecovery = payloadLen
	f.rtpBufSize = payloadLen + headerLength + fecHeaderSize
	f.bitstringSize = payloadLen + 8
	f.columnSN = 0
	f.rowSN = 0

	f.row.bitstring = resize(f.row.bitstring, f.bitstringSize)
	f.scratch = resize(f.scratch, f.bitstringSize)
	f.out = resize(f.out, f.rtpBufSize)
	if cap(f.cols) < f.columns {
		f.cols = make([]fecBuffer, f.columns)
	}
	f.cols = f.cols[:f.columns]
	for i := range f.cols {
		f.cols[i].bitstring = resize(f.cols[i].bitstring, f.bitstringSize)
	}
}

func resize(b []byte, n int) []byte {
	if cap(b) < n {
		return make([]byte, n)
	}
	return b[:n]
}

func xorInto(dst, src []byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}

// generateBitstring 由刚发送的包头与载荷生成可恢复的比特串：
// P/X/CC、M/PT、时间戳、长度恢复值，后接载荷。
func (p *Packet) generateBitstring(payload, bitstring []byte) {
	bitstring[0] = p.buf[0] & 0x3f
	bitstring[1] = p.buf[1]
	copy(bitstring[2:6], p.buf[4:8])
	binary.BigEndian.PutUint16(bitstring[6:], uint16(p.fec.lengthRecovery))
	copy(bitstring[8:], payload)
}

// ParseFEC 将刚发送的包累加进行、列异或缓冲，
// 行或列完整时分别通过 rowSend、columnSend 发送 FEC 包，返回发送的 FEC 字节数。
// 必须在包发送之后调用。
func (p *Packet) ParseFEC(columnSend, rowSend SendFunc, payload []byte) (bytesSent int) {
	f := p.fec
	if f == nil {
		return 0
	}
	if f.needsInit {
		f.init(len(payload))
	}
	if len(payload) != f.lengthRecovery {
		p.logger().Warnf("rtp: packet size should be constant, expected %d but got %d",
			f.lengthRecovery, len(payload))
		return 0
	}

	bitstring := f.scratch
	p.generateBitstring(payload, bitstring)
	sequence := p.Sequence() - 1 // 发送后序号已递增
	timestamp := p.Timestamp()

	column := f.index % f.columns
	row := (f.index / f.columns) % f.rows

	if column == 0 {
		copy(f.row.bitstring, bitstring)
		f.row.sequence = sequence
		f.row.timestamp = timestamp
	} else {
		xorInto(f.row.bitstring, bitstring)
	}
	if column == f.columns-1 {
		p.sendFEC(rowSend, &f.row, false)
		bytesSent += f.rtpBufSize
	}

	col := &f.cols[column]
	if row == 0 {
		copy(col.bitstring, bitstring)
		col.sequence = sequence
		col.timestamp = timestamp
	} else {
		xorInto(col.bitstring, bitstring)
	}
	if row == f.rows-1 {
		p.sendFEC(columnSend, col, true)
		bytesSent += f.rtpBufSize
	}

	f.index++
	if f.index >= f.maxIndex {
		f.index = 0
	}
	return
}

// sendFEC 按 RFC 2733 / SMPTE 2022-1 构造并发送 FEC 包
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|      SNBase low bits          |        Length recovery        |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|E| PT recovery |                    Mask                       |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                          TS recovery                          |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|X|D|type |index|    Offset     |       NA      |SNBase ext bits|
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
func (p *Packet) sendFEC(send SendFunc, fb *fecBuffer, isColumn bool) {
	f := p.fec
	data := fb.bitstring
	buf := f.out
	for i := range buf {
		buf[i] = 0
	}

	var sn uint16
	if isColumn {
		f.columnSN++
		sn = f.columnSN
	} else {
		f.rowSN++
		sn = f.rowSN
	}

	buf[0] = 0x80 | data[0]&0x3f // V, P, X, CC
	buf[1] = data[1]&0x80 | 0x60 // M, PT = 96
	binary.BigEndian.PutUint16(buf[2:], sn)
	binary.BigEndian.PutUint32(buf[4:], fb.timestamp)
	// SSRC 保持为 0

	binary.BigEndian.PutUint16(buf[12:], fb.sequence) // SNBase
	buf[14], buf[15] = data[6], data[7]               // Length recovery
	buf[16] = 0x80 | data[1]                          // E=1, PT recovery
	copy(buf[20:24], data[2:6])                       // TS recovery
	if isColumn {
		buf[24] = 0x00
		buf[25] = byte(f.columns)
		buf[26] = byte(f.rows)
	} else {
		buf[24] = 0x40 // D=1
		buf[25] = 0x01
		buf[26] = byte(f.columns)
	}
	copy(buf[headerLength+fecHeaderSize:], data[8:])

	send(buf, 0)
	p.SentPackets++
	p.SentBytes += uint32(f.rtpBufSize)
}

// SendTSWithFEC 发送 MPEG-TS 载荷并更新 FEC，返回发送的 FEC 字节数
func (p *Packet) SendTSWithFEC(send, columnSend, rowSend SendFunc, payload []byte, channel int) (int, error) {
	if err := p.SendTS(send, payload, channel); err != nil {
		return 0, err
	}
	return p.ParseFEC(columnSend, rowSend, payload), nil
}
