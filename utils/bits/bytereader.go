// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bits

import (
	"encoding/binary"
	"errors"
)

// ErrShortBuffer 缓冲区长度不足以读取指定字段
var ErrShortBuffer = errors.New("bits: buffer too short")

// ByteReader 带边界检查的大端字节读取器，用于固定偏移的报文字段。
type ByteReader []byte

// Uint8 returns the byte at off.
func (b ByteReader) Uint8(off int) (uint8, error) {
	if off < 0 || off >= len(b) {
		return 0, ErrShortBuffer
	}
	return b[off], nil
}

// Uint16 returns the big-endian uint16 at off.
func (b ByteReader) Uint16(off int) (uint16, error) {
	if off < 0 || off+2 > len(b) {
		return 0, ErrShortBuffer
	}
	return binary.BigEndian.Uint16(b[off:]), nil
}

// Uint24 returns the big-endian 24-bit value at off.
func (b ByteReader) Uint24(off int) (uint32, error) {
	if off < 0 || off+3 > len(b) {
		return 0, ErrShortBuffer
	}
	return uint32(b[off])<<16 | uint32(b[off+1])<<8 | uint32(b[off+2]), nil
}

// Uint32 returns the big-endian uint32 at off.
func (b ByteReader) Uint32(off int) (uint32, error) {
	if off < 0 || off+4 > len(b) {
		return 0, ErrShortBuffer
	}
	return binary.BigEndian.Uint32(b[off:]), nil
}

// Slice returns b[off:off+n].
func (b ByteReader) Slice(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+n > len(b) {
		return nil, ErrShortBuffer
	}
	return b[off : off+n], nil
}
