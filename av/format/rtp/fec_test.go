// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtp

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureFEC_Invalid(t *testing.T) {
	p := NewPacket(33, 0, 0, 1, 0)
	assert.Equal(t, ErrFECRows, p.ConfigureFEC(3, 4))
	assert.Equal(t, ErrFECRows, p.ConfigureFEC(21, 4))
	assert.Equal(t, ErrFECColumns, p.ConfigureFEC(4, 0))
	assert.Equal(t, ErrFECColumns, p.ConfigureFEC(4, 21))
	assert.Equal(t, ErrFECMatrix, p.ConfigureFEC(20, 20))
	assert.False(t, p.FECEnabled())

	require.NoError(t, p.ConfigureFEC(10, 10))
	assert.True(t, p.FECEnabled())
}

func tsPayload(seed byte) []byte {
	b := make([]byte, 188*7)
	for i := range b {
		b[i] = seed + byte(i*7)
	}
	return b
}

func TestFEC_Matrix4x4(t *testing.T) {
	const rows, columns = 4, 4
	var media, rowFEC, colFEC capture
	p := NewPacket(33, 100, 0, 0x1234, 0)
	require.NoError(t, p.ConfigureFEC(rows, columns))

	fecBytes := 0
	for i := 0; i < rows*columns; i++ {
		n, err := p.SendTSWithFEC(media.send, colFEC.send, rowFEC.send, tsPayload(byte(i)), 0)
		require.NoError(t, err)
		fecBytes += n
	}
	require.Len(t, media.packets, rows*columns)
	require.Len(t, rowFEC.packets, rows)
	require.Len(t, colFEC.packets, columns)

	fecSize := 188*7 + headerLength + fecHeaderSize
	assert.Equal(t, (rows+columns)*fecSize, fecBytes)
	assert.Equal(t, uint32(rows*columns+rows+columns), p.SentPackets)

	payloadOf := func(fec []byte) []byte { return fec[headerLength+fecHeaderSize:] }

	for r := 0; r < rows; r++ {
		fec := rowFEC.packets[r]
		require.Len(t, fec, fecSize)
		assert.Equal(t, byte(0x80), fec[0])
		assert.Equal(t, byte(96), fec[1]&0x7F)
		assert.Equal(t, uint16(r+1), binary.BigEndian.Uint16(fec[2:]))
		assert.Equal(t, uint16(100+r*columns), binary.BigEndian.Uint16(fec[12:]))
		// 偶数个相同的长度和载荷类型异或为零
		assert.Equal(t, uint16(0), binary.BigEndian.Uint16(fec[14:]))
		assert.Equal(t, byte(0x80), fec[16])
		assert.Equal(t, []byte{0x40, 0x01, columns}, fec[24:27])

		// 行内异或后应当为零
		acc := append([]byte(nil), payloadOf(fec)...)
		for c := 0; c < columns; c++ {
			xorInto(acc, media.packet(r*columns+c).Payload())
		}
		assert.Equal(t, make([]byte, len(acc)), acc)
	}

	for c := 0; c < columns; c++ {
		fec := colFEC.packets[c]
		assert.Equal(t, uint16(c+1), binary.BigEndian.Uint16(fec[2:]))
		assert.Equal(t, uint16(100+c), binary.BigEndian.Uint16(fec[12:]))
		assert.Equal(t, []byte{0x00, columns, rows}, fec[24:27])

		// 用列 FEC 恢复第二行的包
		lost := 1*columns + c
		acc := append([]byte(nil), payloadOf(fec)...)
		for r := 0; r < rows; r++ {
			if idx := r*columns + c; idx != lost {
				xorInto(acc, media.packet(idx).Payload())
			}
		}
		assert.Equal(t, media.packet(lost).Payload(), acc)
	}
}

func TestFEC_PayloadSizeChange(t *testing.T) {
	var media, rowFEC, colFEC capture
	p := NewPacket(33, 0, 0, 1, 0)
	require.NoError(t, p.ConfigureFEC(4, 1))

	n, err := p.SendTSWithFEC(media.send, colFEC.send, rowFEC.send, tsPayload(1), 0)
	require.NoError(t, err)
	assert.NotZero(t, n) // 单列时每个包都构成一行

	n, err = p.SendTSWithFEC(media.send, colFEC.send, rowFEC.send, make([]byte, 1000), 0)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, media.packets, 2)
	assert.Len(t, rowFEC.packets, 1)
	assert.Empty(t, colFEC.packets)
}

func TestParseFEC_Disabled(t *testing.T) {
	var c capture
	p := NewPacket(33, 0, 0, 1, 0)
	assert.Zero(t, p.ParseFEC(c.send, c.send, tsPayload(0)))
	assert.Empty(t, c.packets)
}
