// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package h264

import (
	"encoding/binary"
	"errors"
)

var errInvalidAVCC = errors.New("h264: invalid AVCDecoderConfigurationRecord")

// AVCConfig AVCDecoderConfigurationRecord（ISO/IEC 14496-15 5.2.4.1），
// 只携带一个 SPS 和一个 PPS。
type AVCConfig struct {
	Profile           uint8
	ProfileCompatible uint8
	Level             uint8
	SPS               []byte
	PPS               []byte
}

// NewAVCConfig 以 sps 的 profile/level 创建配置
func NewAVCConfig(sps, pps []byte) (*AVCConfig, error) {
	if len(sps) < 4 || len(pps) == 0 {
		return nil, errInvalidAVCC
	}
	return &AVCConfig{
		Profile:           sps[1],
		ProfileCompatible: sps[2],
		Level:             sps[3],
		SPS:               sps,
		PPS:               pps,
	}, nil
}

// Marshal 编码为 avcC box 的载荷
func (c *AVCConfig) Marshal() []byte {
	b := make([]byte, 0, 11+len(c.SPS)+len(c.PPS))
	b = append(b, 1, c.Profile, c.ProfileCompatible, c.Level,
		0xFF, // 6 bits reserved + lengthSizeMinusOne = 3
		0xE1) // 3 bits reserved + numOfSequenceParameterSets = 1
	b = binary.BigEndian.AppendUint16(b, uint16(len(c.SPS)))
	b = append(b, c.SPS...)
	b = append(b, 1)
	b = binary.BigEndian.AppendUint16(b, uint16(len(c.PPS)))
	b = append(b, c.PPS...)
	return b
}

// Unmarshal 解码 avcC box 载荷，只取第一个 SPS 和第一个 PPS
func (c *AVCConfig) Unmarshal(b []byte) error {
	if len(b) < 7 || b[0] != 1 {
		return errInvalidAVCC
	}
	c.Profile, c.ProfileCompatible, c.Level = b[1], b[2], b[3]
	off := 5
	numSps := int(b[off] & 0x1F)
	off++
	for i := 0; i < numSps; i++ {
		if off+2 > len(b) {
			return errInvalidAVCC
		}
		n := int(binary.BigEndian.Uint16(b[off:]))
		off += 2
		if off+n > len(b) {
			return errInvalidAVCC
		}
		if i == 0 {
			c.SPS = b[off : off+n]
		}
		off += n
	}
	if off >= len(b) {
		return errInvalidAVCC
	}
	numPps := int(b[off])
	off++
	for i := 0; i < numPps; i++ {
		if off+2 > len(b) {
			return errInvalidAVCC
		}
		n := int(binary.BigEndian.Uint16(b[off:]))
		off += 2
		if off+n > len(b) {
			return errInvalidAVCC
		}
		if i == 0 {
			c.PPS = b[off : off+n]
		}
		off += n
	}
	if len(c.SPS) == 0 || len(c.PPS) == 0 {
		return errInvalidAVCC
	}
	return nil
}
