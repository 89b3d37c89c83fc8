// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtp

import (
	"encoding/binary"

	"github.com/cnotch/rtpengine/av/codec/aac"
)

type aacDepacketizer struct {
	d       *Depacketizer
	samples int // 每个 AU 的采样数
}

func newAACDepacketizer(d *Depacketizer) *aacDepacketizer {
	return &aacDepacketizer{
		d:       d,
		samples: aac.Samples(d.props.Init),
	}
}

func (a *aacDepacketizer) depacketize(msTime int64, payload []byte, missed bool) {
	// RFC 3640 3.2.1 AU Header Section
	// +---------+-----------+-----------+---------------+
	// | RTP     | AU Header | Auxiliary | Access Unit   |
	// | Header  | Section   | Section   | Data Section  |
	// +---------+-----------+-----------+---------------+
	//
	// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+- .. -+-+-+-+-+-+-+-+-+-+
	// |AU-headers-length|AU-header|AU-header|      |AU-header|padding|
	// |                 |   (1)   |   (2)   |      |   (n)   | bits  |
	// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+- .. -+-+-+-+-+-+-+-+-+-+
	if len(payload) < 2 {
		a.d.logger.Warnf("rtp: AAC packet too short (%db)", len(payload))
		return
	}

	headLen := int(binary.BigEndian.Uint16(payload)>>3) + 2
	if headLen > len(payload) {
		a.d.logger.Warnf("rtp: AAC AU headers (%db) exceed packet (%db)", headLen, len(payload))
		return
	}

	// AU-size 13 位 + AU-Index(-delta) 3 位
	offset := headLen
	sampleOffset := 0
	for i := 2; i+1 < headLen; i += 2 {
		auSize := int(binary.BigEndian.Uint16(payload[i:]) >> 3)
		size := min(auSize, len(payload)-offset)
		if size <= 0 {
			a.d.logger.Warnf("rtp: AAC AU of %db beyond packet end", auSize)
			return
		}
		ts := msTime + int64(float64(sampleOffset)/a.d.props.Multiplier)
		a.d.writeFrame(ts, append([]byte(nil), payload[offset:offset+size]...), false)
		offset += auSize
		sampleOffset += a.samples
	}
}

func (a *aacDepacketizer) flush() {}
