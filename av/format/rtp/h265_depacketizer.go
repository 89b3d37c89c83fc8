// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtp

import (
	"bytes"
	"encoding/binary"

	"github.com/cnotch/rtpengine/av/codec"
	"github.com/cnotch/rtpengine/av/codec/hevc"
	"github.com/cnotch/xlog"
)

type h265Depacketizer struct {
	d         *Depacketizer
	fragments []byte // FU 重组缓冲，起始为重建的 2 字节 NAL 头
	initData  *hevc.InitData
	meta      codec.VideoMeta
}

func newHEVCDepacketizer(d *Depacketizer) *h265Depacketizer {
	h := &h265Depacketizer{
		d:         d,
		fragments: make([]byte, 0, 64*1024),
		initData:  hevc.NewInitData(),
	}
	if len(d.props.Init) > 0 {
		if initData, err := hevc.ParseHVCC(d.props.Init); err == nil {
			h.initData = initData
			h.meta = initData.Meta()
		} else {
			d.logger.Warnf("rtp: ignoring invalid HEVC init data: %v", err)
		}
	}
	return h
}

// Meta 从参数集中得到的视频元数据
func (h *h265Depacketizer) Meta() codec.VideoMeta { return h.meta }

func (h *h265Depacketizer) depacketize(msTime int64, payload []byte, missed bool) {
	if len(payload) < 2 {
		h.d.logger.Warnf("rtp: empty HEVC packet ignored")
		return
	}

	// +---------------+---------------+
	// |0|1|2|3|4|5|6|7|0|1|2|3|4|5|6|7|
	// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	// |F|   Type    |  LayerId  | TID |
	// +-------------+-----------------+
	naluType := hevc.NalType(payload[0])
	switch naluType {
	case hevc.NalApInRtp:
		h.depacketizeAp(msTime, payload)
	case hevc.NalFuInRtp:
		h.depacketizeFu(msTime, payload, missed)
	case hevc.NalPaciInRtp:
		h.d.logger.Errorf("rtp: PACI/TSCI not supported yet")
	case hevc.NalSeiPrefix, hevc.NalSeiSuffix:
		if h.d.logger.LevelEnabled(xlog.DebugLevel) {
			h.d.logger.Debugf("rtp: HEVC SEI not supported yet")
		}
	default:
		h.handleSingle(msTime, payload)
	}
}

func (h *h265Depacketizer) depacketizeAp(msTime int64, payload []byte) {
	//  0                   1                   2                   3
	//  0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
	// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	// |                          RTP Header                           |
	// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	// |   PayloadHdr (Type=48)        |         NALU 1 Size           |
	// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	// |          NALU 1 HDR           |                               |
	// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+         NALU 1 Data           |
	// |                   . . .                                       |
	// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	off := 2 // 跳过 PayloadHdr
	for off+2 < len(payload) {
		nalSize := int(binary.BigEndian.Uint16(payload[off:]))
		off += 2
		if nalSize > len(payload)-off {
			h.d.logger.Warnf("rtp: HEVC AP unit of %db exceeds packet (%db left)", nalSize, len(payload)-off)
			return
		}
		h.handleSingle(msTime, payload[off:off+nalSize])
		off += nalSize
	}
}

func (h *h265Depacketizer) depacketizeFu(msTime int64, payload []byte, missed bool) {
	//  0                   1                   2                   3
	//  0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
	// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	// |    PayloadHdr (Type=49)       |   FU header   | DONL (cond)   |
	// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-|
	// +---------------+
	// |0|1|2|3|4|5|6|7|
	// +-+-+-+-+-+-+-+-+
	// |S|E|  FuType   |
	// +---------------+
	if len(payload) < 3 {
		h.d.logger.Warnf("rtp: HEVC FU packet too short (%db)", len(payload))
		return
	}
	fuHeader := payload[2]
	start := fuHeader&0x80 != 0

	if len(h.fragments) == 0 && !start {
		if h.d.logger.LevelEnabled(xlog.DebugLevel) {
			h.d.logger.Debugf("rtp: not start of a new HEVC FU, throwing away")
		}
		return
	}
	if len(h.fragments) > 0 && (start || missed) {
		h.d.logger.Warnf("rtp: HEVC FU packet incomplete (%db)", len(h.fragments))
		h.fragments[0] |= 0x80 // forbidden_zero_bit 标记为错误
		h.handleSingle(msTime, h.fragments)
		h.fragments = h.fragments[:0]
		if !start {
			return
		}
	}

	if len(h.fragments) == 0 {
		// 重建 NAL 头
		h.fragments = append(h.fragments,
			(fuHeader&0x3F)<<1|payload[0]&0x81,
			payload[1])
	}
	h.fragments = append(h.fragments, payload[3:]...)

	if fuHeader&0x40 != 0 { // 最后一个分片
		h.handleSingle(msTime, h.fragments)
		h.fragments = h.fragments[:0]
	}
}

// handleSingle 处理一个完整的 NAL 单元（不含前缀），参数集更新初始化数据，其余单独输出
func (h *h265Depacketizer) handleSingle(ts int64, nal []byte) {
	if len(nal) == 0 {
		return
	}

	switch hevc.NalType(nal[0]) {
	case hevc.NalVclN10:
		return
	case hevc.NalVps, hevc.NalSps, hevc.NalPps:
		if _, err := h.initData.AddUnit(nal); err != nil {
			h.d.logger.Warnf("rtp: ignoring invalid HEVC parameter set: %v", err)
			return
		}
		if !h.initData.HaveRequired() {
			return
		}
		init, err := h.initData.GenerateHVCC()
		if err != nil {
			h.d.logger.Warnf("rtp: generate hvcC failed: %v", err)
			return
		}
		if !bytes.Equal(init, h.d.props.Init) {
			h.meta = h.initData.Meta()
			h.d.logger.Infof("rtp: HEVC init updated, %dx%d %.2ffps",
				h.meta.Width, h.meta.Height, h.meta.FrameRate)
			h.d.writeInit(init)
		}
		return
	}

	isKey := hevc.IsKeyframe(nal)
	if h.d.logger.LevelEnabled(xlog.DebugLevel) {
		h.d.logger.Debugf("rtp: packing time %d = keyframe %t, frame %d", ts, isKey, h.d.packCount)
	}
	h.d.packCount++
	h.d.writeFrame(ts, appendNALU(make([]byte, 0, len(nal)+4), nal), isKey)
}

func (h *h265Depacketizer) flush() {}
