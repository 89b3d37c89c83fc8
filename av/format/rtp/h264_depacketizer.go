// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtp

import (
	"bytes"
	"encoding/binary"

	"github.com/cnotch/rtpengine/av/codec/h264"
	"github.com/cnotch/rtpengine/utils"
	"github.com/cnotch/xlog"
)

// audOnlyLimit 长度（含 4 字节前缀）小于该值的分界符单独出现时忽略
const audOnlyLimit = 20

type h264Depacketizer struct {
	d *Depacketizer

	fragments []byte // FU-A 重组缓冲，首字节为重建的 NAL 头

	out     []byte // 当前访问单元，4 字节长度前缀的 NAL 序列
	curTime int64
	wasKey  bool

	sps      []byte
	pps      map[uint32][]byte
	curPPSID uint32
}

func newH264Depacketizer(d *Depacketizer) *h264Depacketizer {
	h := &h264Depacketizer{
		d:         d,
		fragments: make([]byte, 0, 64*1024),
		pps:       make(map[uint32][]byte),
	}

	// 预置 SDP 中携带的参数集
	if len(d.props.Init) > 0 {
		var avcc h264.AVCConfig
		if err := avcc.Unmarshal(d.props.Init); err == nil {
			h.sps = append([]byte(nil), avcc.SPS...)
			var pps h264.RawPPS
			if pps.Decode(avcc.PPS) == nil {
				h.pps[pps.PicParameterSetID] = append([]byte(nil), avcc.PPS...)
			}
			if meta, err := h264.MetaFromSPS(h.sps); err == nil {
				d.logger.Infof("rtp: H264 init %dx%d %.2ffps", meta.Width, meta.Height, meta.FrameRate)
			}
		} else {
			d.logger.Warnf("rtp: ignoring invalid H264 init data: %v", err)
		}
	}
	return h
}

func (h *h264Depacketizer) depacketize(msTime int64, payload []byte, missed bool) {
	if len(payload) == 0 {
		h.d.logger.Warnf("rtp: empty H264 packet ignored")
		return
	}

	// +---------------+
	// |0|1|2|3|4|5|6|7|
	// +-+-+-+-+-+-+-+-+
	// |F|NRI|  Type   |
	// +---------------+
	naluType := payload[0] & h264.NalTypeBitmask

	switch {
	case naluType == h264.NalUnspecified:
		h.d.logger.Warnf("rtp: H264 packet type null ignored")
	case naluType < h264.NalStapaInRtp:
		h.handleSingle(msTime, payload, h264.IsKeyframe(payload))
	case naluType == h264.NalStapaInRtp:
		h.depacketizeStapa(msTime, payload)
	case naluType == h264.NalFuAInRtp:
		h.depacketizeFuA(msTime, payload, missed)
	default:
		h.d.logger.Warnf("rtp: H264 packet type %d unsupported", naluType)
	}
}

func (h *h264Depacketizer) depacketizeStapa(msTime int64, payload []byte) {
	// 	0                   1                   2                   3
	// 	0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
	//  +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	//  |STAP-A NAL HDR |         NALU 1 Size           | NALU 1 HDR    |
	//  +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	//  |                         NALU 1 Data                           |
	//  :                                                               :
	//  +               +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	//  |               | NALU 2 Size                   | NALU 2 HDR    |
	//  +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	off := 1 // 跳过 STAP-A NAL HDR
	for off+1 < len(payload) {
		nalSize := int(binary.BigEndian.Uint16(payload[off:]))
		off += 2
		if nalSize > len(payload)-off {
			h.d.logger.Warnf("rtp: STAP-A unit of %db exceeds packet (%db left)", nalSize, len(payload)-off)
			return
		}
		nal := payload[off : off+nalSize]
		h.handleSingle(msTime, nal, h264.IsKeyframe(nal))
		off += nalSize
	}
}

func (h *h264Depacketizer) depacketizeFuA(msTime int64, payload []byte, missed bool) {
	// 	0                   1                   2                   3
	// 	0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
	//  +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	//  | FU indicator  |   FU header   |                               |
	//  +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+                               |
	//  |                         FU payload                            |
	//  +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	// +---------------+
	// |0|1|2|3|4|5|6|7|
	// +-+-+-+-+-+-+-+-+
	// |S|E|R|  Type   |
	// +---------------+
	if len(payload) < 2 {
		h.d.logger.Warnf("rtp: FU-A packet too short (%db)", len(payload))
		return
	}
	fuHeader := payload[1]
	start := fuHeader&0x80 != 0

	if len(h.fragments) == 0 && !start {
		if h.d.logger.LevelEnabled(xlog.DebugLevel) {
			h.d.logger.Debugf("rtp: not start of a new FU-A, throwing away")
		}
		return
	}
	if len(h.fragments) > 0 && (start || missed) {
		h.d.logger.Warnf("rtp: ending unfinished FU-A (%db)", len(h.fragments))
		h.fragments = h.fragments[:0]
		if !start {
			return
		}
	}

	if len(h.fragments) == 0 {
		// 重建 NAL 头
		h.fragments = append(h.fragments, payload[0]&0xE0|fuHeader&h264.NalTypeBitmask)
	}
	h.fragments = append(h.fragments, payload[2:]...)

	if fuHeader&0x40 == 0 { // 不是最后一个分片
		return
	}

	nal := h.fragments
	switch h264.NalType(nal[0]) {
	case h264.NalSps, h264.NalPps:
		// 个别设备会在一个分片单元里塞入多个 Annex-B 格式的 NAL
		for _, unit := range utils.SplitAnnexB(nal) {
			h.handleSingle(msTime, unit, h264.IsKeyframe(unit))
		}
	default:
		h.handleSingle(msTime, nal, h264.IsKeyframe(nal))
	}
	h.fragments = h.fragments[:0]
}

// handleSingle 处理一个完整的 NAL 单元（不含前缀），时间戳变化时输出上一个访问单元
func (h *h264Depacketizer) handleSingle(ts int64, nal []byte, isKey bool) {
	if len(nal) == 0 {
		return
	}
	nalType := h264.NalType(nal[0])
	if nalType == h264.NalAud && len(nal)+4 < audOnlyLimit {
		return
	}

	if len(h.out) == 0 {
		h.curTime = ts
		h.wasKey = isKey
	}
	if h.curTime != ts {
		h.emit()
		h.curTime = ts
		h.wasKey = isKey
	}
	h.wasKey = h.wasKey || isKey

	switch nalType {
	case h264.NalSei:
		return
	case h264.NalSps:
		if !bytes.Equal(h.sps, nal) {
			if !h264.ValidateSPS(nal) {
				h.d.logger.Warnf("rtp: ignoring invalid SPS packet (%db)", len(nal))
				return
			}
			h.sps = append(h.sps[:0], nal...)
			if meta, err := h264.MetaFromSPS(h.sps); err == nil {
				h.d.logger.Infof("rtp: updated SPS from RTP data, %dx%d %.2ffps",
					meta.Width, meta.Height, meta.FrameRate)
			}
		}
		return
	case h264.NalPps:
		var pps h264.RawPPS
		if err := pps.Decode(nal); err != nil {
			h.d.logger.Warnf("rtp: ignoring undecodable PPS packet (%db): %v", len(nal), err)
			return
		}
		if !bytes.Equal(h.pps[pps.PicParameterSetID], nal) {
			if !h264.ValidatePPS(nal) {
				h.d.logger.Warnf("rtp: ignoring invalid PPS packet (%db)", len(nal))
				return
			}
			h.pps[pps.PicParameterSetID] = append([]byte(nil), nal...)
			if h.d.logger.LevelEnabled(xlog.DebugLevel) {
				h.d.logger.Debugf("rtp: updated PPS with ID %d from RTP data", pps.PicParameterSetID)
			}
		}
		return
	case h264.NalIdrSlice:
		h.prependParameterSets(nal)
	}

	h.out = appendNALU(h.out, nal)
}

// prependParameterSets 关键帧的 PPS ID 变化或访问单元内尚无数据时，
// 在片之前插入当前 SPS/PPS，并在 AVCC 变化时通知初始化数据。
func (h *h264Depacketizer) prependParameterSets(nal []byte) {
	ppsID, err := h264.SlicePPSID(nal)
	if err != nil {
		h.d.logger.Warnf("rtp: cannot parse keyframe slice header: %v", err)
		return
	}
	if len(h.out) != 0 && ppsID == h.curPPSID {
		return
	}
	h.curPPSID = ppsID

	pps := h.pps[ppsID]
	avcc, err := h264.NewAVCConfig(h.sps, pps)
	if err != nil {
		h.d.logger.Warnf("rtp: keyframe without SPS/PPS (pps id %d)", ppsID)
		return
	}
	init := avcc.Marshal()
	if !bytes.Equal(init, h.d.props.Init) {
		h.d.writeInit(init)
	}
	h.out = appendNALU(h.out, h.sps)
	h.out = appendNALU(h.out, pps)
}

func (h *h264Depacketizer) emit() {
	if len(h.out) == 0 {
		return
	}
	if h.d.logger.LevelEnabled(xlog.DebugLevel) {
		h.d.logger.Debugf("rtp: packing time %d = keyframe %t, frame %d", h.curTime, h.wasKey, h.d.packCount)
	}
	h.d.packCount++
	h.d.writeFrame(h.curTime, h.out, h.wasKey)
	h.out = nil // 已交给输出方
	h.wasKey = false
}

func (h *h264Depacketizer) flush() { h.emit() }

// appendNALU 以 4 字节长度前缀追加 NAL 单元
func appendNALU(dst, nal []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(nal)))
	return append(dst, nal...)
}
