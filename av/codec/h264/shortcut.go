// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package h264

import "github.com/cnotch/rtpengine/av/codec"

// MetaFromSPS 从 sps 解析视频元数据
func MetaFromSPS(sps []byte) (meta codec.VideoMeta, err error) {
	var rawsps RawSPS
	if err = rawsps.Decode(sps); err != nil {
		return
	}
	meta.Width = rawsps.Width()
	meta.Height = rawsps.Height()
	meta.FrameRate = rawsps.FrameRate()
	return
}

// NalType .
func NalType(nt byte) byte {
	return nt & NalTypeBitmask
}

// IsVCL 是否视频编码层的片（1~5）
func IsVCL(nt byte) bool {
	t := nt & NalTypeBitmask
	return t >= NalSlice && t <= NalIdrSlice
}

// IsKeyframe 判断 NAL 单元是否属于关键帧（IDR 片，或随 IDR 一起出现的 SPS/PPS）
func IsKeyframe(nal []byte) bool {
	if len(nal) == 0 {
		return false
	}
	switch nal[0] & NalTypeBitmask {
	case NalIdrSlice, NalSps, NalPps:
		return true
	}
	return false
}
