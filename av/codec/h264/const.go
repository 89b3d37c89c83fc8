// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package h264

/*
 * Table 7-1 – NAL unit type codes, syntax element categories, and NAL unit type classes in
 * T-REC-H.264-201704
 */
// H264 NAL 单元类型
const (
	NalUnspecified = 0
	NalSlice       = 1  // 不分区非IDR图像的片
	NalDpa         = 2  // 片分区A
	NalDpb         = 3  // 片分区B
	NalDpc         = 4  // 片分区C
	NalIdrSlice    = 5  // IDR图像中的片（I帧）
	NalSei         = 6  // 补充增强信息单元
	NalSps         = 7  // 序列参数集
	NalPps         = 8  // 图像参数集
	NalAud         = 9  // 分界符
	NalEndSequence = 10 // 序列结束
	NalEndStream   = 11 // 码流结束
	NalFillerData  = 12 // 填充

	// NAL 在 RTP 包中的扩展
	NalStapaInRtp = 24 // 单一时间的组合包
	NalFuAInRtp   = 28 // 分片的单元

	NalTypeBitmask = 0x1F
)

// 其他常量
const (
	// 7.4.2.1.1: seq_parameter_set_id is in [0, 31].
	MaxSpsCount = 32
	// 7.4.2.2: pic_parameter_set_id is in [0, 255].
	MaxPpsCount = 256
	// A.2.1, A.2.3: num_slice_groups_minus1 is in [0, 7].
	MaxSliceGroups = 8
	// 7.4.2.1.1: log2_max_frame_num_minus4 is in [0, 12].
	MaxLog2MaxFrameNumMinus4 = 12
	// A.3: bounded above by sqrt(139264 * 8) macroblocks.
	MaxMbWidth  = 1055
	MaxMbHeight = 1055
)
