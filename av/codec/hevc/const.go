// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

/**
 * Table 7-1 – NAL unit type codes and NAL unit type classes in
 * T-REC-H.265-201802
 */
const (
	NalTrailN    = 0
	NalTrailR    = 1
	NalTsaN      = 2
	NalTsaR      = 3
	NalStsaN     = 4
	NalStsaR     = 5
	NalRadlN     = 6
	NalRadlR     = 7
	NalRaslN     = 8
	NalRaslR     = 9
	NalVclN10    = 10
	NalBlaWLp    = 16
	NalBlaWRadl  = 17
	NalBlaNLp    = 18
	NalIdrWRadl  = 19
	NalIdrNLp    = 20
	NalCraNut    = 21
	NalIrapVcl22 = 22
	NalIrapVcl23 = 23
	NalVps       = 32
	NalSps       = 33
	NalPps       = 34
	NalAud       = 35
	NalEosNut    = 36
	NalEobNut    = 37
	NalFdNut     = 38
	NalSeiPrefix = 39
	NalSeiSuffix = 40

	// RTP 中扩展（RFC 7798）
	NalApInRtp   = 48 // 聚合包
	NalFuInRtp   = 49 // 分片单元
	NalPaciInRtp = 50 // PACI
)

const (
	// 7.4.3.1: vps_max_sub_layers_minus1 is in [0, 6].
	MaxSubLayers = 7
	// 7.4.2.1: vps_video_parameter_set_id is u(4).
	MaxVpsCount = 16
	// 7.4.3.2.1: sps_seq_parameter_set_id is in [0, 15].
	MaxSpsCount = 16
	// 7.4.3.3.1: pps_pic_parameter_set_id is in [0, 63].
	MaxPpsCount = 64
	// A.4.1: bounded above by sqrt(8 * 35651584) samples.
	MaxWidth  = 16888
	MaxHeight = 16888
)
