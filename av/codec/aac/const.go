// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aac

import "sort"

// SamplesPerFrame 默认每帧采样数，短帧为 960
const SamplesPerFrame = 1024

// Audio Object Type，取值见 ISO/IEC 14496-3 表 1.17
const (
	AOT_NULL = iota
	AOT_AAC_MAIN
	AOT_AAC_LC
	AOT_AAC_SSR
	AOT_AAC_LTP
	AOT_SBR
	AOT_AAC_SCALABLE
	AOT_TWINVQ
	AOT_CELP
	AOT_HVXC
	AOT_TTSI = 2 + iota
	AOT_MAINSYNTH
	AOT_WAVESYNTH
	AOT_MIDI
	AOT_SAFX
	AOT_ER_AAC_LC
	AOT_ER_AAC_LTP = 3 + iota
	AOT_ER_AAC_SCALABLE
	AOT_ER_TWINVQ
	AOT_ER_BSAC
	AOT_ER_AAC_LD
	AOT_ER_CELP
	AOT_ER_HVXC
	AOT_ER_HILN
	AOT_ER_PARAM
	AOT_SSC
	AOT_PS
	AOT_SURROUND
	AOT_ESCAPE
	AOT_L1
	AOT_L2
	AOT_L3
	AOT_DST
	AOT_ALS
	AOT_SLS
	AOT_SLS_NON_CORE
	AOT_ER_AAC_ELD
	AOT_SMR_SIMPLE
	AOT_SMR_MAIN
	AOT_USAC_NOSBR
	AOT_SAOC
	AOT_LD_SURROUND
	AOT_USAC
)

// SampleRate 采样频率索引对应的频率，索引无效时返回 0
func SampleRate(index int) int {
	if index < 0 || index >= len(SampleRates) {
		return 0
	}
	return SampleRates[index]
}

// SamplingIndex 采样频率对应的索引，非标准频率返回 -1
func SamplingIndex(rate int) int {
	i := sort.Search(len(SampleRates), func(i int) bool { return SampleRates[i] <= rate })
	if i < len(SampleRates) && SampleRates[i] == rate {
		return i
	}
	return -1
}

// SampleRates 标准采样频率表，13 至 15 保留
var SampleRates = [16]int{
	96000, 88200, 64000, 48000,
	44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000,
	7350}

// channel_configuration 到声道数的映射，7 表示 7.1
var aacAudioChannels = [8]uint8{
	0, 1, 2, 3,
	4, 5, 6, 8,
}
