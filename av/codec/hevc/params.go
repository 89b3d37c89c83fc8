// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/cnotch/rtpengine/utils"
	"github.com/cnotch/rtpengine/utils/bits"
)

var errInvalidParameterSet = errors.New("hevc: invalid parameter set")

// ProfileTierLevel general_profile_tier_level 部分，原样保留 12 字节用于 hvcC
type ProfileTierLevel struct {
	ProfileSpace              uint8
	TierFlag                  uint8
	ProfileIdc                uint8
	ProfileCompatibilityFlags uint32
	ConstraintIndicatorFlags  uint64 // 48 bits
	LevelIdc                  uint8
}

func (ptl *ProfileTierLevel) decode(r *bits.Reader, maxSubLayersMinus1 uint8) {
	ptl.ProfileSpace = r.ReadUint8(2)
	ptl.TierFlag = r.ReadUint8(1)
	ptl.ProfileIdc = r.ReadUint8(5)
	ptl.ProfileCompatibilityFlags = r.ReadUint32(32)
	ptl.ConstraintIndicatorFlags = r.ReadUint64(48)
	ptl.LevelIdc = r.ReadUint8(8)

	var profilePresent, levelPresent [MaxSubLayers]bool
	for i := 0; i < int(maxSubLayersMinus1); i++ {
		profilePresent[i] = r.ReadBool()
		levelPresent[i] = r.ReadBool()
	}
	if maxSubLayersMinus1 > 0 {
		for i := maxSubLayersMinus1; i < 8; i++ {
			r.Skip(2) // reserved_zero_2bits
		}
	}
	for i := 0; i < int(maxSubLayersMinus1); i++ {
		if profilePresent[i] {
			r.Skip(88)
		}
		if levelPresent[i] {
			r.Skip(8)
		}
	}
}

// RawVPS 视频参数集
type RawVPS struct {
	VideoParameterSetID   uint8
	MaxSubLayersMinus1    uint8
	TemporalIDNestingFlag bool
	ProfileTierLevel
	TimingInfoPresentFlag bool
	NumUnitsInTick        uint32
	TimeScale             uint32
}

// DecodeString 从 base64 字串解码 vps
func (vps *RawVPS) DecodeString(b64 string) error {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return err
	}
	return vps.Decode(data)
}

// Decode 从 NAL 单元解码 vps
func (vps *RawVPS) Decode(nal []byte) error {
	rbsp := utils.RemoveH264or5EmulationBytes(nal)
	if len(rbsp) < 3 {
		return bits.ErrShortRead
	}
	if NalType(rbsp[0]) != NalVps {
		return fmt.Errorf("hevc: nal type %d is not vps", NalType(rbsp[0]))
	}

	r := bits.NewReader(rbsp[2:])
	vps.VideoParameterSetID = r.ReadUint8(4)
	r.Skip(2) // vps_base_layer_internal_flag, vps_base_layer_available_flag
	r.Skip(6) // vps_max_layers_minus1
	vps.MaxSubLayersMinus1 = r.ReadUint8(3)
	vps.TemporalIDNestingFlag = r.ReadBool()
	if r.ReadUint16(16) != 0xffff { // vps_reserved_0xffff_16bits
		return errInvalidParameterSet
	}
	if vps.MaxSubLayersMinus1 >= MaxSubLayers {
		return errInvalidParameterSet
	}
	vps.ProfileTierLevel.decode(r, vps.MaxSubLayersMinus1)

	orderingInfoPresent := r.ReadBool()
	first := vps.MaxSubLayersMinus1
	if orderingInfoPresent {
		first = 0
	}
	for i := first; i <= vps.MaxSubLayersMinus1; i++ {
		r.ReadUe() // vps_max_dec_pic_buffering_minus1
		r.ReadUe() // vps_max_num_reorder_pics
		r.ReadUe() // vps_max_latency_increase_plus1
	}

	maxLayerID := int(r.ReadUint8(6))
	numLayerSets := r.ReadUe()
	if numLayerSets > 1023 {
		return errInvalidParameterSet
	}
	r.Skip(int(numLayerSets) * (maxLayerID + 1)) // layer_id_included_flag

	vps.TimingInfoPresentFlag = r.ReadBool()
	if vps.TimingInfoPresentFlag {
		vps.NumUnitsInTick = r.ReadUint32(32)
		vps.TimeScale = r.ReadUint32(32)
	}
	return r.Err()
}

// FrameRate 帧率，未携带 timing_info 时返回 0
func (vps *RawVPS) FrameRate() float64 {
	if !vps.TimingInfoPresentFlag || vps.NumUnitsInTick == 0 {
		return 0
	}
	return float64(vps.TimeScale) / float64(vps.NumUnitsInTick)
}

// RawSPS 序列参数集，只解析到 bit_depth
type RawSPS struct {
	VideoParameterSetID   uint8
	MaxSubLayersMinus1    uint8
	TemporalIDNestingFlag bool
	ProfileTierLevel
	SeqParameterSetID       uint32
	ChromaFormatIdc         uint32
	SeparateColourPlaneFlag bool
	PicWidthInLumaSamples   uint32
	PicHeightInLumaSamples  uint32
	ConformanceWindowFlag   bool
	ConfWinLeftOffset       uint32
	ConfWinRightOffset      uint32
	ConfWinTopOffset        uint32
	ConfWinBottomOffset     uint32
	BitDepthLumaMinus8      uint32
	BitDepthChromaMinus8    uint32
}

// DecodeString 从 base64 字串解码 sps
func (sps *RawSPS) DecodeString(b64 string) error {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return err
	}
	return sps.Decode(data)
}

// Decode 从 NAL 单元解码 sps
func (sps *RawSPS) Decode(nal []byte) error {
	rbsp := utils.RemoveH264or5EmulationBytes(nal)
	if len(rbsp) < 3 {
		return bits.ErrShortRead
	}
	if NalType(rbsp[0]) != NalSps {
		return fmt.Errorf("hevc: nal type %d is not sps", NalType(rbsp[0]))
	}

	r := bits.NewReader(rbsp[2:])
	sps.VideoParameterSetID = r.ReadUint8(4)
	sps.MaxSubLayersMinus1 = r.ReadUint8(3)
	sps.TemporalIDNestingFlag = r.ReadBool()
	if sps.MaxSubLayersMinus1 >= MaxSubLayers {
		return errInvalidParameterSet
	}
	sps.ProfileTierLevel.decode(r, sps.MaxSubLayersMinus1)

	sps.SeqParameterSetID = r.ReadUe()
	sps.ChromaFormatIdc = r.ReadUe()
	if sps.ChromaFormatIdc == 3 {
		sps.SeparateColourPlaneFlag = r.ReadBool()
	}
	sps.PicWidthInLumaSamples = r.ReadUe()
	sps.PicHeightInLumaSamples = r.ReadUe()
	sps.ConformanceWindowFlag = r.ReadBool()
	if sps.ConformanceWindowFlag {
		sps.ConfWinLeftOffset = r.ReadUe()
		sps.ConfWinRightOffset = r.ReadUe()
		sps.ConfWinTopOffset = r.ReadUe()
		sps.ConfWinBottomOffset = r.ReadUe()
	}
	sps.BitDepthLumaMinus8 = r.ReadUe()
	sps.BitDepthChromaMinus8 = r.ReadUe()
	if err := r.Err(); err != nil {
		return err
	}

	if sps.SeqParameterSetID >= MaxSpsCount || sps.ChromaFormatIdc > 3 ||
		sps.PicWidthInLumaSamples > MaxWidth || sps.PicHeightInLumaSamples > MaxHeight {
		return errInvalidParameterSet
	}
	return nil
}

func (sps *RawSPS) subWidthHeight() (w, h int) {
	switch sps.ChromaFormatIdc {
	case 1:
		return 2, 2
	case 2:
		return 2, 1
	}
	return 1, 1
}

// Width 视频宽度（像素）
func (sps *RawSPS) Width() int {
	w := int(sps.PicWidthInLumaSamples)
	if sps.ConformanceWindowFlag {
		sw, _ := sps.subWidthHeight()
		w -= sw * int(sps.ConfWinLeftOffset+sps.ConfWinRightOffset)
	}
	return w
}

// Height 视频高度（像素）
func (sps *RawSPS) Height() int {
	h := int(sps.PicHeightInLumaSamples)
	if sps.ConformanceWindowFlag {
		_, sh := sps.subWidthHeight()
		h -= sh * int(sps.ConfWinTopOffset+sps.ConfWinBottomOffset)
	}
	return h
}

// PPSID 读取 pps 的 pps_pic_parameter_set_id
func PPSID(nal []byte) (uint32, error) {
	rbsp := utils.RemoveH264or5EmulationBytes(nal)
	if len(rbsp) < 3 || NalType(rbsp[0]) != NalPps {
		return 0, errInvalidParameterSet
	}
	r := bits.NewReader(rbsp[2:])
	id := r.ReadUe()
	if err := r.Err(); err != nil {
		return 0, err
	}
	if id >= MaxPpsCount {
		return 0, errInvalidParameterSet
	}
	return id, nil
}
