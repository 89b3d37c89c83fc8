// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package h264

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/cnotch/rtpengine/utils"
	"github.com/cnotch/rtpengine/utils/bits"
)

// ErrInvalidSPS SPS 语法元素超出允许范围
var ErrInvalidSPS = errors.New("h264: invalid sequence parameter set")

// RawSPS 序列参数集中与封装相关的语法元素。
// 只解析到 VUI 的 timing_info，HRD 及之后的内容不关心。
type RawSPS struct {
	ProfileIdc         uint8
	ConstraintSetFlags uint8
	LevelIdc           uint8
	SeqParameterSetID  uint32

	ChromaFormatIdc         uint32
	SeparateColourPlaneFlag bool
	BitDepthLumaMinus8      uint32
	BitDepthChromaMinus8    uint32

	Log2MaxFrameNumMinus4       uint32
	PicOrderCntType             uint32
	Log2MaxPicOrderCntLsbMinus4 uint32
	MaxNumRefFrames             uint32

	PicWidthInMbsMinus1       uint32
	PicHeightInMapUnitsMinus1 uint32
	FrameMbsOnlyFlag          bool

	FrameCroppingFlag     bool
	FrameCropLeftOffset   uint32
	FrameCropRightOffset  uint32
	FrameCropTopOffset    uint32
	FrameCropBottomOffset uint32

	VuiParametersPresentFlag bool
	TimingInfoPresentFlag    bool
	NumUnitsInTick           uint32
	TimeScale                uint32
	FixedFrameRateFlag       bool
}

// DecodeString 从 base64 字串解码 sps
func (sps *RawSPS) DecodeString(b64 string) error {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return err
	}
	return sps.Decode(data)
}

func hasChromaInfo(profile uint8) bool {
	switch profile {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		return true
	}
	return false
}

// Decode 从 NAL 单元（含 NAL 头）解码 sps
func (sps *RawSPS) Decode(nal []byte) error {
	rbsp := utils.RemoveH264or5EmulationBytes(nal)
	if len(rbsp) < 4 {
		return bits.ErrShortRead
	}
	if rbsp[0]&NalTypeBitmask != NalSps {
		return fmt.Errorf("h264: nal type %d is not sps", rbsp[0]&NalTypeBitmask)
	}

	r := bits.NewReader(rbsp[1:])
	sps.ProfileIdc = r.ReadUint8(8)
	sps.ConstraintSetFlags = r.ReadUint8(8)
	sps.LevelIdc = r.ReadUint8(8)
	sps.SeqParameterSetID = r.ReadUe()

	sps.ChromaFormatIdc = 1
	if hasChromaInfo(sps.ProfileIdc) {
		sps.ChromaFormatIdc = r.ReadUe()
		if sps.ChromaFormatIdc == 3 {
			sps.SeparateColourPlaneFlag = r.ReadBool()
		}
		sps.BitDepthLumaMinus8 = r.ReadUe()
		sps.BitDepthChromaMinus8 = r.ReadUe()
		r.Skip(1) // qpprime_y_zero_transform_bypass_flag
		if r.ReadBool() { // seq_scaling_matrix_present_flag
			n := 8
			if sps.ChromaFormatIdc == 3 {
				n = 12
			}
			for i := 0; i < n; i++ {
				if r.ReadBool() {
					size := 16
					if i >= 6 {
						size = 64
					}
					skipScalingList(r, size)
				}
			}
		}
	}

	sps.Log2MaxFrameNumMinus4 = r.ReadUe()
	sps.PicOrderCntType = r.ReadUe()
	switch sps.PicOrderCntType {
	case 0:
		sps.Log2MaxPicOrderCntLsbMinus4 = r.ReadUe()
	case 1:
		r.Skip(1) // delta_pic_order_always_zero_flag
		r.ReadSe()
		r.ReadSe()
		cycle := r.ReadUe()
		if cycle > 255 {
			return ErrInvalidSPS
		}
		for i := uint32(0); i < cycle; i++ {
			r.ReadSe()
		}
	}

	sps.MaxNumRefFrames = r.ReadUe()
	r.Skip(1) // gaps_in_frame_num_value_allowed_flag
	sps.PicWidthInMbsMinus1 = r.ReadUe()
	sps.PicHeightInMapUnitsMinus1 = r.ReadUe()
	sps.FrameMbsOnlyFlag = r.ReadBool()
	if !sps.FrameMbsOnlyFlag {
		r.Skip(1) // mb_adaptive_frame_field_flag
	}
	r.Skip(1) // direct_8x8_inference_flag

	sps.FrameCroppingFlag = r.ReadBool()
	if sps.FrameCroppingFlag {
		sps.FrameCropLeftOffset = r.ReadUe()
		sps.FrameCropRightOffset = r.ReadUe()
		sps.FrameCropTopOffset = r.ReadUe()
		sps.FrameCropBottomOffset = r.ReadUe()
	}

	sps.VuiParametersPresentFlag = r.ReadBool()
	if sps.VuiParametersPresentFlag {
		sps.decodeVuiTiming(r)
	}

	if err := r.Err(); err != nil {
		return err
	}
	return nil
}

func (sps *RawSPS) decodeVuiTiming(r *bits.Reader) {
	if r.ReadBool() { // aspect_ratio_info_present_flag
		if r.ReadUint8(8) == 255 { // Extended_SAR
			r.Skip(32)
		}
	}
	if r.ReadBool() { // overscan_info_present_flag
		r.Skip(1)
	}
	if r.ReadBool() { // video_signal_type_present_flag
		r.Skip(4)
		if r.ReadBool() { // colour_description_present_flag
			r.Skip(24)
		}
	}
	if r.ReadBool() { // chroma_loc_info_present_flag
		r.ReadUe()
		r.ReadUe()
	}
	sps.TimingInfoPresentFlag = r.ReadBool()
	if sps.TimingInfoPresentFlag {
		sps.NumUnitsInTick = r.ReadUint32(32)
		sps.TimeScale = r.ReadUint32(32)
		sps.FixedFrameRateFlag = r.ReadBool()
	}
}

func skipScalingList(r *bits.Reader, size int) {
	last, next := int32(8), int32(8)
	for j := 0; j < size && r.Err() == nil; j++ {
		if next != 0 {
			delta := r.ReadSe()
			next = (last + delta + 256) % 256
		}
		if next != 0 {
			last = next
		}
	}
}

// Validate 检查语法元素是否在标准允许的范围内
func (sps *RawSPS) Validate() error {
	if sps.SeqParameterSetID >= MaxSpsCount ||
		sps.ChromaFormatIdc > 3 ||
		sps.Log2MaxFrameNumMinus4 > MaxLog2MaxFrameNumMinus4 ||
		sps.PicOrderCntType > 2 ||
		sps.PicWidthInMbsMinus1 >= MaxMbWidth ||
		sps.PicHeightInMapUnitsMinus1 >= MaxMbHeight {
		return ErrInvalidSPS
	}
	if sps.Width() <= 0 || sps.Height() <= 0 {
		return ErrInvalidSPS
	}
	return nil
}

func (sps *RawSPS) chromaArrayType() uint32 {
	if sps.SeparateColourPlaneFlag {
		return 0
	}
	return sps.ChromaFormatIdc
}

func (sps *RawSPS) cropUnits() (x, y int) {
	x, y = 1, 1
	switch sps.chromaArrayType() {
	case 1:
		x, y = 2, 2
	case 2:
		x, y = 2, 1
	}
	if !sps.FrameMbsOnlyFlag {
		y *= 2
	}
	return
}

// Width 视频宽度（像素）
func (sps *RawSPS) Width() int {
	w := int(sps.PicWidthInMbsMinus1+1) * 16
	if sps.FrameCroppingFlag {
		x, _ := sps.cropUnits()
		w -= x * int(sps.FrameCropLeftOffset+sps.FrameCropRightOffset)
	}
	return w
}

// Height 视频高度（像素）
func (sps *RawSPS) Height() int {
	h := int(sps.PicHeightInMapUnitsMinus1+1) * 16
	if !sps.FrameMbsOnlyFlag {
		h *= 2
	}
	if sps.FrameCroppingFlag {
		_, y := sps.cropUnits()
		h -= y * int(sps.FrameCropTopOffset+sps.FrameCropBottomOffset)
	}
	return h
}

// FrameRate 帧率，未携带 timing_info 时返回 0
func (sps *RawSPS) FrameRate() float64 {
	if !sps.TimingInfoPresentFlag || sps.NumUnitsInTick == 0 {
		return 0
	}
	return float64(sps.TimeScale) / float64(sps.NumUnitsInTick*2)
}

// IsFixedFrameRate 是否固定帧率
func (sps *RawSPS) IsFixedFrameRate() bool {
	return sps.FixedFrameRateFlag
}

// ValidateSPS 解码并校验 sps NAL 单元
func ValidateSPS(nal []byte) bool {
	var sps RawSPS
	if sps.Decode(nal) != nil {
		return false
	}
	return sps.Validate() == nil
}
