// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package h264

import (
	"errors"
	"fmt"

	"github.com/cnotch/rtpengine/utils"
	"github.com/cnotch/rtpengine/utils/bits"
)

// ErrInvalidPPS PPS 语法元素超出允许范围
var ErrInvalidPPS = errors.New("h264: invalid picture parameter set")

// RawPPS 图像参数集头部
type RawPPS struct {
	PicParameterSetID      uint32
	SeqParameterSetID      uint32
	EntropyCodingModeFlag  bool
	BottomFieldPicOrder    bool
	NumSliceGroupsMinus1   uint32
	NumRefIdxL0DefaultMin1 uint32
	NumRefIdxL1DefaultMin1 uint32
}

// Decode 从 NAL 单元（含 NAL 头）解码 pps
func (pps *RawPPS) Decode(nal []byte) error {
	rbsp := utils.RemoveH264or5EmulationBytes(nal)
	if len(rbsp) < 2 {
		return bits.ErrShortRead
	}
	if rbsp[0]&NalTypeBitmask != NalPps {
		return fmt.Errorf("h264: nal type %d is not pps", rbsp[0]&NalTypeBitmask)
	}

	r := bits.NewReader(rbsp[1:])
	pps.PicParameterSetID = r.ReadUe()
	pps.SeqParameterSetID = r.ReadUe()
	pps.EntropyCodingModeFlag = r.ReadBool()
	pps.BottomFieldPicOrder = r.ReadBool()
	pps.NumSliceGroupsMinus1 = r.ReadUe()
	if pps.NumSliceGroupsMinus1 > 0 {
		// FMO 只在 baseline/extended 中出现，不再继续解析后续字段
		return r.Err()
	}
	pps.NumRefIdxL0DefaultMin1 = r.ReadUe()
	pps.NumRefIdxL1DefaultMin1 = r.ReadUe()
	return r.Err()
}

// Validate 检查语法元素是否在标准允许的范围内
func (pps *RawPPS) Validate() error {
	if pps.PicParameterSetID >= MaxPpsCount ||
		pps.SeqParameterSetID >= MaxSpsCount ||
		pps.NumSliceGroupsMinus1 >= MaxSliceGroups ||
		pps.NumRefIdxL0DefaultMin1 > 31 ||
		pps.NumRefIdxL1DefaultMin1 > 31 {
		return ErrInvalidPPS
	}
	return nil
}

// ValidatePPS 解码并校验 pps NAL 单元
func ValidatePPS(nal []byte) bool {
	var pps RawPPS
	if pps.Decode(nal) != nil {
		return false
	}
	return pps.Validate() == nil
}

// SlicePPSID 读取编码片头中的 pic_parameter_set_id
func SlicePPSID(nal []byte) (uint32, error) {
	if len(nal) < 2 {
		return 0, bits.ErrShortRead
	}
	// 片头只需要前几个字节
	head := nal[1:]
	if len(head) > 16 {
		head = head[:16]
	}
	r := bits.NewReader(utils.RemoveH264or5EmulationBytes(head))
	r.ReadUe() // first_mb_in_slice
	r.ReadUe() // slice_type
	id := r.ReadUe()
	if err := r.Err(); err != nil {
		return 0, err
	}
	return id, nil
}
