// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sort"

	"github.com/cnotch/rtpengine/av/codec"
)

var errInvalidHVCC = errors.New("hevc: invalid HEVCDecoderConfigurationRecord")

// InitData 收集 VPS/SPS/PPS，用于生成 HEVCDecoderConfigurationRecord（hvcC）。
// 同类型同 ID 的参数集以最后收到的为准。
type InitData struct {
	vps map[uint32][]byte
	sps map[uint32][]byte
	pps map[uint32][]byte
}

// NewInitData 创建空的参数集集合
func NewInitData() *InitData {
	return &InitData{
		vps: make(map[uint32][]byte),
		sps: make(map[uint32][]byte),
		pps: make(map[uint32][]byte),
	}
}

// AddUnit 添加一个参数集 NAL 单元（不含长度前缀），返回集合是否发生变化
func (d *InitData) AddUnit(nal []byte) (changed bool, err error) {
	if len(nal) < 3 {
		return false, errInvalidParameterSet
	}

	var set map[uint32][]byte
	var id uint32
	switch NalType(nal[0]) {
	case NalVps:
		var vps RawVPS
		if err = vps.Decode(nal); err != nil {
			return
		}
		set, id = d.vps, uint32(vps.VideoParameterSetID)
	case NalSps:
		var sps RawSPS
		if err = sps.Decode(nal); err != nil {
			return
		}
		set, id = d.sps, sps.SeqParameterSetID
	case NalPps:
		if id, err = PPSID(nal); err != nil {
			return
		}
		set = d.pps
	default:
		return false, errInvalidParameterSet
	}

	if old, ok := set[id]; ok && bytes.Equal(old, nal) {
		return false, nil
	}
	set[id] = append([]byte(nil), nal...)
	return true, nil
}

// HaveRequired 是否至少各有一个 VPS、SPS 和 PPS
func (d *InitData) HaveRequired() bool {
	return len(d.vps) > 0 && len(d.sps) > 0 && len(d.pps) > 0
}

func sortedUnits(set map[uint32][]byte) [][]byte {
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	units := make([][]byte, len(ids))
	for i, id := range ids {
		units[i] = set[uint32(id)]
	}
	return units
}

func (d *InitData) firstSPS() (*RawSPS, bool) {
	units := sortedUnits(d.sps)
	if len(units) == 0 {
		return nil, false
	}
	var sps RawSPS
	if sps.Decode(units[0]) != nil {
		return nil, false
	}
	return &sps, true
}

// Meta 视频元数据
func (d *InitData) Meta() (meta codec.VideoMeta) {
	if sps, ok := d.firstSPS(); ok {
		meta.Width = sps.Width()
		meta.Height = sps.Height()
	}
	if units := sortedUnits(d.vps); len(units) > 0 {
		var vps RawVPS
		if vps.Decode(units[0]) == nil {
			meta.FrameRate = vps.FrameRate()
		}
	}
	return
}

// GenerateHVCC 生成 hvcC box 载荷（ISO/IEC 14496-15 8.3.3.1），NAL 长度字段为 4 字节
func (d *InitData) GenerateHVCC() ([]byte, error) {
	if !d.HaveRequired() {
		return nil, errInvalidHVCC
	}
	sps, ok := d.firstSPS()
	if !ok {
		return nil, errInvalidHVCC
	}

	b := make([]byte, 0, 256)
	b = append(b, 1,
		sps.ProfileSpace<<6|sps.TierFlag<<5|sps.ProfileIdc)
	b = binary.BigEndian.AppendUint32(b, sps.ProfileCompatibilityFlags)
	b = append(b,
		byte(sps.ConstraintIndicatorFlags>>40), byte(sps.ConstraintIndicatorFlags>>32),
		byte(sps.ConstraintIndicatorFlags>>24), byte(sps.ConstraintIndicatorFlags>>16),
		byte(sps.ConstraintIndicatorFlags>>8), byte(sps.ConstraintIndicatorFlags))
	b = append(b, sps.LevelIdc,
		0xF0, 0x00, // min_spatial_segmentation_idc = 0
		0xFC, // parallelismType = 0
		0xFC|byte(sps.ChromaFormatIdc&0x03),
		0xF8|byte(sps.BitDepthLumaMinus8&0x07),
		0xF8|byte(sps.BitDepthChromaMinus8&0x07),
		0x00, 0x00) // avgFrameRate
	nested := byte(0)
	if sps.TemporalIDNestingFlag {
		nested = 1
	}
	b = append(b, (sps.MaxSubLayersMinus1+1)<<3|nested<<2|0x03)

	arrays := []struct {
		typ   byte
		units [][]byte
	}{
		{NalVps, sortedUnits(d.vps)},
		{NalSps, sortedUnits(d.sps)},
		{NalPps, sortedUnits(d.pps)},
	}
	b = append(b, byte(len(arrays)))
	for _, a := range arrays {
		b = append(b, 0x80|a.typ) // array_completeness = 1
		b = binary.BigEndian.AppendUint16(b, uint16(len(a.units)))
		for _, u := range a.units {
			b = binary.BigEndian.AppendUint16(b, uint16(len(u)))
			b = append(b, u...)
		}
	}
	return b, nil
}

// ParseHVCC 从 hvcC box 载荷还原参数集集合
func ParseHVCC(b []byte) (*InitData, error) {
	if len(b) < 23 || b[0] != 1 {
		return nil, errInvalidHVCC
	}
	d := NewInitData()
	numArrays := int(b[22])
	off := 23
	for i := 0; i < numArrays; i++ {
		if off+3 > len(b) {
			return nil, errInvalidHVCC
		}
		numNalus := int(binary.BigEndian.Uint16(b[off+1:]))
		off += 3
		for j := 0; j < numNalus; j++ {
			if off+2 > len(b) {
				return nil, errInvalidHVCC
			}
			n := int(binary.BigEndian.Uint16(b[off:]))
			off += 2
			if off+n > len(b) {
				return nil, errInvalidHVCC
			}
			if _, err := d.AddUnit(b[off : off+n]); err != nil {
				return nil, err
			}
			off += n
		}
	}
	return d, nil
}
