// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

// NalType 从 NAL 头第一个字节取类型
func NalType(nt byte) byte {
	return (nt >> 1) & 0x3f
}

// IsIRAP 是否随机接入点图像（16~23）
func IsIRAP(nt byte) bool {
	t := NalType(nt)
	return t >= NalBlaWLp && t <= NalIrapVcl23
}

// IsKeyframe 判断 NAL 单元是否属于关键帧
func IsKeyframe(nal []byte) bool {
	if len(nal) == 0 {
		return false
	}
	return IsIRAP(nal[0])
}
