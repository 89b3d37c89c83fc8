// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package utils

import "bytes"

// RemoveH264or5EmulationBytes 复制 (H.264 或 H.265) NAL 单元，并移除其中的防竞争字节 0x03
func RemoveH264or5EmulationBytes(from []byte) []byte {
	from = RemoveNaluSeparator(from)
	to := make([]byte, 0, len(from))
	zeros := 0
	for _, b := range from {
		if zeros >= 2 && b == 3 {
			zeros = 0
			continue
		}
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
		to = append(to, b)
	}
	return to
}

// RemoveNaluSeparator 移除 NALU 分隔符 0x00000001 或 0x000001
func RemoveNaluSeparator(nalu []byte) []byte {
	if bytes.HasPrefix(nalu, []byte{0x0, 0x0, 0x0, 0x1}) {
		return nalu[4:]
	}
	if bytes.HasPrefix(nalu, []byte{0x0, 0x0, 0x1}) {
		return nalu[3:]
	}
	return nalu
}

// SplitAnnexB 按起始码 0x000001/0x00000001 拆分 Annex-B 字节流。
// 没有起始码时返回整个输入；返回的 NAL 单元去掉了尾部的零字节。
func SplitAnnexB(data []byte) [][]byte {
	var nalus [][]byte
	start := 0
	i := 0
	for i+3 <= len(data) {
		if data[i] == 0 && data[i+1] == 0 && data[i+2] == 1 {
			if nal := bytes.TrimRight(data[start:i], "\x00"); len(nal) > 0 {
				nalus = append(nalus, nal)
			}
			i += 3
			start = i
			continue
		}
		i++
	}
	if start < len(data) {
		nalus = append(nalus, data[start:])
	}
	return nalus
}
