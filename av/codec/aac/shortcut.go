// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aac

// Samples 返回 config 描述的每帧采样数，config 无效时为 1024
func Samples(config []byte) int {
	var asc AudioSpecificConfig
	if len(config) == 0 || asc.Decode(config) != nil {
		return SamplesPerFrame
	}
	return asc.SamplesPerFrame()
}
