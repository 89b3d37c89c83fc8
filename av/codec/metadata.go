// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

// VideoMeta 从参数集中解析出的视频元数据
type VideoMeta struct {
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	FrameRate float64 `json:"framerate,omitempty"`
}

// AudioMeta 从 AudioSpecificConfig 中解析出的音频元数据
type AudioMeta struct {
	SampleRate      int `json:"samplerate,omitempty"`
	Channels        int `json:"channels,omitempty"`
	SamplesPerFrame int `json:"samplesperframe,omitempty"`
}
