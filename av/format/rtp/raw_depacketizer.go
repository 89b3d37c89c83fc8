// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtp

import (
	"github.com/cnotch/rtpengine/av/codec"
)

// rawDepacketizer ALAW、ULAW、PCM、opus 直接输出；
// 配置了转码器时 ALAW/ULAW 同时转成 AAC 写入输出轨道。
type rawDepacketizer struct {
	d *Depacketizer
}

func (r *rawDepacketizer) depacketize(msTime int64, payload []byte, missed bool) {
	if len(payload) == 0 {
		r.d.logger.Warnf("rtp: empty packet ignored")
		return
	}

	c := r.d.props.Codec
	if r.d.transcoder != nil && (c == codec.CodecALAW || c == codec.CodecULAW) {
		if out, ts, ok := r.d.transcoder.Transcode(r.d.props.ID, c, payload, msTime); ok {
			r.d.writeTrackFrame(r.d.outTrack, codec.CodecAAC, ts, out, false)
		}
	}
	r.d.writeFrame(msTime, append([]byte(nil), payload...), false)
}

func (r *rawDepacketizer) flush() {}
