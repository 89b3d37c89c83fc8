// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtp

import (
	"github.com/cnotch/xlog"
)

// mpesDepacketizer MPEG-2 视频与 MP2/MP3 音频（RFC 2250），
// 去掉 4 字节专用头后直接输出，不做跨包重组。
type mpesDepacketizer struct {
	d     *Depacketizer
	video bool
}

func (m *mpesDepacketizer) depacketize(msTime int64, payload []byte, missed bool) {
	if len(payload) < 5 {
		m.d.logger.Warnf("rtp: empty packet ignored")
		return
	}
	if m.video && m.d.logger.LevelEnabled(xlog.DebugLevel) {
		m.d.logger.Debugf("rtp: received MPEG2 packet: %s", MPEGVideoHeader(payload[:4]))
	}
	m.d.writeFrame(msTime, append([]byte(nil), payload[4:]...), false)
}

func (m *mpesDepacketizer) flush() {}
