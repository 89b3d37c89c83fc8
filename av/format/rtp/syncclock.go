// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtp

import (
	"time"

	"github.com/pion/rtcp"
)

// SyncClock 由对端 RTCP SR 建立的 NTP 与 RTP 时间对应关系
type SyncClock struct {
	// NTP Timestamp（Network time protocol）SR包发送时的绝对时间值。
	// NTP的作用是同步不同的RTP媒体流。
	// NTP时间戳，它的前32位是从1900 年1 月1 日0 时开始到现在的以秒为单位的整数部，
	// 后32 位是此时间的小数部，因此，它可以肯定的表示了数据发送出去的绝对时间。
	NTPTime int64 // 此处转换成自 1970-01-01 以来的纳秒数
	// RTP Timestamp：与NTP时间戳对应，
	// 与RTP数据包中的RTP时间戳具有相同的单位和随机初始值。
	RTPTime     uint32
	RTPTimeUnit float64 // RTP时间单位，每个RTP时间的纳秒数
	SSRC        uint32  // 发送者
	ReceivedOn  time.Time
}

// Init 初始化同步时钟
func (sc *SyncClock) Init(clockRate int) {
	sc.RTPTimeUnit = float64(time.Second) / float64(clockRate)
}

// Synced 是否已经收到过 SR
func (sc *SyncClock) Synced() bool { return !sc.ReceivedOn.IsZero() }

// LocalTime 本地时间
func (sc *SyncClock) LocalTime() time.Time {
	return time.Unix(0, sc.NTPTime).In(time.Local)
}

// Decode 解码 RTCP 复合包，遇到 SR 时更新时钟
func (sc *SyncClock) Decode(data []byte) (ok bool) {
	pkts, err := rtcp.Unmarshal(data)
	if err != nil {
		return false
	}
	for _, pkt := range pkts {
		if sr, isSR := pkt.(*rtcp.SenderReport); isSR {
			msw := sr.NTPTime >> 32
			lsw := sr.NTPTime & 0xFFFFFFFF
			sc.SSRC = sr.SSRC
			sc.RTPTime = sr.RTPTime
			sc.NTPTime = int64(msw-jan1970)*int64(time.Second) + int64(lsw*uint64(time.Second)>>32)
			sc.ReceivedOn = time.Now()
			ok = true
		}
	}
	return
}

// AbsoluteNtp 将 RTP 时间换算成绝对时间（纳秒）
func (sc *SyncClock) AbsoluteNtp(rtptime uint32) int64 {
	diff := int64(int32(rtptime - sc.RTPTime))
	return sc.NTPTime + int64(float64(diff)*sc.RTPTimeUnit)
}
