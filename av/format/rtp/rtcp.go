// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtp

import (
	"time"

	"github.com/pion/rtcp"
)

// jan1970 1900-01-01 到 1970-01-01 的秒数
const jan1970 = 0x83aa7e80

// NTPTime 将时间转换成 64 位 NTP 时间戳
func NTPTime(t time.Time) uint64 {
	nsec := uint64(t.UnixNano())
	sec := nsec/uint64(time.Second) + jan1970
	frac := (nsec % uint64(time.Second)) << 32 / uint64(time.Second)
	return sec<<32 | frac
}

// NTPNow 当前时间的 NTP 时间戳
func NTPNow() uint64 { return NTPTime(time.Now()) }

// SenderReport 生成 28 字节的 RTCP 发送者报告（不含接收报告块）
func (p *Packet) SenderReport(ntp uint64) ([]byte, error) {
	sr := rtcp.SenderReport{
		SSRC:        p.SSRC(),
		NTPTime:     ntp,
		RTPTime:     p.Timestamp(),
		PacketCount: p.SentPackets,
		OctetCount:  p.SentBytes,
	}
	return sr.Marshal()
}

// SendRTCPSR 发送 RTCP 发送者报告
func (p *Packet) SendRTCPSR(send SendFunc, channel int) error {
	data, err := p.SenderReport(NTPNow())
	if err != nil {
		p.logger().Errorf("rtp: marshal sender report failed: %v", err)
		return err
	}
	send(data, channel)
	return nil
}

// ReceiverReport 根据排序器的统计生成 32 字节的 RTCP 接收者报告，
// 并清零本周期计数。jitter、LSR、DLSR 固定为 0。
func (s *Sorter) ReceiverReport(mySSRC, theirSSRC uint32) ([]byte, error) {
	if s.lostCurrent+s.packCurrent == 0 {
		s.packCurrent++
	}
	rr := rtcp.ReceiverReport{
		SSRC: mySSRC,
		Reports: []rtcp.ReceptionReport{{
			SSRC:               theirSSRC,
			FractionLost:       uint8(s.lostCurrent * 255 / (s.lostCurrent + s.packCurrent)),
			TotalLost:          s.lostTotal & 0xFFFFFF,
			LastSequenceNumber: uint32(s.rtpSeq) | s.packTotal&0xFFFF0000,
		}},
	}
	data, err := rr.Marshal()
	if err != nil {
		return nil, err
	}
	s.lostCurrent = 0
	s.packCurrent = 0
	return data, nil
}

// SendRTCPRR 发送 RTCP 接收者报告
func (s *Sorter) SendRTCPRR(send SendFunc, mySSRC, theirSSRC uint32, channel int) error {
	data, err := s.ReceiverReport(mySSRC, theirSSRC)
	if err != nil {
		s.logger.Errorf("rtp: marshal receiver report failed: %v", err)
		return err
	}
	send(data, channel)
	return nil
}
