// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"errors"
	"math/rand"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cnotch/rtpengine/av/codec"
	"github.com/cnotch/rtpengine/av/format/rtp"
	"github.com/cnotch/rtpengine/av/format/sdp"
	"github.com/cnotch/rtpengine/network"
	"github.com/cnotch/rtpengine/stats"
	"github.com/cnotch/xlog"
	"github.com/kelindar/rate"
)

const (
	defaultRelayPort   = 5004
	defaultTSInputPort = 1234
	payloadTypeMP2T    = 33
	payloadTypeDynamic = 96
)

// relay 转发输出：重新打包一个轨道的帧，
// 以及将接收的裸 MPEG-TS 加上 RTP 头与 2-D FEC 发出
type relay struct {
	track      uint64
	multiplier float64
	dest       *net.UDPAddr

	media   *net.UDPConn
	control *net.UDPConn
	column  *net.UDPConn
	row     *net.UDPConn

	lock    sync.Mutex
	frames  *rtp.Packet
	ts      *rtp.Packet
	started bool // 是否已发送首个帧

	stats  *stats.Track
	flow   stats.Flow
	warn   *rate.Limiter
	logger *xlog.Logger
}

// newRelay 创建转发输出；rows 为 0 时 MPEG-TS 不带 FEC
func newRelay(dest string, track sdp.Track, rows, columns int, logger *xlog.Logger) (*relay, error) {
	addr, err := network.ParseUDPAddr(dest, defaultRelayPort)
	if err != nil {
		return nil, err
	}

	r := &relay{
		track:      track.Props.ID,
		multiplier: track.Props.Multiplier,
		dest:       addr,
		stats:      stats.NewTrack(),
		flow:       stats.NewChildFlow(stats.TotalFlow),
		warn:       rate.New(warnRate, time.Second),
		logger:     logger.With(xlog.Fields(xlog.F("relay", addr.String()))),
	}
	if r.multiplier <= 0 {
		r.multiplier = 90
	}

	conns := []**net.UDPConn{&r.media, &r.control, &r.column, &r.row}
	offsets := []int{0, network.RTCPPortOffset, network.ColumnFECPortOffset, network.RowFECPortOffset}
	for i, offset := range offsets {
		if *conns[i], err = net.DialUDP("udp", nil, network.WithPortOffset(addr, offset)); err != nil {
			r.closeConns()
			return nil, err
		}
	}

	pt := track.PayloadType
	if pt == 0 && track.Props.Codec != codec.CodecULAW {
		pt = payloadTypeDynamic
	}
	ssrc := rand.Uint32()
	r.frames = rtp.NewPacket(pt, uint16(rand.Uint32()), rand.Uint32(), ssrc, 0)
	r.frames.Logger = r.logger
	r.ts = rtp.NewPacket(payloadTypeMP2T, uint16(rand.Uint32()), 0, ssrc+1, 0)
	r.ts.Logger = r.logger
	if rows > 0 {
		if err = r.ts.ConfigureFEC(rows, columns); err != nil {
			r.closeConns()
			return nil, err
		}
	}

	stats.RelayConns.Add()
	if r.track != 0 {
		r.logger.Infof("relaying track %d as payload type %d", r.track, pt)
	}
	return r, nil
}

// sender 返回向 conn 发送的回调，direction 非空时计入 FEC 指标
func (r *relay) sender(conn *net.UDPConn, direction string) rtp.SendFunc {
	return func(data []byte, channel int) {
		if _, err := conn.Write(data); err != nil {
			if !r.warn.Limit() {
				r.logger.Warnf("send %d bytes to %s: %v", len(data), conn.RemoteAddr(), err)
			}
			return
		}
		r.flow.AddOut(int64(len(data)))
		if direction != "" {
			stats.FECPacketsSent.WithLabelValues(direction).Inc()
		}
	}
}

// writeFrame 将访问单元重新打包发送，RTP 时间戳由毫秒时间换算
func (r *relay) writeFrame(frame *codec.Frame) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.started = true
	r.frames.SetTimestamp(uint32(float64(frame.Timestamp) * r.multiplier))
	return r.frames.SendData(r.sender(r.media, ""), frame.Payload, 0, frame.Codec)
}

// writeTS 发送一个 MPEG-TS 数据报，启用 FEC 时同时累加行列校验
func (r *relay) writeTS(payload []byte) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	before := r.ts.SentPackets
	fecBytes, err := r.ts.SendTSWithFEC(r.sender(r.media, ""),
		r.sender(r.column, "column"), r.sender(r.row, "row"), payload, 0)
	if err != nil {
		return err
	}
	r.stats.AddDelivered()
	if fecPackets := int64(r.ts.SentPackets-before) - 1; fecPackets > 0 {
		r.stats.AddFEC(fecPackets, int64(fecBytes))
	}
	return nil
}

// serveTS 从 conn 接收裸 MPEG-TS 并转发，直到 conn 关闭
func (r *relay) serveTS(conn *net.UDPConn) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Errorf("ts relay panic; r = %v \n %s", rec, debug.Stack())
		}
	}()

	buf := make([]byte, maxDatagramSize)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				r.logger.Error(err.Error())
			}
			return
		}
		r.stats.AddReceived()
		if err = r.writeTS(buf[:n]); err != nil && !r.warn.Limit() {
			r.logger.Warnf("relay %d bytes ts: %v", n, err)
		}
	}
}

// sendSenderReports 为已发送数据的流发送 SR
func (r *relay) sendSenderReports() {
	r.lock.Lock()
	defer r.lock.Unlock()

	send := r.sender(r.control, "")
	if r.started {
		if err := r.frames.SendRTCPSR(send, 0); err != nil {
			r.logger.Error(err.Error())
		}
		stats.RTCPReportsSent.WithLabelValues("sr").Inc()
	}
	if r.ts.SentPackets > 0 {
		if err := r.ts.SendRTCPSR(send, 0); err != nil {
			r.logger.Error(err.Error())
		}
		stats.RTCPReportsSent.WithLabelValues("sr").Inc()
	}
}

// relayInfo 转发状态
type relayInfo struct {
	Dest   string            `json:"dest"`
	Track  uint64            `json:"track,omitempty"`
	FEC    bool              `json:"fec"`
	Stats  stats.TrackSample `json:"stats"`
	Flow   stats.FlowSample  `json:"flow"`
	Frames uint32            `json:"frame_packets"`
	TS     uint32            `json:"ts_packets"`
}

func (r *relay) info() relayInfo {
	r.lock.Lock()
	defer r.lock.Unlock()
	return relayInfo{
		Dest:   r.dest.String(),
		Track:  r.track,
		FEC:    r.ts.FECEnabled(),
		Stats:  r.stats.GetSample(),
		Flow:   r.flow.GetSample(),
		Frames: r.frames.SentPackets,
		TS:     r.ts.SentPackets,
	}
}

func (r *relay) closeConns() {
	for _, conn := range []*net.UDPConn{r.media, r.control, r.column, r.row} {
		if conn != nil {
			conn.Close()
		}
	}
}

func (r *relay) Close() error {
	r.closeConns()
	stats.RelayConns.Release()
	return nil
}

// listenTSInput 监听裸 MPEG-TS 输入
func listenTSInput(input string) (*net.UDPConn, error) {
	addr, err := network.ParseUDPAddr(input, defaultTSInputPort)
	if err != nil {
		return nil, err
	}
	return net.ListenUDP("udp", addr)
}
