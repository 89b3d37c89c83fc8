// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"errors"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cnotch/rtpengine/av/format/rtp"
	"github.com/cnotch/rtpengine/config"
	"github.com/cnotch/rtpengine/network"
	"github.com/cnotch/rtpengine/network/socket/buffered"
	"github.com/cnotch/rtpengine/stats"
	"github.com/cnotch/xlog"
	"github.com/kelindar/rate"
)

const (
	maxDatagramSize = 64 * 1024
	warnRate        = 10 // 每秒最多输出的错误包告警数
)

// udpIngest 一个轨道的 UDP 接入，RTP 与 RTCP 各占一个端口
type udpIngest struct {
	track   uint64
	session *rtp.Session
	conn    *net.UDPConn
	control *net.UDPConn
	warn    *rate.Limiter
	logger  *xlog.Logger

	lock sync.Mutex
	peer *net.UDPAddr // RTCP 对端
}

// listenUDPTrack 在 port 接收 RTP，在 port+1 接收 RTCP
func listenUDPTrack(session *rtp.Session, port int, track uint64, logger *xlog.Logger) (*udpIngest, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, err
	}
	control, err := net.ListenUDP("udp", &net.UDPAddr{Port: port + network.RTCPPortOffset})
	if err != nil {
		conn.Close()
		return nil, err
	}
	return newUDPIngest(session, track, conn, control, logger), nil
}

func newUDPIngest(session *rtp.Session, track uint64, conn, control *net.UDPConn, logger *xlog.Logger) *udpIngest {
	if err := conn.SetReadBuffer(config.NetBufferSize()); err != nil {
		logger.Warnf("udp listener of track %d: %v", track, err)
	}
	return &udpIngest{
		track:   track,
		session: session,
		conn:    conn,
		control: control,
		warn:    rate.New(warnRate, time.Second),
		logger: logger.With(xlog.Fields(
			xlog.F("track", track),
			xlog.F("udp", conn.LocalAddr().String()))),
	}
}

func (u *udpIngest) serve() {
	defer func() {
		if r := recover(); r != nil {
			u.logger.Errorf("udp listener panic; r = %v \n %s", r, debug.Stack())
		}
	}()

	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				u.logger.Error(err.Error())
			}
			return
		}
		u.learnPeer(from, false)

		if err = u.session.AddPacket(u.track, buf[:n]); err != nil {
			u.warnf("drop %d bytes packet from %s: %v", n, from, err)
		}
	}
}

func (u *udpIngest) serveRTCP() {
	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := u.control.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				u.logger.Error(err.Error())
			}
			return
		}
		u.learnPeer(from, true)

		if err = u.session.AddRTCP(u.track, buf[:n]); err != nil {
			u.warnf("drop %d bytes rtcp packet from %s: %v", n, from, err)
		}
	}
}

// learnPeer 记录 RTCP 对端；未收到 RTCP 前假定对端 RTCP 端口为 RTP 端口 + 1
func (u *udpIngest) learnPeer(from *net.UDPAddr, isControl bool) {
	u.lock.Lock()
	defer u.lock.Unlock()
	if isControl {
		u.peer = from
	} else if u.peer == nil {
		u.peer = network.WithPortOffset(from, network.RTCPPortOffset)
	}
}

func (u *udpIngest) warnf(format string, args ...interface{}) {
	if !u.warn.Limit() {
		u.logger.Warnf(format, args...)
	}
}

// sendReport 向对端发送 RR
func (u *udpIngest) sendReport(report []byte) {
	u.lock.Lock()
	peer := u.peer
	u.lock.Unlock()
	if peer == nil {
		return
	}
	if _, err := u.control.WriteToUDP(report, peer); err != nil {
		u.warnf("send receiver report to %s: %v", peer, err)
	}
}

func (u *udpIngest) Close() error {
	u.conn.Close()
	return u.control.Close()
}

// ingestConn TCP 交织传输接入连接
type ingestConn struct {
	svc      *Service
	conn     *buffered.Conn
	channels map[uint64]int // 轨道 -> 媒体通道类型
	demuxer  *rtp.Demuxer
	timeout  time.Duration
	logger   *xlog.Logger

	lock   sync.Mutex
	closed bool
}

// onAcceptConn 当新连接接入时触发
func (s *Service) onAcceptConn(c net.Conn) {
	ic := &ingestConn{
		svc: s,
		conn: buffered.NewConn(c,
			buffered.BufferSize(config.NetBufferSize()),
			buffered.Flow(stats.NewChildFlow(stats.TotalFlow))),
		channels: make(map[uint64]int, len(s.channels)),
		timeout:  config.NetTimeout(),
		logger: s.logger.With(xlog.Fields(
			xlog.F("peer", c.RemoteAddr().String()))),
	}
	for channel, track := range s.channels {
		ic.channels[track] = channel
	}

	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		c.Close()
		return
	}
	s.conns[ic] = struct{}{}
	s.lock.Unlock()

	go ic.process()
}

func (ic *ingestConn) process() {
	defer func() {
		if r := recover(); r != nil {
			ic.logger.Errorf("ingest panic; %v \n %s", r, debug.Stack())
		}

		stats.IngestConns.Release()
		ic.svc.lock.Lock()
		delete(ic.svc.conns, ic)
		ic.svc.lock.Unlock()
		ic.Close()
		ic.demuxer.Close()
		ic.logger.Infof("close interleaved ingest")
	}()

	ic.logger.Infof("open interleaved ingest")
	stats.IngestConns.Add()
	ic.demuxer = rtp.NewDemuxer(ic.svc.session, ic.svc.channels, ic.logger)
	reader := ic.conn.Reader()

	for !ic.isClosed() {
		deadLine := time.Time{}
		if ic.timeout > 0 {
			deadLine = time.Now().Add(ic.timeout)
		}
		if err := ic.conn.SetReadDeadline(deadLine); err != nil {
			ic.logger.Error(err.Error())
			break
		}

		packet, err := rtp.ReadPacket(reader, rtp.DefaultChannelConfig)
		if err != nil {
			if err == io.EOF { // 如果客户端断开提醒
				ic.logger.Warn("The client actively disconnects")
			} else if !ic.isClosed() { // 如果主动关闭，不提示
				ic.logger.Error(err.Error())
			}
			break
		}
		ic.demuxer.WritePacket(packet)
	}
}

func (ic *ingestConn) isClosed() bool {
	ic.lock.Lock()
	defer ic.lock.Unlock()
	return ic.closed
}

// sendReport 在轨道的控制通道上回送 RR
func (ic *ingestConn) sendReport(track uint64, report []byte) {
	channel, ok := ic.channels[track]
	if !ok {
		return
	}

	ic.lock.Lock()
	defer ic.lock.Unlock()
	if ic.closed {
		return
	}
	packet := &rtp.InterleavedPacket{Channel: byte(channel + 1), Data: report}
	if err := packet.Write(ic.conn, rtp.DefaultChannelConfig); err != nil {
		ic.logger.Warnf("send receiver report: %v", err)
		return
	}
	ic.conn.Flush()
}

// Close 关闭连接
func (ic *ingestConn) Close() error {
	ic.lock.Lock()
	defer ic.lock.Unlock()
	if ic.closed {
		return nil
	}
	ic.closed = true
	return ic.conn.Close()
}
