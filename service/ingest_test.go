// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cnotch/rtpengine/av/codec"
	"github.com/cnotch/rtpengine/av/format/rtp"
	"github.com/cnotch/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenLoopback(t *testing.T) *net.UDPConn {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestUDPIngest(t *testing.T) {
	var frames int64
	session := rtp.NewSession(codec.FrameWriterFunc(func(frame *codec.Frame) error {
		atomic.AddInt64(&frames, 1)
		return nil
	}), nil, xlog.L())
	session.SetProperties(codec.NewTrackProperties(2, codec.CodecALAW, 8000, nil))

	conn, control := listenLoopback(t), listenLoopback(t)
	u := newUDPIngest(session, 2, conn, control, xlog.L())
	defer u.Close()
	go u.serve()
	go u.serveRTCP()

	client := listenLoopback(t)

	// 先收到 RTCP，RR 发往 RTCP 的来源地址
	_, err := client.WriteToUDP([]byte{0x80, 200, 0, 1, 0, 0, 0, 0}, control.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		u.lock.Lock()
		defer u.lock.Unlock()
		return u.peer != nil
	}, 2*time.Second, 10*time.Millisecond)

	rtpAddr := conn.LocalAddr().(*net.UDPAddr)
	for i := 0; i < 8; i++ {
		_, err = client.WriteToUDP(pcmaPacket(uint16(100+i), uint32(8000+160*i)), rtpAddr)
		require.NoError(t, err)
	}
	// 无效包只被丢弃
	_, err = client.WriteToUDP([]byte{0x80, 8, 0}, rtpAddr)
	require.NoError(t, err)

	// 预缓冲后按序输出
	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&frames) >= 4
	}, 2*time.Second, 10*time.Millisecond)

	session.ReceiverReports(0x1234, func(track uint64, report []byte) {
		assert.Equal(t, uint64(2), track)
		u.sendReport(report)
	})

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1500)
	n, from, err := client.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, 32, n)
	assert.Equal(t, byte(201), buf[1])
	assert.Equal(t, control.LocalAddr().(*net.UDPAddr).Port, from.Port)

	require.Eventually(t, func() bool {
		info, ok := session.Track(2)
		return ok && info.Stats.Malformed == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUDPIngest_LearnPeer(t *testing.T) {
	u := &udpIngest{}
	u.learnPeer(&net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 5000}, false)
	assert.Equal(t, 5001, u.peer.Port)

	u.learnPeer(&net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 6001}, true)
	assert.Equal(t, 6001, u.peer.Port)

	u.learnPeer(&net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 7000}, false)
	assert.Equal(t, 6001, u.peer.Port)
}
