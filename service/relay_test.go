// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"encoding/binary"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/cnotch/rtpengine/av/codec"
	"github.com/cnotch/rtpengine/av/format/sdp"
	"github.com/cnotch/rtpengine/network"
	"github.com/cnotch/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// relayReceiver 在媒体端口及其 RTCP、列 FEC、行 FEC 端口上接收
type relayReceiver struct {
	media, control, column, row *net.UDPConn
}

func newRelayReceiver(t *testing.T) *relayReceiver {
	media := listenLoopback(t)
	port := media.LocalAddr().(*net.UDPAddr).Port
	r := &relayReceiver{media: media}
	for _, p := range []struct {
		conn   **net.UDPConn
		offset int
	}{
		{&r.control, network.RTCPPortOffset},
		{&r.column, network.ColumnFECPortOffset},
		{&r.row, network.RowFECPortOffset},
	} {
		conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port + p.offset})
		if err != nil {
			t.Skipf("port %d unavailable: %v", port+p.offset, err)
		}
		t.Cleanup(func() { conn.Close() })
		*p.conn = conn
	}
	return r
}

func (r *relayReceiver) dest() string {
	return "127.0.0.1:" + strconv.Itoa(r.media.LocalAddr().(*net.UDPAddr).Port)
}

func receive(t *testing.T, conn *net.UDPConn) []byte {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 2048)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	return buf[:n]
}

func TestRelay_TSWithFEC(t *testing.T) {
	rcv := newRelayReceiver(t)
	r, err := newRelay(rcv.dest(), sdp.Track{}, 4, 1, xlog.L())
	require.NoError(t, err)
	defer r.Close()

	payload := make([]byte, 7*188)
	for i := 0; i < 4; i++ {
		for j := 0; j < 7; j++ {
			payload[j*188] = 0x47
			payload[j*188+1] = byte(i)
		}
		require.NoError(t, r.writeTS(payload))
	}

	var sns []uint16
	for i := 0; i < 4; i++ {
		p := receive(t, rcv.media)
		require.Len(t, p, 12+len(payload))
		assert.Equal(t, byte(payloadTypeMP2T), p[1]&0x7F)
		sns = append(sns, binary.BigEndian.Uint16(p[2:]))
	}
	for i := 1; i < 4; i++ {
		assert.Equal(t, sns[0]+uint16(i), sns[i])
	}

	// 一列时每个包组成一行
	for i := 0; i < 4; i++ {
		fec := receive(t, rcv.row)
		require.Len(t, fec, 12+16+len(payload))
		assert.Equal(t, sns[i], binary.BigEndian.Uint16(fec[12:]))
		assert.Equal(t, byte(0x40), fec[24])
	}
	fec := receive(t, rcv.column)
	assert.Equal(t, sns[0], binary.BigEndian.Uint16(fec[12:]))
	assert.Equal(t, byte(4), fec[26])

	info := r.info()
	assert.True(t, info.FEC)
	assert.Equal(t, int64(4), info.Stats.Delivered)
	assert.Equal(t, int64(5), info.Stats.FECPackets)
	assert.Equal(t, uint32(4+5), info.TS)

	r.sendSenderReports()
	sr := receive(t, rcv.control)
	assert.Len(t, sr, 28)
	assert.Equal(t, byte(200), sr[1])
}

func TestRelay_Frames(t *testing.T) {
	rcv := newRelayReceiver(t)
	track := sdp.Track{
		Props:       codec.NewTrackProperties(1, codec.CodecH264, 90000, nil),
		PayloadType: 97,
	}
	r, err := newRelay(rcv.dest(), track, 0, 0, xlog.L())
	require.NoError(t, err)
	defer r.Close()

	// 发送前不输出 SR
	r.sendSenderReports()

	nal := []byte{0x65, 0x88, 0x80, 0x11}
	au := binary.BigEndian.AppendUint32(nil, uint32(len(nal)))
	au = append(au, nal...)
	require.NoError(t, r.writeFrame(&codec.Frame{
		MediaType: codec.MediaTypeVideo,
		TrackID:   1,
		Codec:     codec.CodecH264,
		Timestamp: 1000,
		Keyframe:  true,
		Payload:   au,
	}))

	p := receive(t, rcv.media)
	assert.Equal(t, byte(0x80|97), p[1])
	assert.Equal(t, uint32(90000), binary.BigEndian.Uint32(p[4:]))
	assert.Equal(t, nal, p[12:])
	assert.False(t, r.info().FEC)

	r.sendSenderReports()
	sr := receive(t, rcv.control)
	assert.Equal(t, byte(200), sr[1])
	assert.Equal(t, uint32(90000), binary.BigEndian.Uint32(sr[16:]))
}

func TestRelay_InvalidFEC(t *testing.T) {
	_, err := newRelay("127.0.0.1:5004", sdp.Track{}, 2, 2, xlog.L())
	assert.Error(t, err)
}
