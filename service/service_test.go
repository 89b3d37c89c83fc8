// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cnotch/rtpengine/av/codec"
	"github.com/cnotch/rtpengine/av/format/rtp"
	"github.com/cnotch/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	s, err := NewService(context.Background(), xlog.L())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func pcmaPacket(seq uint16, ts uint32) []byte {
	buf := make([]byte, 12+160)
	buf[0] = 0x80
	buf[1] = 8
	binary.BigEndian.PutUint16(buf[2:], seq)
	binary.BigEndian.PutUint32(buf[4:], ts)
	binary.BigEndian.PutUint32(buf[8:], 0x22222222)
	for i := 12; i < len(buf); i++ {
		buf[i] = 0xD5
	}
	return buf
}

func serve(s *Service, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestLoadTracks(t *testing.T) {
	tracks, err := loadTracks("")
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, codec.CodecH264, tracks[0].Props.Codec)
	assert.Equal(t, codec.CodecALAW, tracks[1].Props.Codec)

	channels := interleavedChannels(tracks)
	assert.Equal(t, map[int]uint64{rtp.ChannelVideo: 1, rtp.ChannelAudio: 2}, channels)

	dir := t.TempDir()
	file := filepath.Join(dir, "in.sdp")
	require.NoError(t, os.WriteFile(file, []byte(
		"v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"+
			"m=audio 18888 RTP/AVP 0\r\na=control:track1\r\n"), 0644))
	tracks, err = loadTracks(file)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, codec.CodecULAW, tracks[0].Props.Codec)
	assert.Equal(t, 18888, tracks[0].Port)

	_, err = loadTracks(filepath.Join(dir, "missing.sdp"))
	assert.Error(t, err)
}

func TestService_TrackApis(t *testing.T) {
	s := newTestService(t)

	w := serve(s, http.MethodGet, "/api/v1/tracks")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	var list struct {
		Total  int `json:"total"`
		Tracks []struct {
			Props struct {
				ID    uint64 `json:"id"`
				Codec string `json:"codec"`
			} `json:"props"`
		} `json:"tracks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Total)
	require.Len(t, list.Tracks, 2)
	assert.Equal(t, "H264", list.Tracks[0].Props.Codec)
	assert.Equal(t, uint64(2), list.Tracks[1].Props.ID)

	w = serve(s, http.MethodGet, "/api/v1/tracks/2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ALAW"`)

	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/api/v1/tracks/9").Code)
	assert.Equal(t, http.StatusBadRequest, serve(s, http.MethodGet, "/api/v1/tracks/x").Code)

	assert.Equal(t, http.StatusOK, serve(s, http.MethodDelete, "/api/v1/tracks/2").Code)
	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodDelete, "/api/v1/tracks/2").Code)
	assert.Len(t, s.session.Tracks(), 1)

	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/api/v1/relay").Code)
}

func TestService_SystemApis(t *testing.T) {
	s := newTestService(t)

	w := serve(s, http.MethodGet, "/api/v1/server")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"rtpengine"`)

	w = serve(s, http.MethodGet, "/api/v1/runtime?extra=1")
	require.Equal(t, http.StatusOK, w.Code)
	var rt struct {
		Tracks int             `json:"tracks"`
		Extra  json.RawMessage `json:"extra"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rt))
	assert.Equal(t, 2, rt.Tracks)
	assert.NotEmpty(t, rt.Extra)

	w = serve(s, http.MethodGet, "/api/crossdomain.xml")
	assert.Equal(t, "application/xml", w.Header().Get("Content-Type"))

	w = serve(s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestService_InitData(t *testing.T) {
	s := newTestService(t)
	require.NoError(t, s.WriteInit(1, []byte{1, 2, 3}))

	w := serve(s, http.MethodGet, "/api/v1/tracks/1")
	require.Equal(t, http.StatusOK, w.Code)
	var info struct {
		Init []byte `json:"init"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, []byte{1, 2, 3}, info.Init)
}

func TestService_InterleavedIngest(t *testing.T) {
	s := newTestService(t)
	client, server := net.Pipe()
	defer client.Close()
	s.onAcceptConn(server)

	for i := 0; i < 3; i++ {
		packet := &rtp.InterleavedPacket{
			Channel: rtp.ChannelAudio,
			Data:    pcmaPacket(uint16(10+i), uint32(1000+160*i)),
		}
		require.NoError(t, packet.Write(client, rtp.DefaultChannelConfig))
	}

	require.Eventually(t, func() bool {
		info, ok := s.session.Track(2)
		return ok && info.Stats.Frames == 3
	}, 2*time.Second, 10*time.Millisecond)

	// 定时任务也可能发送报告，持续读取避免阻塞写端
	reports := make(chan []byte, 1)
	go func() {
		for {
			buf := make([]byte, 4+32)
			if _, err := io.ReadFull(client, buf); err != nil {
				return
			}
			select {
			case reports <- buf:
			default:
			}
		}
	}()
	s.sendReports()

	select {
	case report := <-reports:
		assert.Equal(t, byte('$'), report[0])
		assert.Equal(t, byte(rtp.ChannelAudioControl), report[1])
		assert.Equal(t, uint16(32), binary.BigEndian.Uint16(report[2:]))
		assert.Equal(t, byte(201), report[5])
	case <-time.After(2 * time.Second):
		t.Fatal("no receiver report")
	}

	client.Close()
	require.Eventually(t, func() bool {
		s.lock.Lock()
		defer s.lock.Unlock()
		return len(s.conns) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestService_FatalTearsDownTrack(t *testing.T) {
	s := newTestService(t)

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	control, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	s.addUDP(newUDPIngest(s.session, 2, conn, control, xlog.L()))

	s.onTrackFatal(2, rtp.ErrDepacketizerFailed)
	require.Eventually(t, func() bool {
		_, ok := s.session.Track(2)
		s.lock.Lock()
		defer s.lock.Unlock()
		return !ok && len(s.udp[2]) == 0
	}, 2*time.Second, 10*time.Millisecond)
	_, ok := s.session.Track(1)
	assert.True(t, ok)
}
