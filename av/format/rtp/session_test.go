// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtp

import (
	"bufio"
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cnotch/rtpengine/av/codec"
	"github.com/pion/rtcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lockedSink struct {
	mu     sync.Mutex
	frames []*codec.Frame
}

func (s *lockedSink) WriteFrame(frame *codec.Frame) error {
	s.mu.Lock()
	s.frames = append(s.frames, frame)
	s.mu.Unlock()
	return nil
}

func (s *lockedSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func newPCMSession(sink codec.FrameWriter, ids ...uint64) *Session {
	s := NewSession(sink, nil, nil, WithClock(fixedClock))
	for _, id := range ids {
		s.SetProperties(codec.NewTrackProperties(id, codec.CodecPCM, 8000, nil))
	}
	return s
}

func TestSession_Packets(t *testing.T) {
	sink := &lockedSink{}
	s := newPCMSession(sink, 1, 2)

	assert.Equal(t, ErrUnknownTrack, s.AddPacket(9, rtpBytes(t, 1, 160, 0x01)))
	assert.Equal(t, ErrShortPacket, s.AddPacket(1, []byte{0x80, 0x00}))

	for i, seq := range []uint16{10, 12, 11, 14, 13} {
		require.NoError(t, s.AddPacket(1, rtpBytes(t, seq, 160*uint32(seq), byte(i))))
	}
	assert.Equal(t, 5, sink.count())

	info, ok := s.Track(1)
	require.True(t, ok)
	assert.Equal(t, int64(6), info.Stats.Received)
	assert.Equal(t, int64(1), info.Stats.Malformed)
	assert.Equal(t, int64(5), info.Stats.Delivered)
	assert.Equal(t, int64(5), info.Stats.Frames)
	assert.Equal(t, uint32(0x11111111), info.PeerSSRC)
	assert.Equal(t, uint16(15), info.Sorter.Expected)
	assert.Equal(t, codec.MediaTypeAudio, info.Props.Type)
	assert.False(t, info.Failed)

	tracks := s.Tracks()
	require.Len(t, tracks, 2)
	assert.Equal(t, uint64(1), tracks[0].Props.ID)
	assert.Equal(t, uint64(2), tracks[1].Props.ID)
	assert.NotZero(t, s.Flow().InBytes)

	// 只为已收到数据的轨道生成 RR
	var reported []uint64
	s.ReceiverReports(0x5555, func(track uint64, report []byte) {
		reported = append(reported, track)
		pkts, err := rtcp.Unmarshal(report)
		require.NoError(t, err)
		rr := pkts[0].(*rtcp.ReceiverReport)
		assert.Equal(t, uint32(0x5555), rr.SSRC)
		assert.Equal(t, uint32(0x11111111), rr.Reports[0].SSRC)
	})
	assert.Equal(t, []uint64{1}, reported)

	s.RemoveTrack(2)
	_, ok = s.Track(2)
	assert.False(t, ok)
}

func TestSession_Fatal(t *testing.T) {
	sink := &lockedSink{}
	s := newPCMSession(sink, 1)
	require.NoError(t, s.SetOrdered(1, true))
	assert.Equal(t, ErrUnknownTrack, s.SetOrdered(5, true))

	var fatalTrack uint64
	var fatalErr error
	s.OnFatal(func(track uint64, err error) {
		fatalTrack, fatalErr = track, err
	})

	require.NoError(t, s.AddPacket(1, rtpBytes(t, 1, 1600, 0x01)))
	require.NoError(t, s.AddPacket(1, rtpBytes(t, 2, 3200, 0x02)))
	assert.Equal(t, 2, sink.count())

	require.NoError(t, s.AddPacket(1, rtpBytes(t, 3, 800, 0x03)))
	assert.Equal(t, uint64(1), fatalTrack)
	assert.True(t, errors.Is(fatalErr, ErrTimestampRegression))

	assert.Equal(t, ErrDepacketizerFailed, s.AddPacket(1, rtpBytes(t, 4, 4800, 0x04)))
	info, _ := s.Track(1)
	assert.True(t, info.Failed)
	assert.Equal(t, 2, sink.count())
}

func TestSession_FatalStopsBufferedDelivery(t *testing.T) {
	sink := &lockedSink{}
	s := NewSession(sink, nil, nil, WithClock(fixedClock))
	s.SetProperties(codec.NewTrackProperties(1, codec.CodecH264, 90000, nil))

	fatals := 0
	s.OnFatal(func(track uint64, err error) {
		assert.True(t, errors.Is(err, ErrTimestampRegression))
		fatals++
	})

	nal := []byte{0x41, 0x9a, 0x00}
	send := func(seq uint16, ts uint32) error {
		return s.AddPacket(1, rtpBytes(t, seq, ts, nal...))
	}

	// 12 缺失，13~15 留在排序缓冲
	require.NoError(t, send(10, 90000))
	require.NoError(t, send(11, 93600))
	require.NoError(t, send(13, 100800))
	require.NoError(t, send(14, 104400))
	require.NoError(t, send(15, 108000))
	assert.Equal(t, 1, sink.count())

	info, _ := s.Track(1)
	assert.Equal(t, int64(2), info.Stats.Delivered)
	assert.Equal(t, 3, info.Sorter.Buffered)

	// 12 时间戳回退，其后冲出的 13~15 不再交给解包器
	require.NoError(t, send(12, 1000))
	assert.Equal(t, 1, fatals)
	assert.Equal(t, 1, sink.count())

	info, _ = s.Track(1)
	assert.True(t, info.Failed)
	assert.Equal(t, int64(3), info.Stats.Delivered)
	assert.Zero(t, info.Sorter.Buffered)
	assert.Equal(t, uint16(16), info.Sorter.Expected)

	assert.Equal(t, ErrDepacketizerFailed, send(16, 111600))
	s.RemoveTrack(1)
	assert.Equal(t, 1, fatals)
	assert.Equal(t, 1, sink.count())
}

func TestSession_AddRTCP(t *testing.T) {
	s := newPCMSession(nil, 1)
	sr := rtcp.SenderReport{SSRC: 0x11111111, NTPTime: NTPNow(), RTPTime: 160}
	data, err := sr.Marshal()
	require.NoError(t, err)

	require.NoError(t, s.AddRTCP(1, data))
	require.NoError(t, s.AddRTCP(1, []byte{0x01}))
	assert.Equal(t, ErrUnknownTrack, s.AddRTCP(3, data))

	s.lock.Lock()
	synced := s.tracks[1].Clock.Synced()
	s.lock.Unlock()
	assert.True(t, synced)
}

func TestDemuxer(t *testing.T) {
	sink := &lockedSink{}
	s := newPCMSession(sink, 1)
	demuxer := NewDemuxer(s, map[int]uint64{ChannelAudio: 1}, nil)

	for seq := uint16(50); seq < 53; seq++ {
		require.NoError(t, demuxer.WritePacket(&InterleavedPacket{
			Channel: ChannelAudio,
			Data:    rtpBytes(t, seq, 160*uint32(seq), 0x01),
		}))
	}
	sr := rtcp.SenderReport{SSRC: 0x11111111, NTPTime: NTPNow(), RTPTime: 160}
	data, err := sr.Marshal()
	require.NoError(t, err)
	require.NoError(t, demuxer.WritePacket(&InterleavedPacket{Channel: ChannelAudioControl, Data: data}))
	require.NoError(t, demuxer.WritePacket(&InterleavedPacket{Channel: ChannelVideo, Data: data}))

	// 交织传输有序，不经过预缓冲
	require.Eventually(t, func() bool { return sink.count() == 3 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		s.lock.Lock()
		defer s.lock.Unlock()
		return s.tracks[1].Clock.Synced()
	}, time.Second, 5*time.Millisecond)

	assert.NoError(t, demuxer.Close())
	assert.NoError(t, demuxer.Close())
}

func TestInterleavedPacket(t *testing.T) {
	config := []int{0, 1, 2, 3}
	p := &InterleavedPacket{Channel: ChannelAudio, Data: rtpBytes(t, 1, 160, 0x01, 0x02)}

	var buf bytes.Buffer
	require.NoError(t, p.Write(&buf, config))
	assert.Equal(t, p.Size(), buf.Len())
	assert.Equal(t, byte('$'), buf.Bytes()[0])

	got, err := ReadPacket(bufio.NewReader(&buf), config)
	require.NoError(t, err)
	assert.Equal(t, p.Channel, got.Channel)
	assert.Equal(t, p.Data, got.Data)

	_, err = ReadPacket(bufio.NewReader(bytes.NewReader([]byte{'#', 0, 0, 0})), config)
	assert.Error(t, err)
	_, err = ReadPacket(bufio.NewReader(bytes.NewReader([]byte{'$', 9, 0, 1, 0})), config)
	assert.Error(t, err)
	_, err = ReadPacket(bufio.NewReader(bytes.NewReader([]byte{'$', 2, 0, 2, 0x80, 0})), config)
	assert.Equal(t, ErrShortPacket, err)
}
