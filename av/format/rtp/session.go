// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtp

import (
	"errors"
	"sort"
	"strconv"
	"sync"

	"github.com/cnotch/rtpengine/av/codec"
	"github.com/cnotch/rtpengine/stats"
	"github.com/cnotch/xlog"
)

// ErrUnknownTrack 轨道未配置
var ErrUnknownTrack = errors.New("rtp: unknown track")

// Track 一个接收轨道：排序器、解包器及统计
type Track struct {
	Props        codec.TrackProperties
	Sorter       *Sorter
	Depacketizer *Depacketizer
	Clock        SyncClock
	Stats        *stats.Track
	Flow         stats.Flow

	ordered   bool // 传输层保证有序（TCP 交织）
	started   bool
	peerSSRC  uint32
	trackName string
}

// TrackInfo 轨道快照
type TrackInfo struct {
	Props    codec.TrackProperties `json:"props"`
	Sorter   SorterStats           `json:"sorter"`
	Stats    stats.TrackSample     `json:"stats"`
	Flow     stats.FlowSample      `json:"flow"`
	PeerSSRC uint32                `json:"ssrc"`
	Failed   bool                  `json:"failed"`
}

// Session 一组轨道的注册表，串行处理所有轨道的包
type Session struct {
	lock    sync.Mutex
	tracks  map[uint64]*Track
	fw      codec.FrameWriter
	iw      codec.InitWriter
	opts    []Option
	onFatal func(track uint64, err error)
	flow    stats.Flow
	logger  *xlog.Logger
}

// NewSession 创建会话，opts 应用于每个轨道的解包器
func NewSession(fw codec.FrameWriter, iw codec.InitWriter, logger *xlog.Logger, opts ...Option) *Session {
	if logger == nil {
		logger = xlog.L()
	}
	return &Session{
		tracks: make(map[uint64]*Track),
		fw:     fw,
		iw:     iw,
		opts:   opts,
		flow:   stats.NewChildFlow(stats.TotalFlow),
		logger: logger,
	}
}

// OnFatal 设置轨道致命错误回调，回调时会话锁已被持有
func (s *Session) OnFatal(fn func(track uint64, err error)) {
	s.lock.Lock()
	s.onFatal = fn
	s.lock.Unlock()
}

// SetProperties 配置（或重新配置）轨道，原有状态被丢弃
func (s *Session) SetProperties(props codec.TrackProperties) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if old, ok := s.tracks[props.ID]; ok {
		old.Depacketizer.Flush()
	}

	t := &Track{
		Props:     props,
		Stats:     stats.NewTrack(),
		Flow:      stats.NewChildFlow(s.flow),
		trackName: strconv.FormatUint(props.ID, 10),
	}
	logger := s.logger.With(xlog.Fields(
		xlog.F("track", props.ID),
		xlog.F("codec", props.Codec.String())))

	fw := codec.FrameWriterFunc(func(frame *codec.Frame) error {
		t.Stats.AddFrame()
		t.Flow.AddOut(int64(len(frame.Payload)))
		stats.FramesEmitted.WithLabelValues(frame.Codec.String()).Inc()
		if s.fw == nil {
			return nil
		}
		return s.fw.WriteFrame(frame)
	})
	opts := append([]Option{
		WithLogger(logger),
		WithFatalHandler(s.fatal),
	}, s.opts...)
	t.Depacketizer = NewDepacketizer(props, fw, s.iw, opts...)
	t.Props = t.Depacketizer.Properties()
	t.Clock.Init(int(t.Props.Multiplier * 1000))

	t.Sorter = NewSorter(props.ID, func(track uint64, p *Packet) {
		// 失败后排序器仍可能输出缓冲的包，不再计数
		if t.Depacketizer.Failed() {
			return
		}
		t.Stats.AddDelivered()
		if err := t.Depacketizer.AddRTP(p); err != nil && logger.LevelEnabled(xlog.DebugLevel) {
			logger.Debugf("rtp: packet %d not depacketized: %v", p.Sequence(), err)
		}
	})
	t.Sorter.SetLogger(logger)

	s.tracks[props.ID] = t
	logger.Infof("rtp: track configured, multiplier %.2f", t.Props.Multiplier)
}

func (s *Session) fatal(track uint64, err error) {
	stats.FatalTracks.Inc()
	if s.onFatal != nil {
		s.onFatal(track, err)
	}
}

// SetOrdered 声明轨道的传输层保证有序，跳过排序器的预缓冲
func (s *Session) SetOrdered(track uint64, ordered bool) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	t, ok := s.tracks[track]
	if !ok {
		return ErrUnknownTrack
	}
	t.ordered = ordered
	return nil
}

// AddPacket 加入轨道收到的一个 RTP 包，data 在返回后可复用
func (s *Session) AddPacket(track uint64, data []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	t, ok := s.tracks[track]
	if !ok {
		return ErrUnknownTrack
	}
	t.Stats.AddReceived()
	t.Flow.AddIn(int64(len(data)))
	stats.PacketsReceived.WithLabelValues(t.trackName).Inc()

	p := WrapPacket(data)
	if err := p.Validate(); err != nil {
		t.Stats.AddMalformed()
		stats.PacketsMalformed.WithLabelValues("rtp").Inc()
		return err
	}
	if t.Depacketizer.Failed() {
		return ErrDepacketizerFailed
	}

	if !t.started {
		t.started = true
		t.peerSSRC = p.SSRC()
		if t.ordered {
			t.Sorter.SetExpected(p.Sequence())
		}
	}

	before := t.Sorter.Stats()
	t.Sorter.AddPacket(p)
	after := t.Sorter.Stats()
	if after.LostTotal != before.LostTotal {
		t.Stats.SetLost(int64(after.LostTotal))
		stats.PacketsLost.WithLabelValues(t.trackName).Add(float64(after.LostTotal - before.LostTotal))
	}
	if after.Late != before.Late {
		t.Stats.SetLate(int64(after.Late))
	}
	return nil
}

// AddRTCP 处理轨道收到的 RTCP 包，SR 用于建立同步时钟
func (s *Session) AddRTCP(track uint64, data []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	t, ok := s.tracks[track]
	if !ok {
		return ErrUnknownTrack
	}
	t.Flow.AddIn(int64(len(data)))
	if !t.Clock.Decode(data) {
		stats.PacketsMalformed.WithLabelValues("rtcp").Inc()
		return nil
	}
	if s.logger.LevelEnabled(xlog.DebugLevel) {
		s.logger.Debugf("rtp: track %d sender report, ssrc %d ntp %v",
			track, t.Clock.SSRC, t.Clock.LocalTime())
	}
	return nil
}

// ReceiverReports 为每个已收到数据的轨道生成 RTCP RR
func (s *Session) ReceiverReports(mySSRC uint32, fn func(track uint64, report []byte)) {
	s.lock.Lock()
	defer s.lock.Unlock()

	for id, t := range s.tracks {
		if !t.started {
			continue
		}
		report, err := t.Sorter.ReceiverReport(mySSRC, t.peerSSRC)
		if err != nil {
			s.logger.Errorf("rtp: track %d receiver report failed: %v", id, err)
			continue
		}
		stats.RTCPReportsSent.WithLabelValues("rr").Inc()
		fn(id, report)
	}
}

// RemoveTrack 输出缓冲的数据后删除轨道
func (s *Session) RemoveTrack(track uint64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if t, ok := s.tracks[track]; ok {
		t.Depacketizer.Flush()
		delete(s.tracks, track)
	}
}

// Close 输出所有轨道缓冲的数据
func (s *Session) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, t := range s.tracks {
		t.Depacketizer.Flush()
	}
	s.tracks = make(map[uint64]*Track)
}

func (t *Track) info() TrackInfo {
	return TrackInfo{
		Props:    t.Props,
		Sorter:   t.Sorter.Stats(),
		Stats:    t.Stats.GetSample(),
		Flow:     t.Flow.GetSample(),
		PeerSSRC: t.peerSSRC,
		Failed:   t.Depacketizer.Failed(),
	}
}

// Track 获取轨道快照
func (s *Session) Track(id uint64) (TrackInfo, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	t, ok := s.tracks[id]
	if !ok {
		return TrackInfo{}, false
	}
	return t.info(), true
}

// Tracks 按 ID 排序的所有轨道快照
func (s *Session) Tracks() []TrackInfo {
	s.lock.Lock()
	defer s.lock.Unlock()
	infos := make([]TrackInfo, 0, len(s.tracks))
	for _, t := range s.tracks {
		infos = append(infos, t.info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Props.ID < infos[j].Props.ID })
	return infos
}

// Flow 会话流量
func (s *Session) Flow() stats.FlowSample { return s.flow.GetSample() }
