// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/cnotch/rtpengine/av/codec"
	"github.com/cnotch/rtpengine/av/format/rtp"
	"github.com/cnotch/rtpengine/av/format/sdp"
	"github.com/cnotch/rtpengine/config"
	"github.com/cnotch/rtpengine/transcode"
	"github.com/cnotch/scheduler"
	"github.com/cnotch/xlog"
	"github.com/emitter-io/address"
	"github.com/kelindar/tcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Option 服务选项
type Option func(s *Service)

// WithEncoderFactory 提供 AAC 编码器，配置了输出轨道时启用 G.711 转码
func WithEncoderFactory(factory transcode.EncoderFactory) Option {
	return func(s *Service) {
		s.factory = factory
	}
}

// Service 网络服务对象(服务的入口)
type Service struct {
	context  context.Context
	cancel   context.CancelFunc
	logger   *xlog.Logger
	http     *http.Server
	ingest   *tcp.Server
	session  *rtp.Session
	tracks   []sdp.Track
	channels map[int]uint64 // 交织通道类型 -> 轨道
	factory  transcode.EncoderFactory
	registry *transcode.Registry
	relay    *relay
	ssrc     uint32

	lock      sync.Mutex
	closed    bool
	listeners []io.Closer
	udp       map[uint64][]*udpIngest
	conns     map[*ingestConn]struct{}
	inits     map[uint64][]byte
}

// NewService 创建服务
func NewService(ctx context.Context, l *xlog.Logger, opts ...Option) (s *Service, err error) {
	ctx, cancel := context.WithCancel(ctx)
	s = &Service{
		context: ctx,
		cancel:  cancel,
		logger:  l,
		http:    new(http.Server),
		ingest:  new(tcp.Server),
		ssrc:    rand.Uint32(),
		udp:     make(map[uint64][]*udpIngest),
		conns:   make(map[*ingestConn]struct{}),
		inits:   make(map[uint64][]byte),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.tracks, err = loadTracks(config.SDPFile()); err != nil {
		cancel()
		return nil, err
	}
	s.channels = interleavedChannels(s.tracks)

	var sessionOpts []rtp.Option
	if aac := config.AACTrack(); aac != 0 {
		if s.factory != nil {
			s.registry = transcode.NewRegistry(s.factory, l)
			sessionOpts = append(sessionOpts, rtp.WithTranscoder(s.registry, aac))
		} else {
			s.logger.Warnf("no AAC encoder available, transcoding to track %d disabled", aac)
		}
	}
	s.session = rtp.NewSession(s, s, l, sessionOpts...)
	s.session.OnFatal(s.onTrackFatal)
	for _, t := range s.tracks {
		s.session.SetProperties(t.Props)
	}

	if dest := config.RelayAddr(); dest != "" {
		rows, columns := config.FEC()
		track := s.findTrack(config.RelayTrack())
		if s.relay, err = newRelay(dest, track, rows, columns, l); err != nil {
			cancel()
			return nil, err
		}
	}

	// 设置 http 的Handler
	mux := http.NewServeMux()
	if config.Profile() {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	if config.Metrics() {
		mux.Handle("/metrics", promhttp.Handler())
	}
	s.initApis(mux)
	s.http.Handler = mux

	// 设置交织传输的 AcceptHandler
	s.ingest.OnAccept = s.onAcceptConn

	// 定时发送 RTCP 报告
	scheduler.PeriodFunc(config.RTCPInterval(), config.RTCPInterval(), s.sendReports,
		"The task of sending RTCP receiver and sender reports(1second)")

	s.logger.Infof("service configured, %d tracks", len(s.tracks))
	return s, nil
}

// loadTracks 从 SDP 文件加载轨道，未配置时使用默认轨道
func loadTracks(path string) ([]sdp.Track, error) {
	if path == "" {
		return defaultTracks(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tracks, err := sdp.ParseTrackList(string(raw))
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("service: sdp file %s has no supported track", path)
	}
	return tracks, nil
}

// defaultTracks 轨道 1 为 H.264 视频，轨道 2 为 PCMA 音频
func defaultTracks() []sdp.Track {
	return []sdp.Track{
		{Props: codec.NewTrackProperties(1, codec.CodecH264, 90000, nil), PayloadType: 96},
		{Props: codec.NewTrackProperties(2, codec.CodecALAW, 8000, nil), PayloadType: 8},
	}
}

// interleavedChannels 第一个视频轨道使用视频通道，第一个音频轨道使用音频通道
func interleavedChannels(tracks []sdp.Track) map[int]uint64 {
	channels := make(map[int]uint64, 2)
	for _, t := range tracks {
		var channel int
		switch t.Props.Type {
		case codec.MediaTypeVideo:
			channel = rtp.ChannelVideo
		case codec.MediaTypeAudio:
			channel = rtp.ChannelAudio
		default:
			continue
		}
		if _, ok := channels[channel]; !ok {
			channels[channel] = t.Props.ID
		}
	}
	return channels
}

func (s *Service) findTrack(id uint64) sdp.Track {
	for _, t := range s.tracks {
		if t.Props.ID == id {
			return t
		}
	}
	return sdp.Track{Props: codec.TrackProperties{ID: id}}
}

// WriteFrame 实现 codec.FrameWriter，会话锁已被持有
func (s *Service) WriteFrame(frame *codec.Frame) error {
	if s.relay != nil && s.relay.track == frame.TrackID {
		return s.relay.writeFrame(frame)
	}
	return nil
}

// WriteInit 实现 codec.InitWriter，会话锁已被持有
func (s *Service) WriteInit(trackID uint64, init []byte) error {
	s.lock.Lock()
	s.inits[trackID] = append([]byte(nil), init...)
	s.lock.Unlock()
	s.logger.Infof("track %d decoder configuration changed, %d bytes", trackID, len(init))
	return nil
}

// onTrackFatal 时间戳回退等致命错误，异步拆除轨道
func (s *Service) onTrackFatal(track uint64, err error) {
	s.logger.Errorf("track %d stopped: %v", track, err)
	go s.closeTrack(track)
}

// closeTrack 删除轨道并关闭其 UDP 接入
func (s *Service) closeTrack(track uint64) bool {
	_, ok := s.session.Track(track)
	s.session.RemoveTrack(track)
	if s.registry != nil {
		s.registry.Remove(track)
	}

	s.lock.Lock()
	ingests := s.udp[track]
	delete(s.udp, track)
	delete(s.inits, track)
	s.lock.Unlock()

	for _, u := range ingests {
		u.Close()
	}
	return ok
}

// sendReports 向接入端发送 RR，向转发目标发送 SR
func (s *Service) sendReports() {
	s.session.ReceiverReports(s.ssrc, func(track uint64, report []byte) {
		s.lock.Lock()
		defer s.lock.Unlock()
		for _, u := range s.udp[track] {
			u.sendReport(report)
		}
		for c := range s.conns {
			c.sendReport(track, report)
		}
	})

	if s.relay != nil {
		s.relay.sendSenderReports()
	}
}

// Listen starts the service.
func (s *Service) Listen() (err error) {
	defer s.Close()
	s.hookSignals()

	// 交织传输接入
	addr, err := address.Parse(config.Addr(), 8554)
	if err != nil {
		s.logger.Panic(err.Error())
	}
	s.listen(addr)

	// 管理接口
	httpAddr, err := address.Parse(config.HTTPAddr(), 8080)
	if err != nil {
		s.logger.Panic(err.Error())
	}
	s.listenHTTP(httpAddr)

	// UDP 接入
	if err = s.listenUDP(); err != nil {
		return err
	}

	// 裸 MPEG-TS 转发
	if input := config.TSInput(); input != "" {
		if s.relay == nil {
			s.logger.Warnf("ts input %s ignored, no relay address", input)
		} else if err = s.listenTS(input); err != nil {
			return err
		}
	}

	s.logger.Infof("service started(%s).", config.Version)
	// Block
	<-s.context.Done()
	return nil
}

// listen 启动交织传输的 TCP 接入
func (s *Service) listen(addr *net.TCPAddr) {
	s.logger.Infof("starting the interleaved listener, addr = %s.", addr.String())

	l, err := net.Listen("tcp", addr.String())
	if err != nil {
		s.logger.Panic(err.Error())
	}
	s.addListener(l)

	go func() {
		if err := s.ingest.Serve(l); err != nil && s.context.Err() == nil {
			s.logger.Warn(err.Error())
		}
	}()
}

func (s *Service) listenHTTP(addr *net.TCPAddr) {
	s.logger.Infof("starting the http listener, addr = %s.", addr.String())

	l, err := net.Listen("tcp", addr.String())
	if err != nil {
		s.logger.Panic(err.Error())
	}
	s.addListener(l)

	go func() {
		if err := s.http.Serve(l); err != nil && s.context.Err() == nil {
			s.logger.Warn(err.Error())
		}
	}()
}

// listenUDP 为每个配置的端口启动 RTP/RTCP 接入，
// 未配置时使用 SDP 中媒体描述的端口
func (s *Service) listenUDP() error {
	udpTracks, err := config.UDPTracks()
	if err != nil {
		return err
	}
	if len(udpTracks) == 0 {
		for _, t := range s.tracks {
			if t.Port > 0 {
				udpTracks = append(udpTracks, config.UDPTrack{Port: t.Port, Track: t.Props.ID})
			}
		}
	}

	for _, ut := range udpTracks {
		u, err := listenUDPTrack(s.session, ut.Port, ut.Track, s.logger)
		if err != nil {
			return err
		}
		s.addUDP(u)
		s.logger.Infof("starting the udp listener of track %d, port = %d.", ut.Track, ut.Port)
	}
	return nil
}

func (s *Service) addUDP(u *udpIngest) {
	s.lock.Lock()
	s.udp[u.track] = append(s.udp[u.track], u)
	s.lock.Unlock()
	go u.serve()
	go u.serveRTCP()
}

func (s *Service) listenTS(input string) error {
	conn, err := listenTSInput(input)
	if err != nil {
		return err
	}
	s.addListener(conn)
	s.logger.Infof("starting the ts listener, addr = %s.", conn.LocalAddr().String())
	go s.relay.serveTS(conn)
	return nil
}

func (s *Service) addListener(l io.Closer) {
	s.lock.Lock()
	s.listeners = append(s.listeners, l)
	s.lock.Unlock()
}

// Close closes gracefully the service.
func (s *Service) Close() {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return
	}
	s.closed = true
	s.lock.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	// 停止计划任务
	jobs := scheduler.Jobs()
	for _, job := range jobs {
		job.Cancel()
	}

	s.lock.Lock()
	for _, l := range s.listeners {
		l.Close()
	}
	udp := s.udp
	conns := s.conns
	s.udp = make(map[uint64][]*udpIngest)
	s.conns = make(map[*ingestConn]struct{})
	s.lock.Unlock()

	for _, ingests := range udp {
		for _, u := range ingests {
			u.Close()
		}
	}
	for c := range conns {
		c.Close()
	}

	// 输出缓冲的数据
	s.session.Close()
	if s.relay != nil {
		s.relay.Close()
	}
}

// OnSignal starts the signal processing and makes su
func (s *Service) hookSignals() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range c {
			s.onSignal(sig)
		}
	}()
}

// OnSignal will be called when a OS-level signal is received.
func (s *Service) onSignal(sig os.Signal) {
	switch sig {
	case syscall.SIGTERM:
		fallthrough
	case syscall.SIGINT:
		s.logger.Warn(fmt.Sprintf("received signal %s, exiting...", sig.String()))
		s.Close()
		os.Exit(0)
	}
}
