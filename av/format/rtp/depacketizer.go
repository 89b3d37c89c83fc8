// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtp

import (
	"errors"
	"fmt"

	"github.com/cnotch/rtpengine/av/codec"
	"github.com/cnotch/xlog"
)

// 解包错误
var (
	// ErrTimestampRegression 同步后 RTP 时间戳回退，轨道时间轴已不可信
	ErrTimestampRegression = errors.New("rtp: timestamp regression after sync")
	// ErrDepacketizerFailed 解包器已因致命错误停止工作
	ErrDepacketizerFailed = errors.New("rtp: depacketizer stopped after fatal error")
)

// Transcoder 将 G.711 音频转码为 AAC，同一轨道的调用必须串行
type Transcoder interface {
	// Transcode 返回编码出的 AAC 帧及其毫秒时间戳，输入不足一帧时 ok 为 false
	Transcode(track uint64, c codec.CodecID, payload []byte, msTime int64) (aac []byte, ts int64, ok bool)
}

// payloadHandler 各编码的重组状态
type payloadHandler interface {
	depacketize(msTime int64, payload []byte, missed bool)
	flush()
}

// Option 解包器选项
type Option func(d *Depacketizer)

// WithLogger 指定日志
func WithLogger(logger *xlog.Logger) Option {
	return func(d *Depacketizer) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithClock 指定毫秒时钟，默认使用 BootMS
func WithClock(clock func() int64) Option {
	return func(d *Depacketizer) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithFatalHandler 指定致命错误回调，只会被调用一次
func WithFatalHandler(onFatal func(track uint64, err error)) Option {
	return func(d *Depacketizer) { d.onFatal = onFatal }
}

// WithTranscoder 启用 G.711 到 AAC 的转码，转码结果写入 outTrack
func WithTranscoder(t Transcoder, outTrack uint64) Option {
	return func(d *Depacketizer) {
		d.transcoder = t
		d.outTrack = outTrack
	}
}

// Depacketizer 将单个轨道排好序的 RTP 包还原为访问单元。
// 非并发安全，每个轨道一个实例。
type Depacketizer struct {
	props codec.TrackProperties
	fw    codec.FrameWriter
	iw    codec.InitWriter

	logger     *xlog.Logger
	clock      func() int64
	onFatal    func(track uint64, err error)
	transcoder Transcoder
	outTrack   uint64

	started   bool
	milliSync int64
	firstTime uint32
	prevTime  uint32
	elapsed   int64 // 自 firstTime 起经过的 RTP 时钟数，跨越回绕
	seqKnown  bool
	lastSeq   uint16
	failed    bool
	packCount uint64

	handler payloadHandler
}

// NewDepacketizer 根据轨道属性创建解包器，编码在创建时确定
func NewDepacketizer(props codec.TrackProperties, fw codec.FrameWriter, iw codec.InitWriter, opts ...Option) *Depacketizer {
	if props.Multiplier <= 0 {
		props.Multiplier = props.Codec.DefaultMultiplier(props.ClockRate)
	}
	if t := props.Codec.MediaType(); t != codec.MediaTypeUnknown {
		props.Type = t
	}

	d := &Depacketizer{
		props:  props,
		fw:     fw,
		iw:     iw,
		logger: xlog.L(),
		clock:  BootMS,
	}
	for _, opt := range opts {
		opt(d)
	}

	switch props.Codec {
	case codec.CodecH264:
		d.handler = newH264Depacketizer(d)
	case codec.CodecHEVC:
		d.handler = newHEVCDepacketizer(d)
	case codec.CodecVP8, codec.CodecVP9:
		d.handler = &vp8Depacketizer{d: d}
	case codec.CodecAAC:
		d.handler = newAACDepacketizer(d)
	case codec.CodecMPEG2:
		d.handler = &mpesDepacketizer{d: d, video: true}
	case codec.CodecMP2, codec.CodecMP3:
		d.handler = &mpesDepacketizer{d: d}
	case codec.CodecALAW, codec.CodecULAW, codec.CodecPCM, codec.CodecOpus:
		d.handler = &rawDepacketizer{d: d}
	}
	return d
}

// Properties 轨道属性
func (d *Depacketizer) Properties() codec.TrackProperties { return d.props }

// Failed 是否已因致命错误停止
func (d *Depacketizer) Failed() bool { return d.failed }

// FrameCount 已输出的视频帧数
func (d *Depacketizer) FrameCount() uint64 { return d.packCount }

// AddRTP 处理一个排好序的 RTP 包
func (d *Depacketizer) AddRTP(p *Packet) error {
	if d.failed {
		return ErrDepacketizerFailed
	}

	if IsRTCPPayloadType(p.PayloadType()) {
		d.logger.Infof("rtp: RTCP packet, ignoring for decoding")
		return nil
	}
	if d.handler == nil {
		if d.logger.LevelEnabled(xlog.DebugLevel) {
			d.logger.Debugf("rtp: unknown codec, ignoring RTP packet")
		}
		return nil
	}

	ts := p.Timestamp()
	if !d.started && ts == 0 {
		return nil
	}

	if d.started {
		delta := int32(ts - d.prevTime)
		if delta < 0 {
			return d.fatal(fmt.Errorf("%w: %d < %d", ErrTimestampRegression, ts, d.prevTime))
		}
		d.elapsed += int64(delta)
	} else {
		d.started = true
		d.milliSync = d.clock()
		d.firstTime = ts
		d.logger.Infof("rtp: track %d (%s) synced at %dms, first timestamp %d",
			d.props.ID, d.props.Codec, d.milliSync, ts)
	}
	d.prevTime = ts

	msTime := int64(float64(d.elapsed+1)/d.props.Multiplier) + d.milliSync

	seq := p.Sequence()
	missed := d.seqKnown && seq != d.lastSeq+1
	d.seqKnown = true
	d.lastSeq = seq

	if d.logger.LevelEnabled(xlog.DebugLevel) {
		d.logger.Debugf("rtp: track %d packet #%d time %d -> %d", d.props.ID, seq, ts, msTime)
	}
	d.handler.depacketize(msTime, p.Payload(), missed)
	return nil
}

// Flush 输出尚在缓冲中的访问单元，轨道关闭时调用
func (d *Depacketizer) Flush() {
	if d.handler != nil && !d.failed {
		d.handler.flush()
	}
}

func (d *Depacketizer) fatal(err error) error {
	d.failed = true
	d.logger.Errorf("rtp: track %d (%s) received unordered timestamp, stopping: %v",
		d.props.ID, d.props.Codec, err)
	if d.onFatal != nil {
		d.onFatal(d.props.ID, err)
	}
	return err
}

func (d *Depacketizer) writeFrame(ts int64, payload []byte, keyframe bool) {
	d.writeTrackFrame(d.props.ID, d.props.Codec, ts, payload, keyframe)
}

func (d *Depacketizer) writeTrackFrame(track uint64, c codec.CodecID, ts int64, payload []byte, keyframe bool) {
	if d.fw == nil {
		return
	}
	frame := &codec.Frame{
		MediaType: c.MediaType(),
		TrackID:   track,
		Codec:     c,
		Timestamp: ts,
		Keyframe:  keyframe,
		Payload:   payload,
	}
	if err := d.fw.WriteFrame(frame); err != nil {
		d.logger.Errorf("rtp: write frame of track %d failed: %v", track, err)
	}
}

func (d *Depacketizer) writeInit(init []byte) {
	d.props.Init = init
	if d.iw == nil {
		return
	}
	if err := d.iw.WriteInit(d.props.ID, init); err != nil {
		d.logger.Errorf("rtp: write init data of track %d failed: %v", d.props.ID, err)
	}
}
