// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtp

import (
	"runtime/debug"
	"sync/atomic"

	"github.com/cnotch/queue"
	"github.com/cnotch/xlog"
)

// Demuxer 异步处理 TCP 交织传输的包，一个协程驱动会话中的所有轨道
type Demuxer struct {
	closed    int32
	recvQueue *queue.SyncQueue
	session   *Session
	tracks    map[byte]uint64 // 通道类型 -> 轨道
	done      chan struct{}
	logger    *xlog.Logger
}

// NewDemuxer 创建交织包解封装处理器，tracks 给出通道类型对应的轨道。
// 交织传输不会乱序，对应轨道的排序器跳过预缓冲。
func NewDemuxer(session *Session, tracks map[int]uint64, logger *xlog.Logger) *Demuxer {
	if logger == nil {
		logger = xlog.L()
	}
	demuxer := &Demuxer{
		recvQueue: queue.NewSyncQueue(),
		session:   session,
		tracks:    make(map[byte]uint64, len(tracks)*2),
		done:      make(chan struct{}),
		logger:    logger,
	}
	for channel, track := range tracks {
		media := channel &^ 1 // 控制通道紧跟在媒体通道之后
		demuxer.tracks[byte(media)] = track
		demuxer.tracks[byte(media+1)] = track
		if err := session.SetOrdered(track, true); err != nil {
			logger.Warnf("rtp demuxer: %s channel has no track %d", ChannelName(media), track)
		}
	}

	go demuxer.process()
	return demuxer
}

func (demuxer *Demuxer) process() {
	defer func() {
		defer func() { // 避免 handler 再 panic
			recover()
		}()

		if r := recover(); r != nil {
			demuxer.logger.Errorf("rtp demuxer routine panic; r = %v \n %s", r, debug.Stack())
		}

		// 尽早通知GC，回收内存
		demuxer.recvQueue.Reset()
		close(demuxer.done)
	}()

	for atomic.LoadInt32(&demuxer.closed) == 0 {
		p := demuxer.recvQueue.Pop()
		if p == nil {
			if atomic.LoadInt32(&demuxer.closed) == 0 {
				demuxer.logger.Warn("rtp demuxer: receive nil packet")
			}
			continue
		}

		packet := p.(*InterleavedPacket)
		track, ok := demuxer.tracks[packet.Channel]
		if !ok {
			continue
		}

		var err error
		if IsControlChannel(int(packet.Channel)) {
			err = demuxer.session.AddRTCP(track, packet.Data)
		} else {
			err = demuxer.session.AddPacket(track, packet.Data)
		}
		if err != nil {
			demuxer.logger.Errorf("rtp demuxer: %s packet of track %d: %v",
				ChannelName(int(packet.Channel)), track, err)
		}
	}
}

// Close 停止处理，已入队未处理的包被丢弃
func (demuxer *Demuxer) Close() error {
	if !atomic.CompareAndSwapInt32(&demuxer.closed, 0, 1) {
		return nil
	}

	demuxer.recvQueue.Signal()
	<-demuxer.done
	return nil
}

// WritePacket 入队一个交织包
func (demuxer *Demuxer) WritePacket(packet *InterleavedPacket) error {
	demuxer.recvQueue.Push(packet)
	return nil
}
