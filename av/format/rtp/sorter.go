// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtp

import (
	"sort"

	"github.com/cnotch/xlog"
)

// preBufferSize 开始输出前需要缓冲的包数
const preBufferSize = 5

// PacketHandler 接收排序后的包，包只在回调期间有效
type PacketHandler func(track uint64, p *Packet)

// SorterStats 排序器统计
type SorterStats struct {
	Expected    uint16 `json:"expected"`
	LostTotal   uint32 `json:"lost_total"`
	PackTotal   uint32 `json:"pack_total"`
	LostCurrent uint32 `json:"lost_current"`
	PackCurrent uint32 `json:"pack_current"`
	Late        uint32 `json:"late"` // 放弃或已输出之后才到达而丢弃的包
	Buffered    int    `json:"buffered"`
	Wanted      int    `json:"wanted"`
}

// Sorter 单个轨道的 RTP 包排序器。
//
// 按序号顺序回调，早到的包先缓冲；等待 ReorderWait 个包后把缺失序号登记为期望重传，
// 等待 DropTimeout 个包后认定丢失。非并发安全，由轨道所属的会话串行调用。
type Sorter struct {
	track     uint64
	callback  PacketHandler
	rtpSeq    uint16 // 下一个期望输出的序号
	rtpWSeq   uint16 // 下一个待检查是否缺失的序号
	buffer    map[uint16]*Packet
	wanted    map[uint16]struct{}
	first     bool
	preBuffer bool

	lostTotal   uint32
	lostCurrent uint32
	packTotal   uint32
	packCurrent uint32
	late        uint32

	logger *xlog.Logger
}

// NewSorter 创建排序器
func NewSorter(track uint64, cb PacketHandler) *Sorter {
	return &Sorter{
		track:     track,
		callback:  cb,
		buffer:    make(map[uint16]*Packet),
		wanted:    make(map[uint16]struct{}),
		first:     true,
		preBuffer: true,
		logger:    xlog.L(),
	}
}

// SetCallback 替换输出回调及轨道号
func (s *Sorter) SetCallback(track uint64, cb PacketHandler) {
	s.track = track
	s.callback = cb
}

// SetLogger 设置日志
func (s *Sorter) SetLogger(logger *xlog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetExpected 跳过预缓冲，直接从 seq 开始按序输出。
// 用于 TCP 交织传输这类不会乱序的场景。
func (s *Sorter) SetExpected(seq uint16) {
	s.first = false
	s.preBuffer = false
	s.rtpSeq = seq
	s.rtpWSeq = seq
}

// AddBytes 包装 data 后加入排序，data 在调用返回后可复用
func (s *Sorter) AddBytes(data []byte) error {
	p := WrapPacket(data)
	if err := p.Validate(); err != nil {
		return err
	}
	s.AddPacket(p)
	return nil
}

// AddPacket 加入一个包，能按序输出时立即回调
func (s *Sorter) AddPacket(p *Packet) {
	seq := p.Sequence()
	if s.first {
		s.rtpWSeq = seq
		s.rtpSeq = seq - preBufferSize
		s.first = false
	}

	if !s.preBuffer {
		// 太早的包：放弃当前等待的包，越过的序号中已缓冲的照常输出
		for int16(s.rtpSeq-seq) < -int16(DropTimeout) {
			delete(s.wanted, s.rtpSeq)
			if p, ok := s.buffer[s.rtpSeq]; ok {
				delete(s.buffer, s.rtpSeq)
				s.deliver(p)
				continue
			}
			if s.logger.LevelEnabled(xlog.DebugLevel) {
				s.logger.Debugf("rtp: giving up on track %d packet %d", s.track, s.rtpSeq)
			}
			s.rtpSeq++
			s.lostTotal++
			s.lostCurrent++
			s.packTotal++
			s.packCurrent++
		}
	}
	s.updateWanted(seq)
	s.flush()

	switch diff := int16(s.rtpSeq - seq); {
	case diff < 0: // 稍早，缓冲
		if _, ok := s.buffer[seq]; !ok {
			s.buffer[seq] = p.Clone()
		}
		delete(s.wanted, seq)
		if s.preBuffer && len(s.buffer) >= preBufferSize {
			s.preBuffer = false
			s.rtpSeq = s.lowestBuffered()
			s.rtpWSeq = s.rtpSeq
			s.flush()
		}
	case diff > 0: // 迟到，丢弃
		s.late++
		if s.logger.LevelEnabled(xlog.DebugLevel) {
			s.logger.Debugf("rtp: dropped late packet %d on track %d (%d packets behind)", seq, s.track, diff)
		}
	default:
		delete(s.wanted, seq)
		s.deliver(p)
		s.flush()
	}

	if int16(s.rtpWSeq-s.rtpSeq) < 0 {
		s.rtpWSeq = s.rtpSeq
	}
}

func (s *Sorter) updateWanted(seq uint16) {
	if int16(s.rtpWSeq-s.rtpSeq) < 0 {
		s.rtpWSeq = s.rtpSeq
	}
	for int16(s.rtpWSeq-seq) < -int16(ReorderWait) {
		if _, ok := s.buffer[s.rtpWSeq]; !ok {
			s.wanted[s.rtpWSeq] = struct{}{}
		}
		s.rtpWSeq++
	}
}

// flush 输出从 rtpSeq 开始连续缓冲的包
func (s *Sorter) flush() {
	from := s.rtpSeq
	for {
		p, ok := s.buffer[s.rtpSeq]
		if !ok {
			break
		}
		delete(s.buffer, s.rtpSeq)
		s.deliver(p)
	}
	if from != s.rtpSeq && s.logger.LevelEnabled(xlog.DebugLevel) {
		s.logger.Debugf("rtp: sent packets %d-%d, now %d in buffer", from, s.rtpSeq, len(s.buffer))
	}
}

func (s *Sorter) deliver(p *Packet) {
	if s.callback != nil {
		s.callback(s.track, p)
	}
	s.rtpSeq++
	s.packTotal++
	s.packCurrent++
}

// lowestBuffered 考虑回绕的最小缓冲序号
func (s *Sorter) lowestBuffered() uint16 {
	first := true
	var lowest uint16
	for seq := range s.buffer {
		if first || int16(seq-lowest) < 0 {
			lowest = seq
			first = false
		}
	}
	return lowest
}

// Wanted 等待超时仍未到达、期望对端重传的序号
func (s *Sorter) Wanted() []uint16 {
	seqs := make([]uint16, 0, len(s.wanted))
	for seq := range s.wanted {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool {
		return int16(seqs[i]-seqs[j]) < 0
	})
	return seqs
}

// Stats 当前统计
func (s *Sorter) Stats() SorterStats {
	return SorterStats{
		Expected:    s.rtpSeq,
		LostTotal:   s.lostTotal,
		PackTotal:   s.packTotal,
		LostCurrent: s.lostCurrent,
		PackCurrent: s.packCurrent,
		Late:        s.late,
		Buffered:    len(s.buffer),
		Wanted:      len(s.wanted),
	}
}
