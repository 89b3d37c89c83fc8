// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stats

import "sync/atomic"

// TrackSample 轨道统计采样
type TrackSample struct {
	Received   int64 `json:"received"`   // 收到的 RTP 包
	Malformed  int64 `json:"malformed"`  // 无法解析而丢弃的包
	Delivered  int64 `json:"delivered"`  // 排序后交给解包器的包
	Lost       int64 `json:"lost"`       // 超时认定丢失的包
	Late       int64 `json:"late"`       // 迟到而丢弃的包
	Frames     int64 `json:"frames"`     // 输出的访问单元
	FECPackets int64 `json:"fecpackets"` // 发出的 FEC 包
	FECBytes   int64 `json:"fecbytes"`   // 发出的 FEC 字节
}

// Track 轨道计数，可并发读取
type Track struct {
	sample TrackSample
}

// NewTrack 创建轨道计数
func NewTrack() *Track { return &Track{} }

// AddReceived 收到一个包
func (t *Track) AddReceived() { atomic.AddInt64(&t.sample.Received, 1) }

// AddMalformed 丢弃一个无效包
func (t *Track) AddMalformed() { atomic.AddInt64(&t.sample.Malformed, 1) }

// AddDelivered 排序器输出一个包
func (t *Track) AddDelivered() { atomic.AddInt64(&t.sample.Delivered, 1) }

// SetLost 更新丢包总数
func (t *Track) SetLost(lost int64) { atomic.StoreInt64(&t.sample.Lost, lost) }

// SetLate 更新迟到丢弃总数
func (t *Track) SetLate(late int64) { atomic.StoreInt64(&t.sample.Late, late) }

// AddFrame 输出一个访问单元
func (t *Track) AddFrame() { atomic.AddInt64(&t.sample.Frames, 1) }

// AddFEC 发出 FEC 包
func (t *Track) AddFEC(packets, bytes int64) {
	atomic.AddInt64(&t.sample.FECPackets, packets)
	atomic.AddInt64(&t.sample.FECBytes, bytes)
}

// GetSample 获取当前时点采样
func (t *Track) GetSample() TrackSample {
	return TrackSample{
		Received:   atomic.LoadInt64(&t.sample.Received),
		Malformed:  atomic.LoadInt64(&t.sample.Malformed),
		Delivered:  atomic.LoadInt64(&t.sample.Delivered),
		Lost:       atomic.LoadInt64(&t.sample.Lost),
		Late:       atomic.LoadInt64(&t.sample.Late),
		Frames:     atomic.LoadInt64(&t.sample.Frames),
		FECPackets: atomic.LoadInt64(&t.sample.FECPackets),
		FECBytes:   atomic.LoadInt64(&t.sample.FECBytes),
	}
}
