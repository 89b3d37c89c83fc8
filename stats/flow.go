// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stats

import (
	"sync/atomic"
)

// TotalFlow 所有轨道的总流量
var TotalFlow = NewFlow()

// FlowSample 流统计采样
type FlowSample struct {
	InBytes    int64 `json:"inbytes"`
	OutBytes   int64 `json:"outbytes"`
	InPackets  int64 `json:"inpackets"`
	OutPackets int64 `json:"outpackets"`
}

// Flow 流统计接口，每次 Add 计为一个包
type Flow interface {
	AddIn(size int64)      // 增加输入
	AddOut(size int64)     // 增加输出
	GetSample() FlowSample // 获取当前时点采样
}

func (fs *FlowSample) clone() FlowSample {
	return FlowSample{
		InBytes:    atomic.LoadInt64(&fs.InBytes),
		OutBytes:   atomic.LoadInt64(&fs.OutBytes),
		InPackets:  atomic.LoadInt64(&fs.InPackets),
		OutPackets: atomic.LoadInt64(&fs.OutPackets),
	}
}

func (fs *FlowSample) addIn(size int64) {
	atomic.AddInt64(&fs.InBytes, size)
	atomic.AddInt64(&fs.InPackets, 1)
}

func (fs *FlowSample) addOut(size int64) {
	atomic.AddInt64(&fs.OutBytes, size)
	atomic.AddInt64(&fs.OutPackets, 1)
}

// Add 采样累加
func (fs *FlowSample) Add(f FlowSample) {
	fs.InBytes += f.InBytes
	fs.OutBytes += f.OutBytes
	fs.InPackets += f.InPackets
	fs.OutPackets += f.OutPackets
}

type flow struct {
	sample FlowSample
}

// NewFlow 创建流量统计
func NewFlow() Flow {
	return &flow{}
}

func (r *flow) AddIn(size int64)      { r.sample.addIn(size) }
func (r *flow) AddOut(size int64)     { r.sample.addOut(size) }
func (r *flow) GetSample() FlowSample { return r.sample.clone() }

type childFlow struct {
	parent Flow
	sample FlowSample
}

// NewChildFlow 创建子流量计数，它会把自己的计数Add到parent上
func NewChildFlow(parent Flow) Flow {
	return &childFlow{
		parent: parent,
	}
}

func (r *childFlow) AddIn(size int64) {
	r.sample.addIn(size)
	r.parent.AddIn(size)
}

func (r *childFlow) AddOut(size int64) {
	r.sample.addOut(size)
	r.parent.AddOut(size)
}

func (r *childFlow) GetSample() FlowSample {
	return r.sample.clone()
}
