// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stats

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// 全局连接统计
var (
	IngestConns = NewConns("ingest", "TCP interleaved ingest connections")
	RelayConns  = NewConns("relay", "relay destinations")
)

// ConnsSample 连接计数采样
type ConnsSample struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
}

// Conns 连接统计
type Conns interface {
	Add() int64
	Release() int64
	GetSample() ConnsSample
}

type conns struct {
	total  int64
	active int64
}

// NewConns 新建连接计数，并以 rtpengine_<name>_conns 导出到 Prometheus
func NewConns(name, help string) Conns {
	c := &conns{}
	prometheus.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: name,
			Name:      "conns_total",
			Help:      "Total number of " + help,
		}, func() float64 { return float64(atomic.LoadInt64(&c.total)) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: name,
			Name:      "conns_active",
			Help:      "Number of active " + help,
		}, func() float64 { return float64(atomic.LoadInt64(&c.active)) }),
	)
	return c
}

func (c *conns) Add() int64 {
	atomic.AddInt64(&c.total, 1)
	return atomic.AddInt64(&c.active, 1)
}

func (c *conns) Release() int64 {
	return atomic.AddInt64(&c.active, -1)
}

func (c *conns) GetSample() ConnsSample {
	return ConnsSample{
		Total:  atomic.LoadInt64(&c.total),
		Active: atomic.LoadInt64(&c.active),
	}
}
