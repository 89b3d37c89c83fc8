// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rtpengine"

// Prometheus 指标
var (
	PacketsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rtp",
		Name:      "packets_received_total",
		Help:      "Total number of RTP packets received per track",
	}, []string{"track"})

	PacketsLost = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rtp",
		Name:      "packets_lost_total",
		Help:      "Total number of RTP packets given up by the sorter per track",
	}, []string{"track"})

	PacketsMalformed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rtp",
		Name:      "packets_malformed_total",
		Help:      "Total number of malformed packets dropped by source",
	}, []string{"source"})

	FramesEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "depacketizer",
		Name:      "frames_total",
		Help:      "Total number of access units emitted by codec",
	}, []string{"codec"})

	FECPacketsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fec",
		Name:      "packets_sent_total",
		Help:      "Total number of FEC packets sent by direction",
	}, []string{"direction"})

	RTCPReportsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rtcp",
		Name:      "reports_sent_total",
		Help:      "Total number of RTCP reports sent by type",
	}, []string{"type"})

	FatalTracks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "depacketizer",
		Name:      "fatal_total",
		Help:      "Total number of tracks stopped by a timestamp regression",
	})
)
