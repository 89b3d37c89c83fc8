// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"flag"
)

// config 服务配置
type config struct {
	ListenAddr  string    `json:"listen"`             // TCP 交织传输接入地址
	HTTPAddr    string    `json:"http"`               // 管理接口地址
	SDP         string    `json:"sdp,omitempty"`      // 描述接入轨道的 SDP 文件
	UDP         string    `json:"udp,omitempty"`      // UDP 接入端口与轨道，如 "5004:1,5006:2"
	Relay       string    `json:"relay,omitempty"`    // 转发目标地址
	RelayTrack  int       `json:"relay_track"`        // 重新打包转发的轨道，0 表示不转发
	TSInput     string    `json:"ts_input,omitempty"` // 接收裸 MPEG-TS 的 UDP 地址，按 RTP 转发
	FECRows     int       `json:"fec_rows"`           // FEC 行数，0 表示不启用
	FECColumns  int       `json:"fec_columns"`        // FEC 列数
	AACTrack    int       `json:"aac_track"`          // G.711 转码输出的 AAC 轨道，0 表示不转码
	ReorderWait int       `json:"reorder_wait"`       // 乱序等待包数
	DropTimeout int       `json:"drop_timeout"`       // 丢包判定包数
	MaxSend     int       `json:"max_send"`           // 单个 RTP 包最大载荷
	Metrics     bool      `json:"metrics"`            // 是否提供 /metrics
	Profile     bool      `json:"profile"`            // 是否启动Profile
	Log         LogConfig `json:"log"`                // 日志配置
}

func (c *config) initFlags() {
	// 服务的端口
	flag.StringVar(&c.ListenAddr, "listen", ":8554", "Set interleaved RTP listen address")
	flag.StringVar(&c.HTTPAddr, "http", ":8080", "Set HTTP api listen address")
	flag.StringVar(&c.SDP, "sdp", "", "Set the SDP file describing the ingested tracks")
	flag.StringVar(&c.UDP, "udp", "", "Set UDP track listeners, as port:track[,port:track]")
	flag.StringVar(&c.Relay, "relay", "", "Set the relay destination address")
	flag.IntVar(&c.RelayTrack, "relay-track", 0, "Set the track to re-packetize to the relay")
	flag.StringVar(&c.TSInput, "ts-input", "", "Set the UDP address receiving raw MPEG-TS for the relay")
	flag.IntVar(&c.FECRows, "fec-rows", 0, "Set the 2D FEC rows of relayed MPEG-TS (4-20)")
	flag.IntVar(&c.FECColumns, "fec-columns", 0, "Set the 2D FEC columns of relayed MPEG-TS (1-20)")
	flag.IntVar(&c.AACTrack, "aac-track", 0, "Set the output track of G.711 to AAC transcoding")
	flag.IntVar(&c.ReorderWait, "reorder-wait", 5, "Set the packets to wait before requesting a missing one")
	flag.IntVar(&c.DropTimeout, "drop-timeout", 30, "Set the packets to wait before giving up a missing one")
	flag.IntVar(&c.MaxSend, "max-send", 1500-28, "Set the maximum RTP packet size to send")
	flag.BoolVar(&c.Metrics, "metrics", true, "Determines if prometheus metrics are exposed")
	flag.BoolVar(&c.Profile, "pprof", false,
		"Determines if profile enabled")

	// 初始化日志配置
	c.Log.initFlags()
}
