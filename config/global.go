// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	cfg "github.com/cnotch/loader"
	"github.com/cnotch/rtpengine/utils/scan"
	"github.com/cnotch/xlog"
)

// 服务名
const (
	Vendor  = "CAOHONGJU"
	Name    = "rtpengine"
	Version = "V1.0.0"
)

var globalC *config

// UDPTrack UDP 接入端口对应的轨道
type UDPTrack struct {
	Port  int
	Track uint64
}

// InitConfig 初始化 Config
func InitConfig() {
	exe, err := os.Executable()
	if err != nil {
		xlog.Panic(err.Error())
	}

	configPath := filepath.Join(filepath.Dir(exe), Name+".conf")

	globalC = new(config)
	globalC.initFlags()

	// 创建或加载配置文件
	if err := cfg.Load(globalC,
		&cfg.JSONLoader{Path: configPath, CreatedIfNonExsit: true},
		&cfg.EnvLoader{Prefix: strings.ToUpper(Name)},
		&cfg.FlagLoader{}); err != nil {
		// 异常，直接退出
		xlog.Panic(err.Error())
	}

	if globalC.SDP != "" && !filepath.IsAbs(globalC.SDP) {
		globalC.SDP = filepath.Join(filepath.Dir(exe), globalC.SDP)
	}

	// 初始化日志
	globalC.Log.initLogger(filepath.Dir(exe))
}

// Addr Listen addr
func Addr() string {
	if globalC == nil {
		return ":8554"
	}
	return globalC.ListenAddr
}

// HTTPAddr 管理接口地址
func HTTPAddr() string {
	if globalC == nil || globalC.HTTPAddr == "" {
		return ":8080"
	}
	return globalC.HTTPAddr
}

// SDPFile 描述接入轨道的 SDP 文件
func SDPFile() string {
	if globalC == nil {
		return ""
	}
	return globalC.SDP
}

// UDPTracks UDP 接入端口与轨道
func UDPTracks() ([]UDPTrack, error) {
	if globalC == nil {
		return nil, nil
	}
	return ParseUDPTracks(globalC.UDP)
}

// ParseUDPTracks 解析 "port:track[,port:track]" 格式的 UDP 接入配置
func ParseUDPTracks(s string) (tracks []UDPTrack, err error) {
	scan.Comma.Each(s, func(item string) bool {
		port, track, ok := scan.ColonPair.Scan(item)
		if !ok {
			err = fmt.Errorf("config: udp listener %q should be port:track", item)
			return false
		}
		p, perr := strconv.Atoi(port)
		if perr != nil || p <= 0 || p > 65535 {
			err = fmt.Errorf("config: invalid udp port %q", port)
			return false
		}
		id, perr := strconv.ParseUint(track, 10, 64)
		if perr != nil {
			err = fmt.Errorf("config: invalid track id %q", track)
			return false
		}
		tracks = append(tracks, UDPTrack{Port: p, Track: id})
		return true
	})
	if err != nil {
		return nil, err
	}
	return tracks, nil
}

// RelayAddr 转发目标地址
func RelayAddr() string {
	if globalC == nil {
		return ""
	}
	return globalC.Relay
}

// RelayTrack 重新打包转发的轨道
func RelayTrack() uint64 {
	if globalC == nil || globalC.RelayTrack <= 0 {
		return 0
	}
	return uint64(globalC.RelayTrack)
}

// TSInput 裸 MPEG-TS 接收地址
func TSInput() string {
	if globalC == nil {
		return ""
	}
	return globalC.TSInput
}

// FEC 转发 MPEG-TS 的 FEC 行列数，未启用时返回 0, 0
func FEC() (rows, columns int) {
	if globalC == nil || globalC.FECRows == 0 {
		return 0, 0
	}
	return globalC.FECRows, globalC.FECColumns
}

// AACTrack G.711 转码输出轨道
func AACTrack() uint64 {
	if globalC == nil || globalC.AACTrack <= 0 {
		return 0
	}
	return uint64(globalC.AACTrack)
}

// ReorderWait 乱序等待包数
func ReorderWait() int {
	if globalC == nil || globalC.ReorderWait <= 0 {
		return 5
	}
	return globalC.ReorderWait
}

// DropTimeout 丢包判定包数，不小于乱序等待包数
func DropTimeout() int {
	if globalC == nil || globalC.DropTimeout <= 0 {
		return 30
	}
	if globalC.DropTimeout < ReorderWait() {
		return ReorderWait()
	}
	return globalC.DropTimeout
}

// MaxSend 单个 RTP 包最大发送字节数
func MaxSend() int {
	if globalC == nil || globalC.MaxSend < 128 {
		return 1500 - 28
	}
	return globalC.MaxSend
}

// Metrics 是否提供 prometheus 指标
func Metrics() bool {
	if globalC == nil {
		return true
	}
	return globalC.Metrics
}

// Profile 是否启动 Http Profile
func Profile() bool {
	if globalC == nil {
		return false
	}
	return globalC.Profile
}

// NetTimeout 返回网络超时设置
func NetTimeout() time.Duration {
	return time.Second * 45
}

// NetBufferSize 网络通讯时的BufferSize
func NetBufferSize() int {
	return 128 * 1024
}

// RTCPInterval 接收者报告的发送间隔
func RTCPInterval() time.Duration {
	return time.Second
}
