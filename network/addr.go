// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package network

import (
	"net"

	"github.com/emitter-io/address"
)

// SMPTE 2022-1 约定的端口偏移
const (
	RTCPPortOffset      = 1 // RTCP 端口 = 媒体端口 + 1
	ColumnFECPortOffset = 2 // 列 FEC 端口 = 媒体端口 + 2
	RowFECPortOffset    = 4 // 行 FEC 端口 = 媒体端口 + 4
)

// GetLocalIP 获取本地IP
func GetLocalIP() []string {
	addrs, _ := net.InterfaceAddrs()
	ips := []string{}
	for _, address := range addrs {
		// 检查ip地址判断是否回环地址
		if ipnet, ok := address.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP.String())
			}
		}
	}
	return ips
}

// ParseUDPAddr 解析 UDP 地址，未指定端口时使用 defaultPort
func ParseUDPAddr(addr string, defaultPort int) (*net.UDPAddr, error) {
	a, err := address.Parse(addr, defaultPort)
	if err != nil {
		return nil, err
	}
	return &net.UDPAddr{IP: a.IP, Port: a.Port, Zone: a.Zone}, nil
}

// WithPortOffset 返回端口偏移 offset 后的地址
func WithPortOffset(addr *net.UDPAddr, offset int) *net.UDPAddr {
	return &net.UDPAddr{IP: addr.IP, Port: addr.Port + offset, Zone: addr.Zone}
}
