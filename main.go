// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"time"

	"github.com/cnotch/rtpengine/av/format/rtp"
	"github.com/cnotch/rtpengine/config"
	"github.com/cnotch/rtpengine/service"
	"github.com/cnotch/rtpengine/stats"
	"github.com/cnotch/scheduler"
	"github.com/cnotch/xlog"
)

func main() {
	// 初始化配置
	config.InitConfig()
	// 初始化全局计划任务
	scheduler.SetPanicHandler(func(job *scheduler.ManagedJob, r interface{}) {
		xlog.Errorf("scheduler task panic. tag: %v, recover: %v", job.Tag, r)
	})

	// 发送与排序参数
	rtp.MaxSend = config.MaxSend()
	rtp.ReorderWait = config.ReorderWait()
	rtp.DropTimeout = config.DropTimeout()

	// 定时输出流量统计
	scheduler.PeriodFunc(time.Minute, time.Minute, func() {
		flow := stats.TotalFlow.GetSample()
		xlog.L().Infof("flow: in %d bytes/%d packets, out %d bytes/%d packets, ingest %d, relay %d",
			flow.InBytes, flow.InPackets, flow.OutBytes, flow.OutPackets,
			stats.IngestConns.GetSample().Active, stats.RelayConns.GetSample().Active)
	}, "The task of logging flow statistics(1minute)")

	// Start new service
	svc, err := service.NewService(context.Background(), xlog.L())
	if err != nil {
		xlog.L().Panic(err.Error())
	}

	// Listen and serve
	if err = svc.Listen(); err != nil {
		xlog.L().Error(err.Error())
	}
}
