// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stats

import (
	"runtime"
	"time"

	"github.com/kelindar/process"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StartingTime 进程启动时间
var StartingTime = time.Now()

// Proc 进程资源使用
type Proc struct {
	CPU    float64 `json:"cpu"`    // 百分比
	Priv   int32   `json:"priv"`   // 私有内存 KB
	Virt   int32   `json:"virt"`   // 虚拟内存 KB
	Uptime int32   `json:"uptime"` // 秒
}

// Runtime Go 运行时内存、GC 和调度信息，单位 KB
type Runtime struct {
	Heap  Heap   `json:"heap"`
	Stack Memory `json:"stack"`
	GC    GC     `json:"gc"`
	Go    Go     `json:"go"`
}

// Heap 堆
type Heap struct {
	Inuse    int32 `json:"inuse"`
	Sys      int32 `json:"sys"`
	Alloc    int32 `json:"alloc"`
	Idle     int32 `json:"idle"`
	Released int32 `json:"released"`
	Objects  int32 `json:"objects"` // 个数
}

// Memory 通用内存信息
type Memory struct {
	Inuse int32 `json:"inuse"`
	Sys   int32 `json:"sys"`
}

// GC 垃圾回收
type GC struct {
	CPU   float64 `json:"cpu"` // GC 占用的 CPU 比例
	Sys   int32   `json:"sys"`
	Count uint32  `json:"count"`
	Pause string  `json:"pause"` // 累计停顿
}

// Go goroutine 和处理器
type Go struct {
	Goroutines int32 `json:"goroutines"`
	CPUs       int32 `json:"cpus"`
	MaxProcs   int32 `json:"max_procs"`
	Sys        int32 `json:"sys"`
	TotalAlloc int32 `json:"total_alloc"`
}

// MeasureRuntime 采集进程资源使用
func MeasureRuntime() (p Proc) {
	defer func() { recover() }()

	var priv, virt int64
	process.ProcUsage(&p.CPU, &priv, &virt)
	p.Priv = toKB(uint64(priv))
	p.Virt = toKB(uint64(virt))
	p.Uptime = int32(time.Since(StartingTime).Seconds())
	return
}

// MeasureFullRuntime 采集 Go 运行时信息，会短暂停止世界
func MeasureFullRuntime() *Runtime {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return &Runtime{
		Heap: Heap{
			Inuse:    toKB(m.HeapInuse),
			Sys:      toKB(m.HeapSys),
			Alloc:    toKB(m.HeapAlloc),
			Idle:     toKB(m.HeapIdle),
			Released: toKB(m.HeapReleased),
			Objects:  int32(m.HeapObjects),
		},
		Stack: Memory{
			Inuse: toKB(m.StackInuse),
			Sys:   toKB(m.StackSys),
		},
		GC: GC{
			CPU:   m.GCCPUFraction,
			Sys:   toKB(m.GCSys),
			Count: m.NumGC,
			Pause: time.Duration(m.PauseTotalNs).String(),
		},
		Go: Go{
			Goroutines: int32(runtime.NumGoroutine()),
			CPUs:       int32(runtime.NumCPU()),
			MaxProcs:   int32(runtime.GOMAXPROCS(0)),
			Sys:        toKB(m.Sys),
			TotalAlloc: toKB(m.TotalAlloc),
		},
	}
}

// 进程指标在抓取时采集
var (
	_ = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "process",
		Name:      "cpu_percent",
		Help:      "Process CPU usage in percent",
	}, func() float64 { return MeasureRuntime().CPU })

	_ = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "process",
		Name:      "private_memory_kilobytes",
		Help:      "Process private memory in kilobytes",
	}, func() float64 { return float64(MeasureRuntime().Priv) })

	_ = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "process",
		Name:      "uptime_seconds",
		Help:      "Seconds since the process started",
	}, func() float64 { return time.Since(StartingTime).Seconds() })
)

// 转为 KB，避免 int32 溢出
func toKB(v uint64) int32 {
	return int32(v / 1024)
}
