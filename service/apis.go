// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"path"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cnotch/apirouter"
	"github.com/cnotch/rtpengine/av/format/rtp"
	"github.com/cnotch/rtpengine/config"
	"github.com/cnotch/rtpengine/network"
	"github.com/cnotch/rtpengine/stats"
)

var (
	buffers = sync.Pool{
		New: func() interface{} {
			return bytes.NewBuffer(make([]byte, 0, 1024*2))
		},
	}
)

var crossdomainxml = []byte(
	`<?xml version="1.0" ?><cross-domain-policy>
			<allow-access-from domain="*" />
			<allow-http-request-headers-from domain="*" headers="*"/>
		</cross-domain-policy>`)

func (s *Service) initApis(mux *http.ServeMux) {
	api := apirouter.NewForGRPC(
		// 系统信息类API
		apirouter.GET("/api/v1/server", s.onGetServerInfo),
		apirouter.GET("/api/v1/runtime", s.onGetRuntime),

		// 轨道API
		apirouter.GET("/api/v1/tracks", s.onListTracks),
		apirouter.GET("/api/v1/tracks/{id=*}", s.onGetTrack),
		apirouter.DELETE("/api/v1/tracks/{id=*}", s.onStopTrack),

		// 转发API
		apirouter.GET("/api/v1/relay", s.onGetRelay),
	)

	// api add to mux
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		if path.Base(r.URL.Path) == "crossdomain.xml" {
			w.Header().Set("Content-Type", "application/xml")
			w.Write(crossdomainxml)
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", "*")
		api.ServeHTTP(w, r)
	})
}

// 获取服务器信息
func (s *Service) onGetServerInfo(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	type server struct {
		Vendor   string   `json:"vendor"`
		Name     string   `json:"name"`
		Version  string   `json:"version"`
		OS       string   `json:"os"`
		Arch     string   `json:"arch"`
		Addrs    []string `json:"addrs"`
		StartOn  string   `json:"start_on"`
		Duration string   `json:"duration"`
	}
	srv := server{
		Vendor:   config.Vendor,
		Name:     config.Name,
		Version:  config.Version,
		OS:       strings.Title(runtime.GOOS),
		Arch:     strings.ToUpper(runtime.GOARCH),
		Addrs:    network.GetLocalIP(),
		StartOn:  stats.StartingTime.Format(time.RFC3339Nano),
		Duration: time.Now().Sub(stats.StartingTime).String(),
	}

	if err := jsonTo(w, &srv); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// 获取运行时信息
func (s *Service) onGetRuntime(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	const extraKey = "extra"

	type runtime struct {
		On          string            `json:"on"`
		Proc        stats.Proc        `json:"proc"`
		Tracks      int               `json:"tracks"`
		Transcoders int               `json:"transcoders"`
		Ingest      stats.ConnsSample `json:"ingest"`
		Relay       stats.ConnsSample `json:"relay"`
		Flow        stats.FlowSample  `json:"flow"`
		Extra       *stats.Runtime    `json:"extra,omitempty"`
	}

	rt := runtime{
		On:     time.Now().Format(time.RFC3339Nano),
		Proc:   stats.MeasureRuntime(),
		Tracks: len(s.session.Tracks()),
		Ingest: stats.IngestConns.GetSample(),
		Relay:  stats.RelayConns.GetSample(),
		Flow:   stats.TotalFlow.GetSample(),
	}
	if s.registry != nil {
		rt.Transcoders = s.registry.Len()
	}

	params := r.URL.Query()
	if strings.TrimSpace(params.Get(extraKey)) == "1" {
		rt.Extra = stats.MeasureFullRuntime()
	}

	if err := jsonTo(w, &rt); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// trackInfo 轨道信息，附带最近的解码器配置
type trackInfo struct {
	rtp.TrackInfo
	Init []byte `json:"init,omitempty"`
}

func (s *Service) trackInfo(info rtp.TrackInfo) trackInfo {
	s.lock.Lock()
	init := s.inits[info.Props.ID]
	s.lock.Unlock()
	if init == nil {
		init = info.Props.Init
	}
	return trackInfo{TrackInfo: info, Init: init}
}

// 列出轨道
func (s *Service) onListTracks(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	infos := s.session.Tracks()

	type trackInfos struct {
		Total  int              `json:"total"`
		Flow   stats.FlowSample `json:"flow"`
		Tracks []trackInfo      `json:"tracks,omitempty"`
	}
	list := &trackInfos{
		Total:  len(infos),
		Flow:   s.session.Flow(),
		Tracks: make([]trackInfo, 0, len(infos)),
	}
	for _, info := range infos {
		list.Tracks = append(list.Tracks, s.trackInfo(info))
	}

	if err := jsonTo(w, list); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func parseTrackID(pathParams apirouter.Params) (uint64, bool) {
	id, err := strconv.ParseUint(pathParams.ByName("id"), 10, 64)
	return id, err == nil
}

// 获取轨道
func (s *Service) onGetTrack(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	id, ok := parseTrackID(pathParams)
	if !ok {
		http.Error(w, "invalid track id", http.StatusBadRequest)
		return
	}

	info, ok := s.session.Track(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	ti := s.trackInfo(info)
	if err := jsonTo(w, &ti); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// 停止轨道
func (s *Service) onStopTrack(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	id, ok := parseTrackID(pathParams)
	if !ok {
		http.Error(w, "invalid track id", http.StatusBadRequest)
		return
	}

	if !s.closeTrack(id) {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// 获取转发状态
func (s *Service) onGetRelay(w http.ResponseWriter, r *http.Request, pathParams apirouter.Params) {
	if s.relay == nil {
		http.NotFound(w, r)
		return
	}

	info := s.relay.info()
	if err := jsonTo(w, &info); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func jsonTo(w io.Writer, o interface{}) error {
	formatted := buffers.Get().(*bytes.Buffer)
	formatted.Reset()
	defer buffers.Put(formatted)

	body, err := json.Marshal(o)
	if err != nil {
		return err
	}

	if err := json.Indent(formatted, body, "", "\t"); err != nil {
		return err
	}

	if _, err := w.Write(formatted.Bytes()); err != nil {
		return err
	}
	return nil
}
