// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sdp

import (
	"encoding/base64"
	"encoding/hex"

	"github.com/cnotch/rtpengine/av/codec"
	"github.com/cnotch/rtpengine/av/codec/aac"
	"github.com/cnotch/rtpengine/av/codec/h264"
	"github.com/cnotch/rtpengine/av/codec/hevc"
	"github.com/cnotch/rtpengine/utils"
	"github.com/cnotch/rtpengine/utils/scan"
	"github.com/cnotch/xlog"
	"github.com/pixelbender/go-sdp/sdp"
)

// Track SDP 中一个媒体描述对应的轨道
type Track struct {
	Props       codec.TrackProperties
	PayloadType uint8
	Control     string
	Port        int
}

// 静态载荷类型（RFC 3551）
var staticFormats = map[uint8]struct {
	name      string
	clockRate int
	channels  int
}{
	0:  {"PCMU", 8000, 1},
	8:  {"PCMA", 8000, 1},
	14: {"MPA", 90000, 0},
	32: {"MPV", 90000, 0},
}

// ParseTracks 从 SDP 中解析轨道属性，轨道 ID 为媒体描述的序号（从 1 开始）
func ParseTracks(rawsdp string) ([]codec.TrackProperties, error) {
	tracks, err := ParseTrackList(rawsdp)
	if err != nil {
		return nil, err
	}
	props := make([]codec.TrackProperties, len(tracks))
	for i := range tracks {
		props[i] = tracks[i].Props
	}
	return props, nil
}

// ParseTrackList 与 ParseTracks 相同，同时返回载荷类型、控制属性和端口
func ParseTrackList(rawsdp string) ([]Track, error) {
	session, err := sdp.ParseString(rawsdp)
	if err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(session.Media))
	for i, media := range session.Media {
		if len(media.Format) == 0 {
			continue
		}
		format := media.Format[0]
		name, clockRate, channels := format.Name, format.ClockRate, format.Channels
		if name == "" {
			if sf, ok := staticFormats[format.Payload]; ok {
				name, clockRate, channels = sf.name, sf.clockRate, sf.channels
			}
		}

		id := uint64(i + 1)
		c := codec.ParseCodec(name)
		if c == codec.CodecUnknown {
			xlog.Warnf("sdp: track %d has unsupported codec %q", id, name)
		}
		props := codec.NewTrackProperties(id, c, clockRate, nil)
		props.Channels = channels

		switch c {
		case codec.CodecH264:
			props.Init = parseH264Init(format.Params)
		case codec.CodecHEVC:
			props.Init = parseHEVCInit(format.Params)
		case codec.CodecAAC:
			props.Init = parseAACConfig(format.Params, clockRate, channels)
		}

		tracks = append(tracks, Track{
			Props:       props,
			PayloadType: format.Payload,
			Control:     media.Attributes.Get("control"),
			Port:        media.Port,
		})
	}
	return tracks, nil
}

// fmtpValue 从 fmtp 参数中查找 name 的值
func fmtpValue(params []string, name string) (string, bool) {
	for _, p := range params {
		if value, ok := scan.EqualPair.Lookup(scan.Semicolon, p, name); ok {
			return value, true
		}
	}
	return "", false
}

func decodeParameterSet(b64 string) []byte {
	ps, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil
	}
	return utils.RemoveNaluSeparator(ps)
}

func parseH264Init(params []string) []byte {
	value, ok := fmtpValue(params, "sprop-parameter-sets")
	if !ok {
		return nil
	}
	ppsStr, spsStr, ok := scan.Comma.Scan(value)
	if !ok {
		return nil
	}

	sps := decodeParameterSet(spsStr)
	pps := decodeParameterSet(ppsStr)
	if !h264.ValidateSPS(sps) {
		return nil
	}
	avcc, err := h264.NewAVCConfig(sps, pps)
	if err != nil {
		return nil
	}
	return avcc.Marshal()
}

func parseHEVCInit(params []string) []byte {
	initData := hevc.NewInitData()
	for _, name := range []string{"sprop-vps", "sprop-sps", "sprop-pps"} {
		value, ok := fmtpValue(params, name)
		if !ok {
			return nil
		}
		if _, err := initData.AddUnit(decodeParameterSet(value)); err != nil {
			return nil
		}
	}
	hvcc, err := initData.GenerateHVCC()
	if err != nil {
		return nil
	}
	return hvcc
}

func parseAACConfig(params []string, clockRate, channels int) []byte {
	value, ok := fmtpValue(params, "config")
	if !ok {
		return nil
	}
	config, err := hex.DecodeString(value)
	if err != nil || len(config) < 2 {
		if channels <= 0 {
			channels = 2
		}
		config = aac.Encode2BytesASC(2,
			byte(aac.SamplingIndex(clockRate)),
			byte(channels))
	}
	return config
}
