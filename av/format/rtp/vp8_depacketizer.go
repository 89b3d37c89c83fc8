// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtp

// vp8Depacketizer VP8 与 VP9 共用，按分区起始拼帧
type vp8Depacketizer struct {
	d         *Depacketizer
	frame     []byte
	frameTime int64
	keyframe  bool
}

// descriptorSize 解析 RFC 7741 4.2 载荷描述符，返回描述符长度
//
//	      0 1 2 3 4 5 6 7
//	     +-+-+-+-+-+-+-+-+
//	     |X|R|N|S|R| PID | (REQUIRED)
//	     +-+-+-+-+-+-+-+-+
//	X:   |I|L|T|K| RSV   | (OPTIONAL)
//	     +-+-+-+-+-+-+-+-+
//	I:   |M| PictureID   | (OPTIONAL)
//	     +-+-+-+-+-+-+-+-+
//	L:   |   TL0PICIDX   | (OPTIONAL)
//	     +-+-+-+-+-+-+-+-+
//	T/K: |TID|Y| KEYIDX  | (OPTIONAL)
//	     +-+-+-+-+-+-+-+-+
func vp8DescriptorSize(payload []byte) int {
	size := 1
	if payload[0]&0x80 == 0 {
		return size
	}
	size++
	ext := payload[1]
	if ext&0x80 != 0 { // I
		size++
		if payload[2]&0x80 != 0 { // M，15 位 PictureID
			size++
		}
	}
	if ext&0x40 != 0 { // L
		size++
	}
	if ext&0x30 != 0 { // T 或 K
		size++
	}
	return size
}

func (v *vp8Depacketizer) depacketize(msTime int64, payload []byte, missed bool) {
	if len(payload) < 3 {
		v.d.logger.Errorf("rtp: received a VP8 RTP packet with invalid size (%db)", len(payload))
		return
	}

	headerSize := vp8DescriptorSize(payload)
	if headerSize >= len(payload) {
		v.d.logger.Errorf("rtp: the VP8 header size exceeds the RTP packet size")
		return
	}

	startOfPartition := payload[0]&0x10 != 0
	partitionIndex := payload[0] & 0x07
	startOfFrame := startOfPartition && partitionIndex == 0
	data := payload[headerSize:]

	if len(v.frame) > 0 {
		if startOfFrame && !missed {
			v.emit()
		}
		if startOfFrame || missed {
			v.frame = v.frame[:0]
			v.keyframe = false
		}
	}

	if len(v.frame) == 0 {
		if !startOfFrame {
			v.d.logger.Warnf("rtp: skipping VP8 packet, not start of partition (%d)", partitionIndex)
			return
		}
		v.frameTime = msTime
	}
	v.frame = append(v.frame, data...)

	if startOfFrame && data[0]&0x01 == 0 {
		v.keyframe = true
	}
}

func (v *vp8Depacketizer) emit() {
	v.d.packCount++
	v.d.writeFrame(v.frameTime, v.frame, v.keyframe)
	v.frame = nil // 已交给输出方
}

func (v *vp8Depacketizer) flush() {
	if len(v.frame) > 0 {
		v.emit()
	}
}
