// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transcode

import (
	"bytes"
	"errors"
	"testing"

	"github.com/cnotch/rtpengine/av/codec"
	"github.com/cnotch/rtpengine/av/codec/aac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zaf/g711"
)

type fakeEncoder struct {
	samples  int
	calls    int
	zeros    int // 前 zeros 次编码输出 0 字节
	fail     bool
	adts     bool // 输出带 ADTS 头
	lastPCM  []int16
	sampling int
}

func (e *fakeEncoder) InputSamples() int   { return e.samples }
func (e *fakeEncoder) MaxOutputBytes() int { return 768 }
func (e *fakeEncoder) SampleRate() int     { return e.sampling }
func (e *fakeEncoder) Channels() int       { return 1 }
func (e *fakeEncoder) Encode(pcm []int16) ([]byte, error) {
	e.calls++
	e.lastPCM = append(e.lastPCM[:0], pcm...)
	if e.fail {
		return nil, errors.New("encode failed")
	}
	if e.calls <= e.zeros {
		return nil, nil
	}
	frame := []byte{0x21, byte(e.calls)}
	if e.adts {
		h := aac.NewADTSHeader(1, byte(aac.SamplingIndex(e.sampling)), 1, len(frame))
		frame = append(h[:], frame...)
	}
	return frame, nil
}

func newFakeEncoder() *fakeEncoder {
	return &fakeEncoder{samples: 160, sampling: 8000}
}

func TestConverter_Timeline(t *testing.T) {
	enc := newFakeEncoder()
	c := NewConverter(enc, nil)
	assert.Equal(t, float64(20), c.FrameDuration())

	half := bytes.Repeat([]byte{0xD5}, 80)

	frame, _, err := c.Transcode(codec.CodecALAW, half, 1000)
	require.NoError(t, err)
	assert.Nil(t, frame)
	assert.Equal(t, 0, enc.calls)

	frame, ts, err := c.Transcode(codec.CodecALAW, half, 1010)
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, int64(1000-leadIn), ts)
	assert.Len(t, enc.lastPCM, 160)
	assert.Equal(t, g711.DecodeAlawFrame(0xD5), enc.lastPCM[0])

	_, _, _ = c.Transcode(codec.CodecALAW, half, 1020)
	frame, ts, err = c.Transcode(codec.CodecALAW, half, 1030)
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, int64(1000-leadIn+20), ts)
}

func TestConverter_ADTS(t *testing.T) {
	enc := newFakeEncoder()
	enc.adts = true
	c := NewConverter(enc, nil)
	assert.Nil(t, c.Config())

	frame, _, err := c.Transcode(codec.CodecALAW, bytes.Repeat([]byte{0xD5}, 160), 1000)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x21, 1}, frame)

	var asc aac.AudioSpecificConfig
	require.NoError(t, asc.Decode(c.Config()))
	assert.Equal(t, uint8(aac.AOT_AAC_LC), asc.ObjectType)
	assert.Equal(t, 8000, asc.SampleRate)
	assert.Equal(t, uint8(1), asc.Channels)
}

func TestConverter_Ulaw(t *testing.T) {
	enc := newFakeEncoder()
	c := NewConverter(enc, nil)
	frame, _, err := c.Transcode(codec.CodecULAW, bytes.Repeat([]byte{0xFF}, 160), 500)
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, g711.DecodeUlawFrame(0xFF), enc.lastPCM[159])
}

func TestConverter_ZeroOutputReseeds(t *testing.T) {
	enc := newFakeEncoder()
	enc.zeros = 1
	c := NewConverter(enc, nil)
	full := bytes.Repeat([]byte{0xD5}, 160)

	frame, _, err := c.Transcode(codec.CodecALAW, full, 1000)
	require.NoError(t, err)
	assert.Nil(t, frame)

	frame, ts, err := c.Transcode(codec.CodecALAW, full, 1020)
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, int64(1000-leadIn), ts)
}

func TestConverter_Overflow(t *testing.T) {
	enc := newFakeEncoder()
	c := NewConverter(enc, nil)
	frame, _, err := c.Transcode(codec.CodecALAW, make([]byte, 600), 1000)
	require.NoError(t, err)
	assert.Nil(t, frame)
	assert.Equal(t, 0, enc.calls)
	assert.Empty(t, c.pcm)
}

func TestConverter_Errors(t *testing.T) {
	enc := newFakeEncoder()
	c := NewConverter(enc, nil)

	_, _, err := c.Transcode(codec.CodecPCM, []byte{1}, 0)
	assert.Equal(t, ErrUnsupportedCodec, err)
	_, _, err = c.Transcode(codec.CodecALAW, nil, 0)
	assert.Equal(t, ErrEmptyInput, err)

	enc.fail = true
	_, _, err = c.Transcode(codec.CodecALAW, make([]byte, 160), 0)
	assert.Error(t, err)
	assert.Empty(t, c.pcm)
}

func TestRegistry(t *testing.T) {
	created := map[uint64]int{}
	r := NewRegistry(func(track uint64) (Encoder, error) {
		created[track]++
		if track == 9 {
			return nil, errors.New("no encoder")
		}
		return newFakeEncoder(), nil
	}, nil)

	full := make([]byte, 160)
	_, _, ok := r.Transcode(1, codec.CodecALAW, full, 1000)
	assert.True(t, ok)
	_, _, ok = r.Transcode(1, codec.CodecALAW, full, 1020)
	assert.True(t, ok)
	assert.Equal(t, 1, created[1])

	_, _, ok = r.Transcode(9, codec.CodecALAW, full, 1000)
	assert.False(t, ok)
	_, _, ok = r.Transcode(9, codec.CodecALAW, full, 1020)
	assert.False(t, ok)
	assert.Equal(t, 1, created[9])
	assert.Equal(t, 2, r.Len())

	r.Remove(1)
	assert.Equal(t, 1, r.Len())
}
