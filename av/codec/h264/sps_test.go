// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package h264

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawSPS_Parse(t *testing.T) {
	tests := []struct {
		name    string
		b64     string
		wantW   int
		wantH   int
		wantFR  float64
		wantErr bool
	}{
		{
			"base64_1",
			"Z2QAH6zZQFAFuhAAAAMAEAAAAwPI8YMZYA==",
			1280,
			720,
			30,
			false,
		},
		{
			"base64_2",
			"Z3oAH7y0AoAt0IAAAAMAgAAAHkeMGVA=",
			1280,
			720,
			30,
			false,
		},
		{
			"base64_3",
			"Z2QAM6wspADwAQ+wFSAgICgAAB9IAAdTBO0LFok=",
			3840,
			2160,
			float64(60000) / float64(1001*2),
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sps := &RawSPS{}
			err := sps.DecodeString(tt.b64)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, sps.Validate())
			assert.Equal(t, tt.wantW, sps.Width())
			assert.Equal(t, tt.wantH, sps.Height())
			assert.Equal(t, tt.wantFR, sps.FrameRate())
		})
	}
}

func TestValidateSPS(t *testing.T) {
	sps, _ := base64.StdEncoding.DecodeString("Z2QAH6zZQFAFuhAAAAMAEAAAAwPI8YMZYA==")
	assert.True(t, ValidateSPS(sps))
	assert.False(t, ValidateSPS(sps[:3]))
	assert.False(t, ValidateSPS([]byte{0x68, 0xce, 0x3c, 0x80}))
}

func TestRawPPS_Decode(t *testing.T) {
	var pps RawPPS
	require.NoError(t, pps.Decode([]byte{0x68, 0xce, 0x3c, 0x80}))
	assert.Equal(t, uint32(0), pps.PicParameterSetID)
	assert.Equal(t, uint32(0), pps.SeqParameterSetID)
	assert.NoError(t, pps.Validate())
	assert.True(t, ValidatePPS([]byte{0x68, 0xce, 0x3c, 0x80}))
	assert.False(t, ValidatePPS([]byte{0x67, 0xce}))
}

func TestSlicePPSID(t *testing.T) {
	// first_mb=0 slice_type=7 pps_id=0
	id, err := SlicePPSID([]byte{0x65, 0x88, 0x84, 0x00})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), id)

	// first_mb=0 slice_type=2 pps_id=1
	id, err = SlicePPSID([]byte{0x65, 0xb5, 0x00})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id)

	_, err = SlicePPSID([]byte{0x65})
	assert.Error(t, err)
}

func TestAVCConfig(t *testing.T) {
	sps, _ := base64.StdEncoding.DecodeString("Z2QAH6zZQFAFuhAAAAMAEAAAAwPI8YMZYA==")
	pps := []byte{0x68, 0xce, 0x3c, 0x80}

	c, err := NewAVCConfig(sps, pps)
	require.NoError(t, err)
	b := c.Marshal()
	assert.Equal(t, []byte{1, 0x64, 0x00, 0x1f, 0xff, 0xe1}, b[:6])
	assert.Len(t, b, 11+len(sps)+len(pps))

	var got AVCConfig
	require.NoError(t, got.Unmarshal(b))
	assert.Equal(t, sps, got.SPS)
	assert.Equal(t, pps, got.PPS)
	assert.Equal(t, uint8(0x1f), got.Level)

	assert.Error(t, got.Unmarshal(b[:8]))
	_, err = NewAVCConfig(sps[:2], pps)
	assert.Error(t, err)
}

func TestIsKeyframe(t *testing.T) {
	assert.True(t, IsKeyframe([]byte{0x65}))
	assert.True(t, IsKeyframe([]byte{0x67}))
	assert.False(t, IsKeyframe([]byte{0x41}))
	assert.False(t, IsKeyframe(nil))
	assert.True(t, IsVCL(0x41))
	assert.False(t, IsVCL(0x67))
}
