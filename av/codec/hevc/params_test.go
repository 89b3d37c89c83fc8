// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawSPS_DecodeString(t *testing.T) {
	tests := []struct {
		name       string
		b64        string
		wantW      int
		wantH      int
		wantChroma uint32
	}{
		{"base64_1", "QgEBAWAAAAMAkAAAAwAAAwBdoAKAgC0WWVmkkyuAQAAA+kAAF3AC", 1280, 720, 1},
		{"base64_2", "QgEBBAgAAAMAnQgAAAMAAF2wAoCALRZZWaSTK4BAAAADAEAAAAeC", 1280, 720, 2},
		{"tpl500-265", "AAAAAUIBAQFgAAADAAADAAADAAADAJagAWggBln3ja5JMmuWMAgAAAMACAAAAwB4QA==", 2880, 1620, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sps := &RawSPS{}
			require.NoError(t, sps.DecodeString(tt.b64))
			assert.Equal(t, tt.wantW, sps.Width())
			assert.Equal(t, tt.wantH, sps.Height())
			assert.Equal(t, tt.wantChroma, sps.ChromaFormatIdc)
		})
	}
}

func TestRawVPS_DecodeString(t *testing.T) {
	for _, b64 := range []string{
		"QAEMAf//BAgAAAMAnQgAAAMAAF2VmAk=",
		"QAEMAf//AWAAAAMAkAAAAwAAAwBdlZgJ",
		"AAAAAUABDAH//wFgAAADAAADAAADAAADAJasCQ==",
	} {
		vps := &RawVPS{}
		assert.NoError(t, vps.DecodeString(b64))
		assert.Equal(t, uint8(0), vps.VideoParameterSetID)
		assert.Equal(t, float64(0), vps.FrameRate())
	}
}

func mustDecode(s string) []byte {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func TestInitData(t *testing.T) {
	vps := mustDecode("QAEMAf//AWAAAAMAkAAAAwAAAwBdlZgJ")
	sps := mustDecode("QgEBAWAAAAMAkAAAAwAAAwBdoAKAgC0WWVmkkyuAQAAA+kAAF3AC")
	// pps_pic_parameter_set_id = 0
	pps := []byte{0x44, 0x01, 0xc1, 0x72, 0xb4, 0x62, 0x40}

	d := NewInitData()
	changed, err := d.AddUnit(vps)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, d.HaveRequired())

	_, err = d.AddUnit(sps)
	require.NoError(t, err)
	_, err = d.AddUnit(pps)
	require.NoError(t, err)
	assert.True(t, d.HaveRequired())

	changed, err = d.AddUnit(pps)
	require.NoError(t, err)
	assert.False(t, changed)

	hvcc, err := d.GenerateHVCC()
	require.NoError(t, err)
	assert.Equal(t, byte(1), hvcc[0])
	assert.Equal(t, byte(3), hvcc[22])
	assert.Equal(t, byte(0x80|NalVps), hvcc[23])

	meta := d.Meta()
	assert.Equal(t, 1280, meta.Width)
	assert.Equal(t, 720, meta.Height)

	parsed, err := ParseHVCC(hvcc)
	require.NoError(t, err)
	again, err := parsed.GenerateHVCC()
	require.NoError(t, err)
	assert.Equal(t, hvcc, again)

	_, err = ParseHVCC(hvcc[:10])
	assert.Error(t, err)
}

func TestIsKeyframe(t *testing.T) {
	assert.True(t, IsKeyframe([]byte{NalIdrWRadl << 1, 0x01}))
	assert.True(t, IsKeyframe([]byte{NalCraNut << 1, 0x01}))
	assert.False(t, IsKeyframe([]byte{NalTrailR << 1, 0x01}))
	assert.False(t, IsKeyframe(nil))
	assert.Equal(t, byte(NalVps), NalType(0x40))
}
