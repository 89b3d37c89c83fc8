// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanner_Scan(t *testing.T) {
	advance, token, ok := Comma.Scan("Z2QAH6zZ, aO44gA==")
	assert.True(t, ok)
	assert.Equal(t, "Z2QAH6zZ", token)
	assert.Equal(t, "aO44gA==", advance)

	advance, token, ok = Comma.Scan(advance)
	assert.False(t, ok)
	assert.Equal(t, "aO44gA==", token)
	assert.Empty(t, advance)
}

func TestScanner_Each(t *testing.T) {
	var tokens []string
	Comma.Each(" 5004:1, ,5006:2,", func(token string) bool {
		tokens = append(tokens, token)
		return true
	})
	assert.Equal(t, []string{"5004:1", "5006:2"}, tokens)

	tokens = tokens[:0]
	Semicolon.Each("a;b;c", func(token string) bool {
		tokens = append(tokens, token)
		return token != "b"
	})
	assert.Equal(t, []string{"a", "b"}, tokens)
}

func TestPair_Scan(t *testing.T) {
	tests := []struct {
		name      string
		pair      Pair
		args      string
		wantKey   string
		wantValue string
		wantOk    bool
	}{
		{"equal", EqualPair, "packetization-mode=1", "packetization-mode", "1", true},
		{"quoted", EqualPair, `config = "1210"`, "config", "1210", true},
		{"base64 padding", EqualPair, "sprop-pps=RAHBcrRiQA==", "sprop-pps", "RAHBcrRiQA==", true},
		{"colon", ColonPair, "5004:1", "5004", "1", true},
		{"no delim", EqualPair, "mode", "mode", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, value, ok := tt.pair.Scan(tt.args)
			assert.Equal(t, tt.wantKey, key)
			assert.Equal(t, tt.wantValue, value)
			assert.Equal(t, tt.wantOk, ok)
		})
	}
}

func TestPair_Lookup(t *testing.T) {
	fmtp := "profile-level-id=42e01f; Packetization-Mode=1; sprop-parameter-sets=Z0IAH5Y1QKALdNwEBAQI,aM4xsg=="
	v, ok := EqualPair.Lookup(Semicolon, fmtp, "packetization-mode")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	v, ok = EqualPair.Lookup(Semicolon, fmtp, "sprop-parameter-sets")
	assert.True(t, ok)
	assert.Equal(t, "Z0IAH5Y1QKALdNwEBAQI,aM4xsg==", v)

	_, ok = EqualPair.Lookup(Semicolon, fmtp, "config")
	assert.False(t, ok)
}
