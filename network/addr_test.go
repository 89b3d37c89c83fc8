// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUDPAddr(t *testing.T) {
	addr, err := ParseUDPAddr("127.0.0.1", 5000)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:5000", addr.String())

	addr, err = ParseUDPAddr("127.0.0.1:6000", 5000)
	require.NoError(t, err)
	assert.Equal(t, 6000, addr.Port)

	assert.Equal(t, 6002, WithPortOffset(addr, ColumnFECPortOffset).Port)
	assert.Equal(t, 6004, WithPortOffset(addr, RowFECPortOffset).Port)
	assert.Equal(t, 6000, addr.Port)
}
