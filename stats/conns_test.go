// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stats

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConns(t *testing.T) {
	c := NewConns("test", "test connections")
	assert.Equal(t, int64(1), c.Add())
	assert.Equal(t, int64(2), c.Add())
	assert.Equal(t, int64(1), c.Release())
	assert.Equal(t, ConnsSample{Total: 2, Active: 1}, c.GetSample())

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	values := make(map[string]float64)
	for _, f := range families {
		for _, m := range f.GetMetric() {
			if m.GetGauge() != nil {
				values[f.GetName()] = m.GetGauge().GetValue()
			} else if m.GetCounter() != nil {
				values[f.GetName()] = m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(2), values["rtpengine_test_conns_total"])
	assert.Equal(t, float64(1), values["rtpengine_test_conns_active"])
}
