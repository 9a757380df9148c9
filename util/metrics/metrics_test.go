// Copyright (C) 2019-2024 Algorand, Inc.
// This file is part of go-twochain
//
// go-twochain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// go-twochain is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with go-twochain.  If not, see <https://www.gnu.org/licenses/>.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/algorand/go-twochain/test/partitiontest"
)

var (
	testCounter = MetricName{Name: "test_counter_total", Description: "Counter"}
	testGauge   = MetricName{Name: "test_gauge", Description: "Gauge"}
	testHist    = MetricName{Name: "test_duration_seconds", Description: "Histogram"}
)

func TestCountingSink(t *testing.T) {
	partitiontest.PartitionTest(t)

	s := MakeCountingSink()
	s.Inc(testCounter, nil)
	s.Inc(testCounter, map[string]string{"kind": "vote"})
	s.Add(testCounter, 3, map[string]string{"kind": "vote"})
	s.Set(testGauge, 7)
	s.Observe(testHist, 0.5)
	s.Observe(testHist, 1.5)

	require.Equal(t, uint64(5), s.Count(testCounter, nil))
	require.Equal(t, uint64(4), s.Count(testCounter, map[string]string{"kind": "vote"}))
	require.Equal(t, uint64(0), s.Count(testCounter, map[string]string{"kind": "timeout"}))
	require.Equal(t, float64(7), s.Gauge(testGauge))
	require.Equal(t, []float64{0.5, 1.5}, s.Samples(testHist))
}

func TestPrometheusSink(t *testing.T) {
	partitiontest.PartitionTest(t)

	reg := prometheus.NewRegistry()
	s := MakePrometheusSink("twochain", reg)
	s.Inc(testCounter, map[string]string{"kind": "vote"})
	s.Add(testCounter, 2, map[string]string{"kind": "vote"})
	// mismatched label set falls back to the empty label value
	s.Inc(testCounter, nil)
	s.Set(testGauge, 3)
	s.Observe(testHist, 0.25)

	families, err := reg.Gather()
	require.NoError(t, err)

	found := make(map[string]bool)
	for _, mf := range families {
		found[mf.GetName()] = true
		switch mf.GetName() {
		case "twochain_test_counter_total":
			var total float64
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
			require.Equal(t, float64(4), total)
			require.Len(t, mf.GetMetric(), 2)
		case "twochain_test_gauge":
			require.Equal(t, float64(3), mf.GetMetric()[0].GetGauge().GetValue())
		case "twochain_test_duration_seconds":
			require.Equal(t, uint64(1), mf.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}
	require.True(t, found["twochain_test_counter_total"])
	require.True(t, found["twochain_test_gauge"])
	require.True(t, found["twochain_test_duration_seconds"])

	// a second sink on the same registry reuses the collectors
	s2 := MakePrometheusSink("twochain", reg)
	s2.Inc(testCounter, map[string]string{"kind": "vote"})
	s2.Set(testGauge, 5)
}

func TestNopSink(t *testing.T) {
	partitiontest.PartitionTest(t)

	var s Sink = NopSink{}
	s.Inc(testCounter, nil)
	s.Add(testCounter, 1, nil)
	s.Set(testGauge, 1)
	s.Observe(testHist, 1)
}
