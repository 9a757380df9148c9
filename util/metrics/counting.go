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
	"sort"
	"strings"

	"github.com/algorand/go-deadlock"
)

// CountingSink keeps every update in memory.
type CountingSink struct {
	mu       deadlock.Mutex
	counters map[string]uint64
	gauges   map[string]float64
	samples  map[string][]float64
}

// MakeCountingSink creates an empty CountingSink.
func MakeCountingSink() *CountingSink {
	return &CountingSink{
		counters: make(map[string]uint64),
		gauges:   make(map[string]float64),
		samples:  make(map[string][]float64),
	}
}

func labelKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(labels[k])
	}
	sb.WriteByte('}')
	return sb.String()
}

// Inc implements Sink.
func (s *CountingSink) Inc(metric MetricName, labels map[string]string) {
	s.Add(metric, 1, labels)
}

// Add implements Sink. The unlabelled total is kept alongside the labelled one.
func (s *CountingSink) Add(metric MetricName, x uint64, labels map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[metric.Name] += x
	if len(labels) > 0 {
		s.counters[labelKey(metric.Name, labels)] += x
	}
}

// Set implements Sink.
func (s *CountingSink) Set(metric MetricName, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gauges[metric.Name] = value
}

// Observe implements Sink.
func (s *CountingSink) Observe(metric MetricName, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[metric.Name] = append(s.samples[metric.Name], value)
}

// Count returns the counter total for metric, optionally restricted to labels.
func (s *CountingSink) Count(metric MetricName, labels map[string]string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[labelKey(metric.Name, labels)]
}

// Gauge returns the last value set for metric.
func (s *CountingSink) Gauge(metric MetricName) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gauges[metric.Name]
}

// Samples returns a copy of the observed samples for metric.
func (s *CountingSink) Samples(metric MetricName) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.samples[metric.Name]...)
}
