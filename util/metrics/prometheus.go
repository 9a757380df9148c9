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

	"github.com/algorand/go-deadlock"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink forwards updates to prometheus collectors, created lazily on
// first use. A counter's label names are fixed by the first update it sees;
// later updates with a different label set are counted without labels.
type PrometheusSink struct {
	mu         deadlock.Mutex
	reg        prometheus.Registerer
	namespace  string
	counters   map[string]*prometheus.CounterVec
	labelNames map[string][]string
	gauges     map[string]prometheus.Gauge
	histograms map[string]prometheus.Histogram
}

// MakePrometheusSink creates a sink registering with reg, or with the default
// registerer when reg is nil.
func MakePrometheusSink(namespace string, reg prometheus.Registerer) *PrometheusSink {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusSink{
		reg:        reg,
		namespace:  namespace,
		counters:   make(map[string]*prometheus.CounterVec),
		labelNames: make(map[string][]string),
		gauges:     make(map[string]prometheus.Gauge),
		histograms: make(map[string]prometheus.Histogram),
	}
}

func sortedKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sameKeys(names []string, labels map[string]string) bool {
	if len(names) != len(labels) {
		return false
	}
	for _, n := range names {
		if _, ok := labels[n]; !ok {
			return false
		}
	}
	return true
}

func (s *PrometheusSink) counter(metric MetricName, labels map[string]string) prometheus.Counter {
	s.mu.Lock()
	defer s.mu.Unlock()
	vec, ok := s.counters[metric.Name]
	if !ok {
		names := sortedKeys(labels)
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: s.namespace,
			Name:      metric.Name,
			Help:      metric.Description,
		}, names)
		if err := s.reg.Register(vec); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				vec = are.ExistingCollector.(*prometheus.CounterVec)
			}
		}
		s.counters[metric.Name] = vec
		s.labelNames[metric.Name] = names
	}
	names := s.labelNames[metric.Name]
	if !sameKeys(names, labels) {
		labels = make(map[string]string, len(names))
		for _, n := range names {
			labels[n] = ""
		}
	}
	return vec.With(labels)
}

// Inc implements Sink.
func (s *PrometheusSink) Inc(metric MetricName, labels map[string]string) {
	s.counter(metric, labels).Inc()
}

// Add implements Sink.
func (s *PrometheusSink) Add(metric MetricName, x uint64, labels map[string]string) {
	s.counter(metric, labels).Add(float64(x))
}

// Set implements Sink.
func (s *PrometheusSink) Set(metric MetricName, value float64) {
	s.mu.Lock()
	g, ok := s.gauges[metric.Name]
	if !ok {
		g = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: s.namespace,
			Name:      metric.Name,
			Help:      metric.Description,
		})
		if err := s.reg.Register(g); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				g = are.ExistingCollector.(prometheus.Gauge)
			}
		}
		s.gauges[metric.Name] = g
	}
	s.mu.Unlock()
	g.Set(value)
}

// Observe implements Sink.
func (s *PrometheusSink) Observe(metric MetricName, value float64) {
	s.mu.Lock()
	h, ok := s.histograms[metric.Name]
	if !ok {
		h = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: s.namespace,
			Name:      metric.Name,
			Help:      metric.Description,
			Buckets:   prometheus.DefBuckets,
		})
		if err := s.reg.Register(h); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				h = are.ExistingCollector.(prometheus.Histogram)
			}
		}
		s.histograms[metric.Name] = h
	}
	s.mu.Unlock()
	h.Observe(value)
}
