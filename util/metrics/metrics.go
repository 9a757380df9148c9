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

// Package metrics defines the observability sink consumed by the consensus
// components. Components receive a Sink instead of touching process-wide
// registries, which lets tests count events with a CountingSink.
package metrics

// MetricName describes the name and description of a single metric
type MetricName struct {
	Name        string
	Description string
}

// Sink receives metric updates.
type Sink interface {
	// Inc increases the counter by 1.
	Inc(metric MetricName, labels map[string]string)
	// Add increases the counter by x.
	Add(metric MetricName, x uint64, labels map[string]string)
	// Set sets a gauge.
	Set(metric MetricName, value float64)
	// Observe records a sample, usually a duration in seconds.
	Observe(metric MetricName, value float64)
}

// NopSink discards everything.
type NopSink struct{}

// Inc implements Sink.
func (NopSink) Inc(MetricName, map[string]string) {}

// Add implements Sink.
func (NopSink) Add(MetricName, uint64, map[string]string) {}

// Set implements Sink.
func (NopSink) Set(MetricName, float64) {}

// Observe implements Sink.
func (NopSink) Observe(MetricName, float64) {}
