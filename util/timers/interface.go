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

// Package timers provides the clocks that arm round deadlines.
package timers

import (
	"time"
)

// Clock hands out deadline channels measured from a zero point.
type Clock interface {
	// Zero returns a Clock whose zero point is now. Channels returned by the
	// previous clock may never fire.
	Zero() Clock

	// TimeoutAt returns a channel that fires delta after the zero point, or
	// one that is ready at once if that moment has passed.
	TimeoutAt(delta time.Duration) <-chan time.Time

	// GetTimeout is the wall clock time TimeoutAt(delta) fires at.
	GetTimeout(delta time.Duration) time.Time

	// Since is the time elapsed since the zero point.
	Since() time.Duration
}
