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

package logging

import (
	"fmt"
	"os"

	"github.com/algorand/go-deadlock"
)

// CyclicFileWriter writes to a live file that never grows past a limit.
// When a write would cross it, the live file replaces the archive and a
// new live file is started.
type CyclicFileWriter struct {
	mu      deadlock.Mutex
	file    *os.File
	live    string
	archive string
	written uint64
	limit   uint64
}

// MakeCyclicFileWriter opens live for appending, continuing after its
// current contents.
func MakeCyclicFileWriter(live, archive string, limit uint64) (*CyclicFileWriter, error) {
	w := &CyclicFileWriter{live: live, archive: archive, limit: limit}
	if fi, err := os.Stat(live); err == nil {
		w.written = uint64(fi.Size())
	}
	f, err := os.OpenFile(live, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	w.file = f
	return w, nil
}

// Write implements io.Writer.
func (w *CyclicFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if uint64(len(p)) > w.limit {
		return 0, fmt.Errorf("log entry of %d bytes exceeds the %d byte limit", len(p), w.limit)
	}
	if w.written+uint64(len(p)) > w.limit {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.written += uint64(n)
	return n, err
}

func (w *CyclicFileWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(w.live, w.archive); err != nil {
		return fmt.Errorf("archiving full log: %w", err)
	}
	f, err := os.OpenFile(w.live, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("reopening log file: %w", err)
	}
	w.file = f
	w.written = 0
	return nil
}

// Close closes the live file.
func (w *CyclicFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
