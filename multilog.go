// Copyright 2026 The Swoop Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package swoop

import (
	"io"
	"sync"
)

// MultiWriter fans every write out to a changing set of destinations.
// Unlike io.MultiWriter, destinations can be added and removed while
// logging is in progress, and a failing destination does not prevent the
// others from seeing the data.  Writes are expected to carry whole lines.
type MultiWriter struct {
	writers []io.Writer
	lock    sync.Mutex
}

// Write implements io.Writer.  The first error seen is returned, but
// every destination is attempted.
func (m *MultiWriter) Write(b []byte) (int, error) {
	var err error
	m.lock.Lock()
	defer m.lock.Unlock()
	for _, w := range m.writers {
		if _, e := w.Write(b); e != nil && err == nil {
			err = e
		}
	}
	return len(b), err
}

// AddWriter adds a destination.  A destination can only be added once.
func (m *MultiWriter) AddWriter(w io.Writer) {
	m.lock.Lock()
	defer m.lock.Unlock()
	for _, x := range m.writers {
		if x == w {
			return
		}
	}
	m.writers = append(m.writers, w)
}

// DelWriter removes a destination added earlier.
func (m *MultiWriter) DelWriter(w io.Writer) {
	m.lock.Lock()
	defer m.lock.Unlock()
	for i, x := range m.writers {
		if x == w {
			m.writers = append(m.writers[:i], m.writers[i+1:]...)
			break
		}
	}
}

func NewMultiWriter(writers ...io.Writer) *MultiWriter {
	m := &MultiWriter{}
	for _, w := range writers {
		m.AddWriter(w)
	}
	return m
}
