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

//go:build unix

package swoop

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Waker is the arbiter's wakeup channel: a connected socket pair.  A
// signal goroutine writes a byte to one end, the control loop waits on
// the other end with a bounded timeout.  Both ends are non-blocking, so
// a full buffer simply means a wakeup is already pending.
type Waker struct {
	r      int
	w      int
	closed bool
	mx     sync.RWMutex
}

// NewWaker creates the socket pair.
func NewWaker() (*Waker, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, err
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return nil, err
		}
	}
	return &Waker{r: fds[0], w: fds[1]}, nil
}

// Wake interrupts a pending (or the next) Wait.
func (w *Waker) Wake() {
	w.mx.RLock()
	defer w.mx.RUnlock()
	if w.closed {
		return
	}
	for {
		_, err := unix.Write(w.w, []byte{'.'})
		if err != unix.EINTR {
			// EAGAIN means the buffer is full of wakeups already.
			return
		}
	}
}

// Wait blocks for at most timeout, returning true if it was woken up.
// All pending wakeups are consumed.
func (w *Waker) Wait(timeout time.Duration) (bool, error) {
	w.mx.RLock()
	defer w.mx.RUnlock()
	if w.closed {
		return false, ErrNotRunning
	}

	ms := int(timeout / time.Millisecond)
	if ms < 0 {
		ms = 0
	}
	fds := []unix.PollFd{{Fd: int32(w.r), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, ms)
	switch {
	case err == unix.EINTR:
		return false, nil
	case err != nil:
		return false, err
	case n == 0:
		return false, nil
	}
	return w.drain(), nil
}

func (w *Waker) drain() bool {
	woke := false
	buf := make([]byte, 64)
	for {
		n, err := unix.Read(w.r, buf)
		if err == unix.EINTR {
			continue
		}
		if n <= 0 || err != nil {
			return woke
		}
		woke = true
		if n < len(buf) {
			return woke
		}
	}
}

// Close releases both ends.  Further Wake calls are ignored.
func (w *Waker) Close() error {
	w.mx.Lock()
	defer w.mx.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	unix.Close(w.w)
	return unix.Close(w.r)
}
