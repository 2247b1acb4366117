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
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// fileHeartbeat is an unlinked temporary file shared by the arbiter and
// one worker.  The worker bumps its modification time, the arbiter reads
// it back.
type fileHeartbeat struct {
	f *os.File
}

func newFileHeartbeat() (*fileHeartbeat, error) {
	f, err := os.CreateTemp("", "swoop-wtmp-")
	if err != nil {
		return nil, err
	}
	if err := os.Remove(f.Name()); err != nil {
		f.Close()
		return nil, err
	}
	return &fileHeartbeat{f: f}, nil
}

// heartbeatFromFd adopts the descriptor inherited by a worker.
func heartbeatFromFd(fd int) *fileHeartbeat {
	return &fileHeartbeat{f: os.NewFile(uintptr(fd), "heartbeat")}
}

func (h *fileHeartbeat) LastUpdate() (time.Time, error) {
	fi, err := h.f.Stat()
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}

func (h *fileHeartbeat) Notify() error {
	tv := unix.NsecToTimeval(time.Now().UnixNano())
	return unix.Futimes(int(h.f.Fd()), []unix.Timeval{tv, tv})
}

func (h *fileHeartbeat) Close() error {
	return h.f.Close()
}
