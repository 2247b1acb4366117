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
	"slices"
	"sync"
	"time"
)

// WorkerInfo is the published view of one worker.
type WorkerInfo struct {
	Pid      int       `json:"pid"`
	Age      int       `json:"age"`
	Aborted  bool      `json:"aborted"`
	Started  time.Time `json:"started"`
	LastSeen time.Time `json:"lastSeen"`
}

// Status is an immutable snapshot of the arbiter, published after every
// loop iteration.
type Status struct {
	Id         string       `json:"id"`
	Name       string       `json:"name"`
	ProcName   string       `json:"procName"`
	Pid        int          `json:"pid"`
	MasterPid  int          `json:"masterPid,omitempty"`
	ReexecPid  int          `json:"reexecPid,omitempty"`
	State      string       `json:"state"`
	WorkerType string       `json:"workerClass"`
	Target     int          `json:"target"`
	Timeout    int          `json:"timeout"`
	QueueDepth int          `json:"queueDepth"`
	Listeners  []string     `json:"listeners"`
	Workers    []WorkerInfo `json:"workers"`
	Serial     int64        `json:"serial,string"`
	CreateTime time.Time    `json:"createTime"`
	UpdateTime time.Time    `json:"updateTime"`
}

// sameAs compares everything but the bookkeeping fields.
func (s Status) sameAs(o Status) bool {
	if s.Id != o.Id || s.Name != o.Name || s.ProcName != o.ProcName ||
		s.Pid != o.Pid || s.MasterPid != o.MasterPid ||
		s.ReexecPid != o.ReexecPid || s.State != o.State ||
		s.WorkerType != o.WorkerType || s.Target != o.Target ||
		s.Timeout != o.Timeout || s.QueueDepth != o.QueueDepth {
		return false
	}
	if !slices.Equal(s.Listeners, o.Listeners) {
		return false
	}
	return slices.EqualFunc(s.Workers, o.Workers, func(a, b WorkerInfo) bool {
		return a.Pid == b.Pid && a.Age == b.Age && a.Aborted == b.Aborted
	})
}

// StatusBoard holds the latest Status.  Readers may wait for it to change
// by serial number.
type StatusBoard struct {
	cur        Status
	serial     int64
	createTime time.Time
	mx         sync.Mutex
	cvs        map[*sync.Cond]bool
}

func NewStatusBoard() *StatusBoard {
	now := time.Now()
	// Starting at the current time means a restarted arbiter never
	// repeats a serial a client may still hold.
	return &StatusBoard{
		serial:     now.UnixNano(),
		createTime: now,
		cvs:        make(map[*sync.Cond]bool),
	}
}

// Publish replaces the snapshot.  The serial only moves when something
// other than timestamps changed.
func (b *StatusBoard) Publish(s Status) {
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.cur.UpdateTime.IsZero() || !s.sameAs(b.cur) {
		b.serial++
		s.UpdateTime = time.Now()
		for cv := range b.cvs {
			cv.Broadcast()
		}
	} else {
		s.UpdateTime = b.cur.UpdateTime
	}
	s.Serial = b.serial
	s.CreateTime = b.createTime
	b.cur = s
}

// Get returns the latest snapshot.
func (b *StatusBoard) Get() Status {
	b.mx.Lock()
	defer b.mx.Unlock()
	s := b.cur
	s.Serial = b.serial
	s.CreateTime = b.createTime
	return s
}

func (b *StatusBoard) Serial() int64 {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.serial
}

// Watch waits for the serial to differ from old, for at most expire.  It
// returns the current serial.  Zero expire polls.
func (b *StatusBoard) Watch(old int64, expire time.Duration) int64 {
	expired := false
	cv := sync.NewCond(&b.mx)
	var timer *time.Timer

	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			b.mx.Lock()
			expired = true
			cv.Broadcast()
			b.mx.Unlock()
		})
	} else {
		expired = true
	}

	b.mx.Lock()
	b.cvs[cv] = true
	for b.serial == old && !expired {
		cv.Wait()
	}
	rv := b.serial
	delete(b.cvs, cv)
	b.mx.Unlock()
	if timer != nil {
		timer.Stop()
	}
	return rv
}
