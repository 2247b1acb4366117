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
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

type testLog struct {
	t *testing.T
}

func (tl *testLog) Write(p []byte) (n int, err error) {
	s := string(p)
	s = strings.Trim(s, "\n")
	tl.t.Log(s)
	return len(p), nil
}

func testLogger(t *testing.T) *slog.Logger {
	return slog.New(NewLineHandler(&testLog{t}, LevelTrace))
}

// exitedStatus and signaledStatus build wait statuses in the traditional
// encoding shared by Linux and the BSDs.
func exitedStatus(code int) unix.WaitStatus {
	return unix.WaitStatus(code << 8)
}

func signaledStatus(sig unix.Signal) unix.WaitStatus {
	return unix.WaitStatus(sig)
}

type testHeartbeat struct {
	last   time.Time
	closed bool
}

func (h *testHeartbeat) LastUpdate() (time.Time, error) {
	return h.last, nil
}

func (h *testHeartbeat) Close() error {
	h.closed = true
	return nil
}

type testKill struct {
	pid int
	sig unix.Signal
}

type testExit struct {
	pid int
	ws  unix.WaitStatus
}

// testProcs plays the roles of both Spawner and ProcTable.  Spawned pids
// count up from 1000; killing a worker with a fatal signal queues its
// exit for the next Wait.
type testProcs struct {
	next      int
	live      map[int]bool
	exits     []testExit
	kills     []testKill
	ages      []int
	fail      bool
	autoReap  bool
	heartbeat func(pid int) Heartbeat
	mx        sync.Mutex
}

func newTestProcs() *testProcs {
	return &testProcs{next: 1000, live: make(map[int]bool), autoReap: true}
}

func (p *testProcs) Spawn(age int) (int, Heartbeat, error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.fail {
		return 0, nil, errors.New("injected spawn failure")
	}
	p.next++
	pid := p.next
	p.live[pid] = true
	p.ages = append(p.ages, age)
	var hb Heartbeat
	if p.heartbeat != nil {
		hb = p.heartbeat(pid)
	}
	return pid, hb, nil
}

func (p *testProcs) Wait() (int, unix.WaitStatus, error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	if len(p.exits) > 0 {
		e := p.exits[0]
		p.exits = p.exits[1:]
		delete(p.live, e.pid)
		return e.pid, e.ws, nil
	}
	if len(p.live) == 0 {
		return 0, 0, unix.ECHILD
	}
	return 0, 0, nil
}

func (p *testProcs) Kill(pid int, sig unix.Signal) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	if !p.live[pid] {
		return unix.ESRCH
	}
	p.kills = append(p.kills, testKill{pid, sig})
	if p.autoReap && sig != unix.SIGUSR1 && sig != unix.Signal(0) {
		p.exits = append(p.exits, testExit{pid, signaledStatus(sig)})
	}
	return nil
}

// exit makes pid exit with the given status.
func (p *testProcs) exit(pid int, ws unix.WaitStatus) {
	p.mx.Lock()
	p.exits = append(p.exits, testExit{pid, ws})
	p.mx.Unlock()
}

// addChild registers a child the pool does not know about.
func (p *testProcs) addChild(pid int) {
	p.mx.Lock()
	p.live[pid] = true
	p.mx.Unlock()
}

func (p *testProcs) killsFor(pid int) []unix.Signal {
	p.mx.Lock()
	defer p.mx.Unlock()
	var rv []unix.Signal
	for _, k := range p.kills {
		if k.pid == pid {
			rv = append(rv, k.sig)
		}
	}
	return rv
}

func (p *testProcs) spawned() int {
	p.mx.Lock()
	defer p.mx.Unlock()
	return len(p.ages)
}

func (p *testProcs) setAutoReap(v bool) {
	p.mx.Lock()
	p.autoReap = v
	p.mx.Unlock()
}

func (p *testProcs) setFail(v bool) {
	p.mx.Lock()
	p.fail = v
	p.mx.Unlock()
}

// testClock is a manually advanced clock.
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
