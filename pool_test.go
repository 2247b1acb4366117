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
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/sys/unix"
)

func newTestPool(t *testing.T, cfg PoolConfig, procs *testProcs, clock *testClock) *Pool {
	p := NewPool(cfg, procs, procs, testLogger(t), NewMetrics())
	p.now = clock.Now
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestPoolReconcile(t *testing.T) {
	Convey("Given a pool with a target of 3", t, func() {
		procs := newTestProcs()
		p := newTestPool(t, PoolConfig{Target: 3, Jitter: time.Millisecond}, procs, newTestClock())

		Convey("Reconcile spawns up to the target", func() {
			So(p.Reconcile(context.Background()), ShouldBeNil)
			So(p.Len(), ShouldEqual, 3)
			So(procs.ages, ShouldResemble, []int{1, 2, 3})

			Convey("And never beyond it", func() {
				So(p.Reconcile(context.Background()), ShouldBeNil)
				So(p.Len(), ShouldEqual, 3)
				So(procs.spawned(), ShouldEqual, 3)
			})

			Convey("A dead worker is replaced with a new age", func() {
				ws := p.Workers()
				procs.exit(ws[1].Pid, exitedStatus(3))
				exits := p.Reap()
				So(len(exits), ShouldEqual, 1)
				So(exits[0].Kind, ShouldEqual, ExitNonZero)
				So(exits[0].Code, ShouldEqual, 3)
				So(p.Len(), ShouldEqual, 2)

				So(p.Reconcile(context.Background()), ShouldBeNil)
				So(p.Len(), ShouldEqual, 3)
				So(p.Age(), ShouldEqual, 4)
				ws = p.Workers()
				So(ws[2].Age, ShouldEqual, 4)
			})
		})

		Convey("A cancelled context stops spawning", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			So(errors.Is(p.Reconcile(ctx), context.Canceled), ShouldBeTrue)
			So(p.Len(), ShouldEqual, 0)
		})

		Convey("A spawn failure leaves the table alone", func() {
			procs.setFail(true)
			err := p.Reconcile(context.Background())
			So(errors.Is(err, ErrSpawnFailed), ShouldBeTrue)
			So(isRecoverable(err), ShouldBeTrue)
			So(p.Len(), ShouldEqual, 0)

			procs.setFail(false)
			So(p.Reconcile(context.Background()), ShouldBeNil)
			So(p.Len(), ShouldEqual, 3)
			// Ages are never reused, even after a failed attempt.
			So(procs.ages, ShouldResemble, []int{2, 3, 4})
		})
	})

	Convey("Given a rate limited pool", t, func() {
		procs := newTestProcs()
		p := newTestPool(t, PoolConfig{Target: 2, RatePeriod: time.Hour}, procs, newTestClock())

		So(p.Reconcile(context.Background()), ShouldBeNil)
		So(p.Len(), ShouldEqual, 2)

		Convey("A crash loop is throttled", func() {
			p.KillAll(unix.SIGKILL)
			p.Reap()
			So(p.Len(), ShouldEqual, 0)

			err := p.Reconcile(context.Background())
			So(errors.Is(err, ErrRateLimited), ShouldBeTrue)
			So(isRecoverable(err), ShouldBeTrue)
			So(p.Len(), ShouldEqual, 0)
			So(procs.spawned(), ShouldEqual, 2)
		})
	})
}

func TestPoolReap(t *testing.T) {
	Convey("Given a pool with two workers", t, func() {
		procs := newTestProcs()
		p := newTestPool(t, PoolConfig{Target: 2}, procs, newTestClock())
		So(p.Reconcile(context.Background()), ShouldBeNil)
		ws := p.Workers()
		So(len(ws), ShouldEqual, 2)

		Convey("Reaping with nothing exited changes nothing", func() {
			So(p.Reap(), ShouldBeEmpty)
			So(p.Len(), ShouldEqual, 2)
		})

		Convey("Reaping is idempotent", func() {
			procs.exit(ws[0].Pid, exitedStatus(0))
			exits := p.Reap()
			So(len(exits), ShouldEqual, 1)
			So(exits[0].Kind, ShouldEqual, ExitClean)
			So(p.Len(), ShouldEqual, 1)

			So(p.Reap(), ShouldBeEmpty)
			So(p.Len(), ShouldEqual, 1)
		})

		Convey("Unknown children are reaped without touching the table", func() {
			procs.addChild(42)
			procs.exit(42, exitedStatus(0))
			exits := p.Reap()
			So(len(exits), ShouldEqual, 1)
			So(exits[0].Pid, ShouldEqual, 42)
			So(p.Len(), ShouldEqual, 2)
		})

		Convey("Several exits are collected in one pass", func() {
			procs.exit(ws[0].Pid, signaledStatus(unix.SIGKILL))
			procs.exit(ws[1].Pid, signaledStatus(unix.SIGSEGV))
			exits := p.Reap()
			So(len(exits), ShouldEqual, 2)
			So(exits[0].Kind, ShouldEqual, ExitSignaled)
			So(exits[0].String(), ShouldEndWith, "Perhaps out of memory?")
			So(exits[1].Signal, ShouldEqual, unix.SIGSEGV)
			So(p.Len(), ShouldEqual, 0)
		})

		Convey("The re-executed arbiter is cleared silently", func() {
			procs.addChild(77)
			p.SetReexecPid(77)
			procs.exit(77, exitedStatus(1))
			exits := p.Reap()
			So(len(exits), ShouldEqual, 1)
			So(exits[0].Reexec, ShouldBeTrue)
			So(p.ReexecPid(), ShouldEqual, 0)
			So(p.Len(), ShouldEqual, 2)
		})

		Convey("Killing a vanished worker forgets it", func() {
			procs.mx.Lock()
			delete(procs.live, ws[0].Pid)
			procs.mx.Unlock()
			p.KillAll(unix.SIGTERM)
			So(p.Len(), ShouldEqual, 1)
		})
	})
}

func TestPoolTimeouts(t *testing.T) {
	Convey("Given a pool with a timeout", t, func() {
		procs := newTestProcs()
		procs.autoReap = false
		beats := map[int]*testHeartbeat{}
		clock := newTestClock()
		procs.heartbeat = func(pid int) Heartbeat {
			hb := &testHeartbeat{last: clock.Now()}
			beats[pid] = hb
			return hb
		}
		p := newTestPool(t, PoolConfig{Target: 2, Timeout: 10 * time.Second}, procs, clock)
		So(p.Reconcile(context.Background()), ShouldBeNil)
		ws := p.Workers()
		stuck, busy := ws[0].Pid, ws[1].Pid

		Convey("Healthy workers are left alone", func() {
			clock.Advance(5 * time.Second)
			p.EnforceTimeouts()
			So(procs.kills, ShouldBeEmpty)
		})

		Convey("Escalation goes ABRT then KILL", func() {
			clock.Advance(11 * time.Second)
			beats[busy].last = clock.Now()

			p.EnforceTimeouts()
			So(procs.killsFor(stuck), ShouldResemble, []unix.Signal{unix.SIGABRT})
			So(procs.killsFor(busy), ShouldBeEmpty)
			So(p.Len(), ShouldEqual, 2)
			So(p.Workers()[0].Aborted, ShouldBeTrue)

			p.EnforceTimeouts()
			So(procs.killsFor(stuck), ShouldResemble, []unix.Signal{unix.SIGABRT, unix.SIGKILL})
			So(p.Len(), ShouldEqual, 1)
			So(beats[stuck].closed, ShouldBeTrue)

			// Nothing further is ever sent to the forgotten worker.
			p.EnforceTimeouts()
			So(len(procs.killsFor(stuck)), ShouldEqual, 2)
		})

		Convey("A zero timeout disables enforcement", func() {
			p.SetTimeout(0)
			clock.Advance(time.Hour)
			p.EnforceTimeouts()
			So(procs.kills, ShouldBeEmpty)
		})
	})

	Convey("Workers without a heartbeat age from their start", t, func() {
		procs := newTestProcs()
		procs.autoReap = false
		clock := newTestClock()
		p := newTestPool(t, PoolConfig{Target: 1, Timeout: time.Second}, procs, clock)
		So(p.Reconcile(context.Background()), ShouldBeNil)
		pid := p.Workers()[0].Pid

		clock.Advance(2 * time.Second)
		p.EnforceTimeouts()
		So(procs.killsFor(pid), ShouldResemble, []unix.Signal{unix.SIGABRT})
	})
}
