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
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"
)

// Spawner starts one worker process and returns its pid.  The heartbeat
// may be nil.
type Spawner interface {
	Spawn(age int) (int, Heartbeat, error)
}

// ProcTable is the part of the OS process table the pool uses.  Wait
// reaps one exited child without blocking; it returns pid 0 when children
// exist but none has exited.
type ProcTable interface {
	Wait() (int, unix.WaitStatus, error)
	Kill(pid int, sig unix.Signal) error
}

// PoolConfig parameterizes a Pool.
type PoolConfig struct {
	// Target is the number of workers to keep alive.
	Target int
	// Timeout is the worker health timeout; 0 disables enforcement.
	Timeout time.Duration
	// Jitter bounds the random delay between consecutive spawns.
	Jitter time.Duration
	// RatePeriod is the period over which at most Target spawns are
	// allowed; 0 disables the limit.
	RatePeriod time.Duration
}

// Pool is the arbiter's table of live workers.  It is owned by the
// control loop and is not safe for concurrent use.
type Pool struct {
	target    int
	timeout   time.Duration
	jitter    time.Duration
	workers   map[int]*WorkerHandle
	age       int
	reexecPid int

	spawner Spawner
	procs   ProcTable
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *Metrics

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func NewPool(cfg PoolConfig, spawner Spawner, procs ProcTable, logger *slog.Logger, m *Metrics) *Pool {
	if logger == nil {
		logger = discardLogger()
	}
	p := &Pool{
		target:  cfg.Target,
		timeout: cfg.Timeout,
		jitter:  cfg.Jitter,
		workers: make(map[int]*WorkerHandle),
		spawner: spawner,
		procs:   procs,
		logger:  logger,
		metrics: m,
		now:     time.Now,
		sleep:   sleepContext,
	}
	if cfg.RatePeriod > 0 && cfg.Target > 0 {
		every := cfg.RatePeriod / time.Duration(cfg.Target)
		p.limiter = rate.NewLimiter(rate.Every(every), cfg.Target)
	}
	return p
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Target is the number of workers the pool converges to.
func (p *Pool) Target() int {
	return p.target
}

// Timeout is the current worker timeout; zero means disabled.
func (p *Pool) Timeout() time.Duration {
	return p.timeout
}

// SetTimeout applies a reloaded timeout to the next enforcement pass.
func (p *Pool) SetTimeout(d time.Duration) {
	p.timeout = d
}

// Len is the number of tracked workers.
func (p *Pool) Len() int {
	return len(p.workers)
}

// Age is the most recently assigned age.
func (p *Pool) Age() int {
	return p.age
}

// SetReexecPid records the pid of a re-executed arbiter, so that its exit
// is not mistaken for a worker's.
func (p *Pool) SetReexecPid(pid int) {
	p.reexecPid = pid
}

// ReexecPid is the pid of the re-executed arbiter, or zero.
func (p *Pool) ReexecPid() int {
	return p.reexecPid
}

// Workers returns a snapshot of the tracked workers, oldest first.
func (p *Pool) Workers() []WorkerInfo {
	rv := make([]WorkerInfo, 0, len(p.workers))
	for _, h := range p.workers {
		rv = append(rv, h.info())
	}
	sort.Slice(rv, func(i, j int) bool {
		return rv[i].Age < rv[j].Age
	})
	return rv
}

// Reconcile spawns workers until the pool reaches its target.  It stops
// early when ctx is cancelled, when a spawn fails, or when the spawn rate
// limit is exhausted.
func (p *Pool) Reconcile(ctx context.Context) error {
	for len(p.workers) < p.target {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.limiter != nil && !p.limiter.Allow() {
			p.metrics.spawnFailed()
			return ErrRateLimited
		}
		if _, err := p.Spawn(); err != nil {
			return err
		}
		if len(p.workers) < p.target && p.jitter > 0 {
			if err := p.sleep(ctx, rand.N(p.jitter)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Spawn starts one worker with the next age.
func (p *Pool) Spawn() (*WorkerHandle, error) {
	p.age++
	age := p.age
	pid, hb, err := p.spawner.Spawn(age)
	if err != nil {
		p.metrics.spawnFailed()
		return nil, fmt.Errorf("%w: age %d: %v", ErrSpawnFailed, age, err)
	}
	h := &WorkerHandle{Pid: pid, Age: age, Started: p.now(), heartbeat: hb}
	p.workers[pid] = h
	p.metrics.spawnOK()
	p.metrics.setWorkers(len(p.workers))
	p.logger.Info("Booting worker", "pid", pid, "age", age)
	return h, nil
}

// Reap collects every exited child.  Workers are removed from the table
// whether or not they were still tracked.
func (p *Pool) Reap() []Exit {
	var exits []Exit
	for {
		pid, ws, err := p.procs.Wait()
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			if err != unix.ECHILD {
				p.logger.Warn("Failed to reap children", "error", err)
			}
			break
		}
		if pid <= 0 {
			break
		}

		if pid == p.reexecPid {
			p.reexecPid = 0
			exits = append(exits, Exit{Pid: pid, Reexec: true})
			continue
		}

		e := ClassifyExit(pid, ws)
		switch e.Kind {
		case ExitClean:
			p.logger.Debug(e.String(), "pid", pid)
		default:
			p.logger.Error(e.String(), "pid", pid)
		}
		p.metrics.reap(e.result())
		p.forget(pid)
		exits = append(exits, e)
	}
	return exits
}

// EnforceTimeouts escalates against workers that have stopped proving
// they are alive: the first pass sends ABRT, the next one KILL.
func (p *Pool) EnforceTimeouts() {
	if p.timeout <= 0 {
		return
	}
	now := p.now()
	for pid, h := range p.workers {
		if h.IsAborted() {
			p.kill(pid, unix.SIGKILL)
			p.metrics.timeout("kill")
			p.forget(pid)
			continue
		}
		if now.Sub(h.lastSeen()) <= p.timeout {
			continue
		}
		p.logger.Log(context.Background(), LevelCritical, "WORKER TIMEOUT", "pid", pid)
		h.SetAborted(true)
		p.kill(pid, unix.SIGABRT)
		p.metrics.timeout("abort")
	}
}

// KillAll sends sig to every tracked worker.
func (p *Pool) KillAll(sig unix.Signal) {
	for pid := range p.workers {
		p.kill(pid, sig)
	}
}

func (p *Pool) kill(pid int, sig unix.Signal) {
	err := p.procs.Kill(pid, sig)
	if err == unix.ESRCH {
		p.forget(pid)
		return
	}
	if err != nil {
		p.logger.Warn("Failed to signal worker", "pid", pid, "signal", SignalName(sig), "error", err)
	}
}

func (p *Pool) forget(pid int) {
	if h, ok := p.workers[pid]; ok {
		h.release()
		delete(p.workers, pid)
		p.metrics.setWorkers(len(p.workers))
	}
}
