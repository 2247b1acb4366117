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
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// Runtime is the state every worker class shares: liveness, the parent
// it was spawned by, and the signal handling that stops it.  Worker
// classes embed it.
type Runtime struct {
	Params WorkerParams

	logger      *slog.Logger
	alive       atomic.Bool
	aborted     atomic.Bool
	booted      bool
	served      int
	maxRequests int

	getppid func() int
	exit    func(int)
	sleep   func(time.Duration)

	sigs chan os.Signal
	done chan struct{}
	once sync.Once
}

// NewRuntime prepares a worker runtime.  The worker is alive until it is
// told otherwise.
func NewRuntime(p WorkerParams) *Runtime {
	r := &Runtime{
		Params:  p,
		logger:  p.Logger,
		getppid: unix.Getppid,
		exit:    os.Exit,
		sleep:   time.Sleep,
		done:    make(chan struct{}),
	}
	if r.logger == nil {
		r.logger = discardLogger()
	}
	if r.Params.ParentPid == 0 {
		r.Params.ParentPid = unix.Getppid()
	}
	if c := p.Config; c != nil && c.MaxRequests > 0 {
		r.maxRequests = c.MaxRequests
		if c.MaxRequestsJitter > 0 {
			r.maxRequests += rand.IntN(c.MaxRequestsJitter + 1)
		}
	}
	r.alive.Store(true)
	return r
}

// Boot installs the signal handlers, once, and then runs the serving
// loop.  Worker classes call it from Init.
func (r *Runtime) Boot(run func() error) error {
	r.once.Do(r.initSignals)
	r.booted = true
	defer r.stopSignals()
	return run()
}

func (r *Runtime) initSignals() {
	r.sigs = make(chan os.Signal, 4)
	// ABRT must be caught, or the Go runtime would dump every goroutine
	// and exit with its own status.
	signal.Notify(r.sigs,
		unix.SIGQUIT, unix.SIGINT, unix.SIGTERM, unix.SIGABRT,
		unix.SIGWINCH, unix.SIGUSR1)
	// Signals meant for the arbiter only.
	signal.Ignore(unix.SIGHUP, unix.SIGUSR2, unix.SIGTTIN, unix.SIGTTOU)
	go func() {
		for {
			select {
			case s := <-r.sigs:
				if sig, ok := s.(unix.Signal); ok {
					r.handleSignal(sig)
				}
			case <-r.done:
				return
			}
		}
	}()
}

func (r *Runtime) stopSignals() {
	if r.sigs != nil {
		signal.Stop(r.sigs)
		close(r.done)
		r.sigs = nil
	}
}

func (r *Runtime) handleSignal(sig unix.Signal) {
	switch sig {
	case unix.SIGQUIT, unix.SIGINT:
		r.alive.Store(false)
		r.sleep(100 * time.Millisecond)
		r.exit(0)
	case unix.SIGTERM:
		r.alive.Store(false)
	case unix.SIGABRT:
		r.alive.Store(false)
		r.SetAborted(true)
		r.logger.Warn("Worker aborted", "pid", os.Getpid())
		r.exit(1)
	case unix.SIGWINCH:
		r.logger.Debug("Ignoring WINCH in worker", "pid", os.Getpid())
	case unix.SIGUSR1:
		r.logger.Info("Worker received USR1", "pid", os.Getpid())
	}
}

// Alive reports whether the serving loop should continue.
func (r *Runtime) Alive() bool {
	return r.alive.Load()
}

// Booted reports whether Boot has run.
func (r *Runtime) Booted() bool {
	return r.booted
}

func (r *Runtime) IsAborted() bool {
	return r.aborted.Load()
}

func (r *Runtime) SetAborted(v bool) {
	r.aborted.Store(v)
}

// ParentAlive reports whether the process that spawned us is still our
// parent.  Once it is not, the worker has been orphaned and must stop.
func (r *Runtime) ParentAlive() bool {
	if r.getppid() == r.Params.ParentPid {
		return true
	}
	r.logger.Info("Parent changed, shutting down", "pid", os.Getpid())
	r.alive.Store(false)
	return false
}

// Notify tells the arbiter this worker is still making progress.
func (r *Runtime) Notify() {
	if hb := r.Params.Heartbeat; hb != nil {
		if err := hb.Notify(); err != nil {
			r.logger.Debug("Heartbeat failed", "error", err)
		}
	}
}

// RequestServed counts a handled connection.  When the worker reaches
// its request limit it stops, and the arbiter replaces it.
func (r *Runtime) RequestServed() {
	r.served++
	if r.maxRequests > 0 && r.served >= r.maxRequests {
		r.logger.Info("Autorestarting worker after current request.", "pid", os.Getpid())
		r.alive.Store(false)
	}
}

// Served is the number of connections handled so far.
func (r *Runtime) Served() int {
	return r.served
}
