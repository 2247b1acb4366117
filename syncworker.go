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
	"net"
	"os"
	"time"
)

// DefaultAcceptTimeout is used when a worker has no timeout of its own.
const DefaultAcceptTimeout = 500 * time.Millisecond

// SyncWorker serves one connection at a time.
type SyncWorker struct {
	*Runtime
}

func NewSyncWorker(p WorkerParams) *SyncWorker {
	return &SyncWorker{Runtime: NewRuntime(p)}
}

func (w *SyncWorker) Init() error {
	return w.Boot(w.Run)
}

type deadliner interface {
	SetDeadline(time.Time) error
}

func (w *SyncWorker) Run() error {
	timeout := w.Params.Timeout
	if timeout <= 0 {
		timeout = DefaultAcceptTimeout
	}
	switch ls := w.Params.Listeners; len(ls) {
	case 0:
		return ErrNoListeners
	case 1:
		return w.runForOne(ls[0], timeout)
	default:
		return w.runForMultiple(ls, timeout)
	}
}

func (w *SyncWorker) runForOne(l net.Listener, timeout time.Duration) error {
	for w.Alive() {
		w.Notify()
		if conn := w.accept(l, timeout); conn != nil {
			w.serve(conn)
		}
		if !w.ParentAlive() {
			return nil
		}
	}
	return nil
}

// accept waits at most timeout for a connection.  It returns nil when
// none arrived.
func (w *SyncWorker) accept(l net.Listener, timeout time.Duration) net.Conn {
	if d, ok := l.(deadliner); ok {
		d.SetDeadline(time.Now().Add(timeout))
	}
	conn, err := l.Accept()
	if err == nil {
		return conn
	}
	var ne net.Error
	switch {
	case errors.As(err, &ne) && ne.Timeout():
	case errors.Is(err, net.ErrClosed):
		w.alive.Store(false)
	default:
		w.logger.Debug("Accept failed", "pid", os.Getpid(), "error", err)
	}
	return nil
}

// runForMultiple accepts on every listener concurrently but still serves
// one connection at a time.
func (w *SyncWorker) runForMultiple(ls []net.Listener, timeout time.Duration) error {
	conns := make(chan net.Conn)
	done := make(chan struct{})
	defer close(done)

	for _, l := range ls {
		go func(l net.Listener) {
			for {
				select {
				case <-done:
					return
				default:
				}
				conn := w.accept(l, timeout)
				if conn == nil {
					if !w.Alive() {
						return
					}
					continue
				}
				select {
				case conns <- conn:
				case <-done:
					conn.Close()
					return
				}
			}
		}(l)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for w.Alive() {
		w.Notify()
		timer.Reset(timeout)
		select {
		case conn := <-conns:
			timer.Stop()
			w.serve(conn)
		case <-timer.C:
		}
		if !w.ParentAlive() {
			return nil
		}
	}
	return nil
}

func (w *SyncWorker) serve(conn net.Conn) {
	defer conn.Close()
	if err := w.Params.App.Handle(conn); err != nil {
		w.logger.Debug("Error handling connection", "pid", os.Getpid(), "error", err)
	}
	w.RequestServed()
}
