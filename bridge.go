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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Bridge turns asynchronous signal delivery into state the control loop
// can consume synchronously.  Nothing here touches the worker pool: CHLD
// and INT only raise flags, queued signals go into the bounded queue, and
// every arrival wakes the loop.
type Bridge struct {
	queue       SignalQueue
	waker       *Waker
	child       atomic.Bool
	interrupted atomic.Bool
	onInterrupt func()
	metrics     *Metrics
	logger      *slog.Logger

	sigs chan os.Signal
	done chan struct{}
	once sync.Once
}

// NewBridge creates a bridge that wakes w.  onInterrupt, if not nil, is
// called (from the signal goroutine) as soon as INT arrives, so that a
// spawn in progress can be abandoned.
func NewBridge(w *Waker, onInterrupt func(), logger *slog.Logger, m *Metrics) *Bridge {
	if logger == nil {
		logger = discardLogger()
	}
	return &Bridge{
		waker:       w,
		onInterrupt: onInterrupt,
		logger:      logger,
		metrics:     m,
		done:        make(chan struct{}),
	}
}

// Start installs the OS signal handlers.
func (b *Bridge) Start() {
	b.sigs = make(chan os.Signal, 16)
	kinds := RecognizedSignals()
	sigs := make([]os.Signal, 0, len(kinds))
	for _, k := range kinds {
		sigs = append(sigs, k.Signal())
	}
	signal.Notify(b.sigs, sigs...)
	go b.run()
}

func (b *Bridge) run() {
	for {
		select {
		case s := <-b.sigs:
			if sig, ok := s.(unix.Signal); ok {
				b.Deliver(SignalKind(sig))
			}
		case <-b.done:
			return
		}
	}
}

// Stop uninstalls the handlers.  Signals arriving afterwards get their
// default disposition.
func (b *Bridge) Stop() {
	b.once.Do(func() {
		if b.sigs != nil {
			signal.Stop(b.sigs)
		}
		close(b.done)
	})
}

// Deliver classifies one signal exactly as if the OS had sent it.
func (b *Bridge) Deliver(k SignalKind) {
	b.metrics.signal(k)
	switch {
	case k == SigCHLD:
		b.child.Store(true)
	case k == SigINT:
		b.interrupted.Store(true)
		if b.onInterrupt != nil {
			b.onInterrupt()
		}
	default:
		if !b.queue.Push(k) {
			b.metrics.drop()
			b.logger.Debug("Signal queue full, dropping signal", "signal", k.String())
			return
		}
		b.metrics.setQueueDepth(b.queue.Len())
	}
	b.waker.Wake()
}

// Inject lets in-process producers (the config watcher, the status API)
// raise a queued signal.
func (b *Bridge) Inject(k SignalKind) error {
	if !k.Queued() {
		return fmt.Errorf("signal %s cannot be injected", k)
	}
	b.Deliver(k)
	return nil
}

// TakeChild reports, and clears, a pending CHLD.
func (b *Bridge) TakeChild() bool {
	return b.child.Swap(false)
}

// Interrupted reports whether INT has been received.  It is never cleared.
func (b *Bridge) Interrupted() bool {
	return b.interrupted.Load()
}

// Next dequeues the oldest queued signal.
func (b *Bridge) Next() (SignalKind, bool) {
	k, ok := b.queue.Pop()
	b.metrics.setQueueDepth(b.queue.Len())
	return k, ok
}

// Pending is the number of queued signals.
func (b *Bridge) Pending() int {
	return b.queue.Len()
}
