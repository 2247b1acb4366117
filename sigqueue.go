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
	"sync"
)

// SignalQueueSize is the capacity of the arbiter's signal queue.
const SignalQueueSize = 5

// SignalQueue is a fixed size FIFO of pending signals.  When the queue is
// full, new signals are dropped rather than blocking the producer; losing
// a burst of repeated operator signals is acceptable, stalling signal
// delivery is not.
type SignalQueue struct {
	ring  [SignalQueueSize]SignalKind
	head  int
	count int
	mx    sync.Mutex
}

// Push appends the signal, returning false if it was dropped.
func (q *SignalQueue) Push(k SignalKind) bool {
	q.mx.Lock()
	defer q.mx.Unlock()
	if q.count == len(q.ring) {
		return false
	}
	q.ring[(q.head+q.count)%len(q.ring)] = k
	q.count++
	return true
}

// Pop removes the oldest signal.  The second value is false when the
// queue is empty.
func (q *SignalQueue) Pop() (SignalKind, bool) {
	q.mx.Lock()
	defer q.mx.Unlock()
	if q.count == 0 {
		return 0, false
	}
	k := q.ring[q.head]
	q.head = (q.head + 1) % len(q.ring)
	q.count--
	return k, true
}

func (q *SignalQueue) Len() int {
	q.mx.Lock()
	defer q.mx.Unlock()
	return q.count
}
