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
	"time"
)

// Heartbeat is the arbiter's view of a worker's liveness.
type Heartbeat interface {
	LastUpdate() (time.Time, error)
	Close() error
}

// Notifier is the worker's side of a heartbeat.
type Notifier interface {
	Notify() error
}

// WorkerHandle is the arbiter's record of one spawned worker.  The pid is
// its identity; the age is the spawn sequence number and only orders
// workers for display.
type WorkerHandle struct {
	Pid     int
	Age     int
	Started time.Time

	aborted   bool
	heartbeat Heartbeat
}

// IsAborted reports whether the soft kill has already been sent.
func (h *WorkerHandle) IsAborted() bool {
	return h.aborted
}

func (h *WorkerHandle) SetAborted(v bool) {
	h.aborted = v
}

// lastSeen is the last time the worker proved it was alive.  A worker
// without a heartbeat is only as alive as its start time.
func (h *WorkerHandle) lastSeen() time.Time {
	if h.heartbeat != nil {
		if t, err := h.heartbeat.LastUpdate(); err == nil && t.After(h.Started) {
			return t
		}
	}
	return h.Started
}

func (h *WorkerHandle) release() {
	if h.heartbeat != nil {
		h.heartbeat.Close()
		h.heartbeat = nil
	}
}

func (h *WorkerHandle) info() WorkerInfo {
	return WorkerInfo{
		Pid:      h.Pid,
		Age:      h.Age,
		Aborted:  h.aborted,
		Started:  h.Started,
		LastSeen: h.lastSeen(),
	}
}
