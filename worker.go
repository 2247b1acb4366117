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
	"net"
	"sort"
	"sync"
	"time"
)

// Worker is the code that runs inside a worker process.
type Worker interface {
	// Init sets up signal handling and then serves until the worker is
	// told to stop or its parent goes away.
	Init() error
	// Run is the serving loop proper.
	Run() error
	IsAborted() bool
	SetAborted(bool)
}

// WorkerParams is everything a worker is constructed with.
type WorkerParams struct {
	Age       int
	ParentPid int
	Listeners []net.Listener
	App       Application
	// Timeout bounds each blocking accept; the worker proves it is
	// alive at least that often.
	Timeout   time.Duration
	Config    *Config
	Heartbeat Notifier
	Logger    *slog.Logger
}

// WorkerFactory creates a worker from its parameters.
type WorkerFactory func(WorkerParams) (Worker, error)

var (
	workerClasses  = map[string]WorkerFactory{}
	workerClassesL sync.Mutex
)

// RegisterWorker makes a worker class available by name.  Registering a
// name twice replaces the earlier factory.
func RegisterWorker(class string, f WorkerFactory) {
	workerClassesL.Lock()
	workerClasses[class] = f
	workerClassesL.Unlock()
}

// WorkerClasses lists the registered class names.
func WorkerClasses() []string {
	workerClassesL.Lock()
	defer workerClassesL.Unlock()
	rv := make([]string, 0, len(workerClasses))
	for n := range workerClasses {
		rv = append(rv, n)
	}
	sort.Strings(rv)
	return rv
}

// NewWorker instantiates a registered class.
func NewWorker(class string, p WorkerParams) (Worker, error) {
	workerClassesL.Lock()
	f, ok := workerClasses[class]
	workerClassesL.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWorker, class)
	}
	return f(p)
}

func init() {
	RegisterWorker("sync", func(p WorkerParams) (Worker, error) {
		return NewSyncWorker(p), nil
	})
}
