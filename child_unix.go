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

//go:build unix

package swoop

import (
	"fmt"
	"os"
	"strconv"
)

// IsWorkerProcess reports whether this process was spawned by an arbiter
// to be a worker.  Programs check it first thing in main.
func IsWorkerProcess() bool {
	return os.Getenv(EnvWorkerAge) != ""
}

type configSetter interface {
	SetConfig(*Config)
}

// RunWorker runs this process as a worker for app and returns its exit
// status.
//
//	func main() {
//		if swoop.IsWorkerProcess() {
//			os.Exit(swoop.RunWorker(app))
//		}
//		...
//	}
func RunWorker(app Application) (status int) {
	if !IsWorkerProcess() {
		fmt.Fprintln(os.Stderr, ErrNotWorker)
		return 1
	}
	cfg, err := decodeSnapshot(os.Getenv(EnvWorkerConfig))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	// The arbiter owns the log file; our output reaches it through a
	// pipe.
	lc := cfg.Log
	lc.File = ""
	logger, _ := NewLogger(lc, os.Stderr, nil)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Exception in worker process", "pid", os.Getpid(), "panic", r)
			status = 1
		}
	}()

	age, _ := strconv.Atoi(os.Getenv(EnvWorkerAge))
	ppid, _ := strconv.Atoi(os.Getenv(EnvWorkerPpid))
	nfds, _ := strconv.Atoi(os.Getenv(EnvListenFds))
	listeners, err := inheritListeners(nfds)
	if err != nil {
		logger.Error("Failed to inherit listeners", "pid", os.Getpid(), "error", err)
		return 1
	}
	defer closeListeners(listeners)

	var hb Notifier
	if s := os.Getenv(EnvHeartbeatFd); s != "" {
		if fd, err := strconv.Atoi(s); err == nil {
			f := heartbeatFromFd(fd)
			defer f.Close()
			hb = f
		}
	}

	if cs, ok := app.(configSetter); ok {
		cs.SetConfig(cfg)
	}
	setProcTitle("swoop worker [" + cfg.ProcName + "]")

	class := os.Getenv(EnvWorkerClass)
	if class == "" {
		class = cfg.WorkerClass
	}
	w, err := NewWorker(class, WorkerParams{
		Age:       age,
		ParentPid: ppid,
		Listeners: listeners,
		App:       app,
		Timeout:   cfg.WorkerTimeout(),
		Config:    cfg,
		Heartbeat: hb,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("Exception while loading application", "pid", os.Getpid(), "error", err)
		return 1
	}
	if err := w.Init(); err != nil {
		logger.Error("Worker failed", "pid", os.Getpid(), "error", err)
		return 1
	}
	logger.Info("Worker exiting", "pid", os.Getpid())
	return 0
}
