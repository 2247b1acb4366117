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
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Environment passed from the arbiter to its children.
const (
	EnvMasterPid    = "SWOOP_PID"
	EnvListenFds    = "SWOOP_LISTEN_FDS"
	EnvWorkerAge    = "SWOOP_WORKER_AGE"
	EnvWorkerPpid   = "SWOOP_WORKER_PPID"
	EnvWorkerClass  = "SWOOP_WORKER_CLASS"
	EnvWorkerConfig = "SWOOP_WORKER_CONFIG"
	EnvHeartbeatFd  = "SWOOP_HEARTBEAT_FD"
)

// baseEnv is the current environment without any of our own variables.
func baseEnv() []string {
	var rv []string
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, "SWOOP_") {
			rv = append(rv, kv)
		}
	}
	return rv
}

// execSpawner starts workers by re-executing the current binary.  The
// child finds its listeners at descriptors 3 and up, followed by its
// heartbeat file; its stdout and stderr are copied into the arbiter's
// log sink.
type execSpawner struct {
	path   string
	args   []string
	files  []*os.File
	config func() *Config
	out    io.Writer
	logger *slog.Logger
}

func (s *execSpawner) Spawn(age int) (int, Heartbeat, error) {
	cfg := s.config()
	snap, err := cfg.encodeSnapshot()
	if err != nil {
		return 0, nil, err
	}
	hb, err := newFileHeartbeat()
	if err != nil {
		return 0, nil, err
	}
	devnull, err := os.Open(os.DevNull)
	if err != nil {
		hb.Close()
		return 0, nil, err
	}
	defer devnull.Close()
	pr, pw, err := os.Pipe()
	if err != nil {
		hb.Close()
		return 0, nil, err
	}

	files := []*os.File{devnull, pw, pw}
	files = append(files, s.files...)
	files = append(files, hb.f)

	env := append(baseEnv(),
		EnvWorkerAge+"="+strconv.Itoa(age),
		EnvWorkerPpid+"="+strconv.Itoa(os.Getpid()),
		EnvWorkerClass+"="+cfg.WorkerClass,
		EnvWorkerConfig+"="+snap,
		EnvListenFds+"="+strconv.Itoa(len(s.files)),
		EnvHeartbeatFd+"="+strconv.Itoa(listenFdStart+len(s.files)),
	)

	proc, err := os.StartProcess(s.path, s.args, &os.ProcAttr{
		Env:   env,
		Files: files,
	})
	pw.Close()
	if err != nil {
		pr.Close()
		hb.Close()
		return 0, nil, err
	}
	pid := proc.Pid
	// Reaping is done with wait4, not through os.Process.
	proc.Release()

	go s.doLog(pr)
	return pid, hb, nil
}

// doLog copies a child's output, a line at a time, into the sink.  Worker
// lines are already formatted.
func (s *execSpawner) doLog(r io.ReadCloser) {
	defer r.Close()
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if len(line) != 0 {
			if !strings.HasSuffix(line, "\n") {
				line += "\n"
			}
			if _, werr := io.WriteString(s.out, line); werr != nil {
				s.logger.Debug("Failed to copy worker output", "error", werr)
			}
		}
		if err != nil {
			return
		}
	}
}

// startArbiter re-executes the current binary as a new arbiter that
// inherits files as its listeners.
func startArbiter(path string, args []string, files []*os.File) (int, error) {
	fds := []*os.File{os.Stdin, os.Stdout, os.Stderr}
	fds = append(fds, files...)
	env := append(baseEnv(),
		fmt.Sprintf("%s=%d", EnvMasterPid, os.Getpid()),
		fmt.Sprintf("%s=%d", EnvListenFds, len(files)),
	)
	proc, err := os.StartProcess(path, args, &os.ProcAttr{
		Env:   env,
		Files: fds,
	})
	if err != nil {
		return 0, err
	}
	pid := proc.Pid
	proc.Release()
	return pid, nil
}

// osProcTable is the real process table.
type osProcTable struct{}

func (osProcTable) Wait() (int, unix.WaitStatus, error) {
	var ws unix.WaitStatus
	pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
	return pid, ws, err
}

func (osProcTable) Kill(pid int, sig unix.Signal) error {
	return unix.Kill(pid, sig)
}
