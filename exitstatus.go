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

	"golang.org/x/sys/unix"
)

// ExitKind is how a reaped child terminated.
type ExitKind int

const (
	ExitClean ExitKind = iota
	ExitNonZero
	ExitSignaled
)

// Exit describes how a reaped child terminated.
type Exit struct {
	Pid    int
	Kind   ExitKind
	Code   int
	Signal unix.Signal
	// Reexec is set when the child was the re-executed arbiter rather
	// than a worker.
	Reexec bool
}

// ClassifyExit interprets a wait status.
func ClassifyExit(pid int, ws unix.WaitStatus) Exit {
	e := Exit{Pid: pid}
	switch {
	case ws.Signaled():
		e.Kind = ExitSignaled
		e.Signal = ws.Signal()
	case ws.Exited() && ws.ExitStatus() != 0:
		e.Kind = ExitNonZero
		e.Code = ws.ExitStatus()
	}
	return e
}

func (e Exit) String() string {
	switch e.Kind {
	case ExitNonZero:
		return fmt.Sprintf("Worker (pid %d) exited with code %d", e.Pid, e.Code)
	case ExitSignaled:
		msg := fmt.Sprintf("Worker (pid: %d) was sent %s!", e.Pid, SignalName(e.Signal))
		if e.Signal == unix.SIGKILL {
			msg += " Perhaps out of memory?"
		}
		return msg
	}
	return fmt.Sprintf("Worker (pid %d) exited", e.Pid)
}

// result is the metrics label for the exit.
func (e Exit) result() string {
	switch e.Kind {
	case ExitNonZero:
		return "code"
	case ExitSignaled:
		return "signal"
	}
	return "clean"
}
