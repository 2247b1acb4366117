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
	"fmt"
)

var (
	ErrSpawnFailed   = errors.New("failed to spawn worker")
	ErrRateLimited   = errors.New("spawning workers too quickly")
	ErrUnknownWorker = errors.New("unknown worker class")
	ErrNoListeners   = errors.New("no listeners configured")
	ErrLoopFailed    = errors.New("arbiter loop failed")
	ErrBadConfig     = errors.New("bad configuration")
	ErrNotRunning    = errors.New("arbiter is not running")
	ErrNotWorker     = errors.New("not a worker process")
)

// isRecoverable reports whether an error raised during a loop iteration
// may be retried on the next tick rather than tearing the arbiter down.
func isRecoverable(err error) bool {
	return errors.Is(err, ErrSpawnFailed) || errors.Is(err, ErrRateLimited)
}

// ExitError is returned by Arbiter.Run when the process should exit with
// a particular status.
type ExitError struct {
	Code   int
	Reason string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s (exit status %d)", e.Reason, e.Code)
}

// ExitCode maps an error returned by Arbiter.Run to a process exit
// status.
func ExitCode(err error) int {
	var ee *ExitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ee):
		return ee.Code
	}
	return 1
}
