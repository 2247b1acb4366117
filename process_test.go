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
	"bytes"
	"io"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/sys/unix"
)

func TestProcess(t *testing.T) {
	Convey("Inherited arbiter variables are not passed on", t, func() {
		t.Setenv(EnvMasterPid, "77")
		t.Setenv(EnvWorkerAge, "3")
		t.Setenv("SWOOP_TEST_OTHER", "x")
		t.Setenv("PLAIN_VAR", "y")
		env := strings.Join(baseEnv(), "\n")
		So(env, ShouldNotContainSubstring, "SWOOP_")
		So(env, ShouldContainSubstring, "PLAIN_VAR=y")
	})

	Convey("Worker output is copied by line", t, func() {
		var out bytes.Buffer
		s := &execSpawner{out: &out, logger: testLogger(t)}
		s.doLog(io.NopCloser(strings.NewReader("one\ntwo\npartial")))
		So(out.String(), ShouldEqual, "one\ntwo\npartial\n")
	})

	Convey("Waiting with no children reports ECHILD", t, func() {
		pid, _, err := osProcTable{}.Wait()
		So(err, ShouldEqual, unix.ECHILD)
		So(pid, ShouldBeLessThanOrEqualTo, 0)
	})

	Convey("Signalling a missing process fails", t, func() {
		// Pid max on Linux is well below this.
		So(osProcTable{}.Kill(1<<30, 0), ShouldEqual, unix.ESRCH)
	})

	Convey("RunWorker refuses to run outside a worker", t, func() {
		t.Setenv(EnvWorkerAge, "")
		So(IsWorkerProcess(), ShouldBeFalse)
		So(RunWorker(NewBaseApplication(DefaultConfig())), ShouldEqual, 1)
	})

	Convey("A corrupt configuration snapshot fails the worker", t, func() {
		t.Setenv(EnvWorkerAge, "1")
		t.Setenv(EnvWorkerConfig, "workers: [")
		So(IsWorkerProcess(), ShouldBeTrue)
		So(RunWorker(NewBaseApplication(DefaultConfig())), ShouldEqual, 1)
	})
}
