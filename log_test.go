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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) {
	return 0, errors.New("injected write failure")
}

func TestLog(t *testing.T) {
	Convey("Given a new log", t, func() {
		l := NewLog()
		recs, id := l.GetRecords(0)
		So(recs, ShouldBeEmpty)

		Convey("Lines become records", func() {
			fmt.Fprintf(l, "one\ntwo\n")
			fmt.Fprintf(l, "three")
			recs, id2 := l.GetRecords(id)
			So(id2, ShouldNotEqual, id)
			So(len(recs), ShouldEqual, 3)
			So(recs[0].Text, ShouldEqual, "one")
			So(recs[2].Text, ShouldEqual, "three")
			So(recs[1].Id, ShouldEqual, recs[0].Id+1)

			Convey("An unchanged id returns nothing", func() {
				recs, id3 := l.GetRecords(id2)
				So(recs, ShouldBeNil)
				So(id3, ShouldEqual, id2)
			})
		})

		Convey("Old records fall off the end", func() {
			for i := 0; i < MaxLogRecords+10; i++ {
				fmt.Fprintf(l, "line %d\n", i)
			}
			recs, _ := l.GetRecords(0)
			So(len(recs), ShouldEqual, MaxLogRecords)
			So(recs[0].Text, ShouldEqual, "line 10")
			So(recs[MaxLogRecords-1].Text, ShouldEqual, fmt.Sprintf("line %d", MaxLogRecords+9))
		})

		Convey("Clear moves the id", func() {
			fmt.Fprintf(l, "x\n")
			_, before := l.GetRecords(0)
			l.Clear()
			recs, after := l.GetRecords(before)
			So(after, ShouldNotEqual, before)
			So(recs, ShouldBeEmpty)
		})

		Convey("Watch returns when a line arrives", func() {
			go func() {
				time.Sleep(10 * time.Millisecond)
				fmt.Fprintf(l, "hello\n")
			}()
			nid := l.Watch(context.Background(), id, 5*time.Second)
			So(nid, ShouldNotEqual, id)
		})

		Convey("Watch expires", func() {
			start := time.Now()
			nid := l.Watch(context.Background(), id, 20*time.Millisecond)
			So(nid, ShouldEqual, id)
			So(time.Since(start), ShouldBeGreaterThanOrEqualTo, 15*time.Millisecond)
		})

		Convey("Watch honors the context", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			So(l.Watch(ctx, id, time.Hour), ShouldEqual, id)
		})
	})
}

func TestMultiWriter(t *testing.T) {
	Convey("Given a fan out writer", t, func() {
		var a, b bytes.Buffer
		m := NewMultiWriter(&a, &b, &a)

		fmt.Fprint(m, "hello\n")
		So(a.String(), ShouldEqual, "hello\n")
		So(b.String(), ShouldEqual, "hello\n")

		Convey("Removed writers see nothing more", func() {
			m.DelWriter(&b)
			fmt.Fprint(m, "again\n")
			So(a.String(), ShouldEqual, "hello\nagain\n")
			So(b.String(), ShouldEqual, "hello\n")
		})

		Convey("A failing writer does not starve the others", func() {
			m.AddWriter(failWriter{})
			n, err := fmt.Fprint(m, "more\n")
			So(err, ShouldNotBeNil)
			So(n, ShouldEqual, 5)
			So(b.String(), ShouldEqual, "hello\nmore\n")
		})
	})
}

func TestLogger(t *testing.T) {
	Convey("The line handler", t, func() {
		var buf bytes.Buffer
		l := slog.New(NewLineHandler(&buf, slog.LevelInfo))

		l.Debug("hidden")
		So(buf.Len(), ShouldEqual, 0)

		l.With("pid", 12).WithGroup("w").Info("Booting worker", "age", 3)
		line := buf.String()
		So(line, ShouldContainSubstring, " [INFO] Booting worker | pid=12, w.age=3\n")

		buf.Reset()
		l.Log(context.Background(), LevelCritical, "WORKER TIMEOUT")
		So(buf.String(), ShouldContainSubstring, "[CRITICAL] WORKER TIMEOUT")
	})

	Convey("Level names", t, func() {
		for _, name := range []string{"trace", "DEBUG", "info", "warning", "error", "critical", ""} {
			_, ok := ParseLevel(name)
			So(ok, ShouldBeTrue)
		}
		_, ok := ParseLevel("chatty")
		So(ok, ShouldBeFalse)
	})

	Convey("The process logger", t, func() {
		var stderr bytes.Buffer
		ring := NewLog()
		file := filepath.Join(t.TempDir(), "swoop.log")
		logger, sink := NewLogger(LogConfig{Level: "debug", File: file, MaxSizeMB: 1}, &stderr, ring)
		defer sink.Close()

		logger.Debug("arbiter booted", "pid", 1)
		So(stderr.String(), ShouldContainSubstring, "[DEBUG] arbiter booted | pid=1")
		recs, _ := ring.GetRecords(0)
		So(len(recs), ShouldEqual, 1)
		b, err := os.ReadFile(file)
		So(err, ShouldBeNil)
		So(string(b), ShouldEqual, stderr.String())

		Convey("Reopen starts a new file", func() {
			So(sink.Reopen(), ShouldBeNil)
			logger.Info("after rotate")
			b, err := os.ReadFile(file)
			So(err, ShouldBeNil)
			So(string(b), ShouldContainSubstring, "after rotate")
			So(string(b), ShouldNotContainSubstring, "arbiter booted")
		})

		Convey("Raw lines bypass formatting", func() {
			fmt.Fprint(sink, "worker said hi\n")
			So(strings.HasSuffix(stderr.String(), "worker said hi\n"), ShouldBeTrue)
		})
	})

	Convey("JSON output", t, func() {
		var stderr bytes.Buffer
		logger, _ := NewLogger(LogConfig{Format: "json"}, &stderr, nil)
		logger.Info("hi", "k", "v")
		So(stderr.String(), ShouldContainSubstring, `"msg":"hi"`)
		So(stderr.String(), ShouldContainSubstring, `"k":"v"`)
	})
}

func TestStatusBoard(t *testing.T) {
	Convey("Given a status board", t, func() {
		b := NewStatusBoard()
		s0 := b.Serial()

		b.Publish(Status{Name: "Master", State: "running", Target: 2})
		s1 := b.Serial()
		So(s1, ShouldNotEqual, s0)
		So(b.Get().Serial, ShouldEqual, s1)
		So(b.Get().CreateTime.IsZero(), ShouldBeFalse)

		Convey("Republishing the same content keeps the serial", func() {
			b.Publish(Status{Name: "Master", State: "running", Target: 2})
			So(b.Serial(), ShouldEqual, s1)
		})

		Convey("A worker change moves the serial", func() {
			b.Publish(Status{Name: "Master", State: "running", Target: 2,
				Workers: []WorkerInfo{{Pid: 10, Age: 1}}})
			So(b.Serial(), ShouldNotEqual, s1)
		})

		Convey("Watch wakes on change", func() {
			go func() {
				time.Sleep(10 * time.Millisecond)
				b.Publish(Status{Name: "Master", State: "terminating"})
			}()
			s2 := b.Watch(s1, 5*time.Second)
			So(s2, ShouldNotEqual, s1)
			So(b.Get().State, ShouldEqual, "terminating")
		})

		Convey("Watch expires", func() {
			So(b.Watch(s1, 10*time.Millisecond), ShouldEqual, s1)
			So(b.Watch(s1, 0), ShouldEqual, s1)
		})
	})
}
