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

package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/crypto/bcrypt"

	"github.com/swoopd/swoop"
)

type testBackend struct {
	board    *swoop.StatusBoard
	log      *swoop.Log
	metrics  *swoop.Metrics
	injected []swoop.SignalKind
	stopped  bool
	mx       sync.Mutex
}

func newTestBackend() *testBackend {
	b := &testBackend{
		board:   swoop.NewStatusBoard(),
		log:     swoop.NewLog(),
		metrics: swoop.NewMetrics(),
	}
	b.board.Publish(swoop.Status{
		Name:   "Master",
		Pid:    100,
		State:  "running",
		Target: 2,
		Workers: []swoop.WorkerInfo{
			{Pid: 101, Age: 1},
			{Pid: 102, Age: 2},
		},
	})
	return b
}

func (b *testBackend) Status() swoop.Status {
	return b.board.Get()
}

func (b *testBackend) WatchStatus(old int64, expire time.Duration) int64 {
	return b.board.Watch(old, expire)
}

func (b *testBackend) Log() *swoop.Log {
	return b.log
}

func (b *testBackend) Metrics() *swoop.Metrics {
	return b.metrics
}

func (b *testBackend) Inject(k swoop.SignalKind) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.stopped {
		return swoop.ErrNotRunning
	}
	b.injected = append(b.injected, k)
	return nil
}

func (b *testBackend) signals() []swoop.SignalKind {
	b.mx.Lock()
	defer b.mx.Unlock()
	return append([]swoop.SignalKind(nil), b.injected...)
}

func do(h http.Handler, method, path string, hdrs map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdrs {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler(t *testing.T) {
	Convey("Given a handler", t, func() {
		b := newTestBackend()
		h := NewHandler(b)

		Convey("Status is served with an etag", func() {
			rec := do(h, "GET", "/status", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			etag := rec.Header().Get("Etag")
			So(etag, ShouldEqual, makeEtag(b.board.Serial()))

			var st swoop.Status
			So(json.Unmarshal(rec.Body.Bytes(), &st), ShouldBeNil)
			So(st.Name, ShouldEqual, "Master")
			So(len(st.Workers), ShouldEqual, 2)

			rec = do(h, "GET", "/status", map[string]string{"If-None-Match": etag})
			So(rec.Code, ShouldEqual, http.StatusNotModified)

			Convey("A long poll waits for a change", func() {
				go func() {
					time.Sleep(20 * time.Millisecond)
					b.board.Publish(swoop.Status{Name: "Master", State: "terminating"})
				}()
				rec := do(h, "GET", "/status", map[string]string{
					"If-None-Match": etag,
					PollEtagHeader:  etag,
					PollTimeHeader:  "5",
				})
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Header().Get("Etag"), ShouldNotEqual, etag)
				var st swoop.Status
				So(json.Unmarshal(rec.Body.Bytes(), &st), ShouldBeNil)
				So(st.State, ShouldEqual, "terminating")
			})
		})

		Convey("Workers are listed", func() {
			rec := do(h, "GET", "/workers", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			var ws []swoop.WorkerInfo
			So(json.Unmarshal(rec.Body.Bytes(), &ws), ShouldBeNil)
			So(len(ws), ShouldEqual, 2)
			So(ws[1].Pid, ShouldEqual, 102)
		})

		Convey("The log can be read from an id", func() {
			fmt.Fprintf(b.log, "one\ntwo\nthree\n")
			rec := do(h, "GET", "/log", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			var recs []swoop.LogRecord
			So(json.Unmarshal(rec.Body.Bytes(), &recs), ShouldBeNil)
			So(len(recs), ShouldEqual, 3)

			rec = do(h, "GET", fmt.Sprintf("/log?since=%d", recs[0].Id), nil)
			var rest []swoop.LogRecord
			So(json.Unmarshal(rec.Body.Bytes(), &rest), ShouldBeNil)
			So(len(rest), ShouldEqual, 2)
			So(rest[0].Text, ShouldEqual, "two")

			rec = do(h, "GET", "/log?since=bogus", nil)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Signals are injected", func() {
			rec := do(h, "POST", "/signal/HUP", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			rec = do(h, "POST", "/signal/sigttin", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(b.signals(), ShouldResemble, []swoop.SignalKind{swoop.SigHUP, swoop.SigTTIN})

			rec = do(h, "POST", "/signal/KILL", nil)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			rec = do(h, "POST", "/signal/INT", nil)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			rec = do(h, "GET", "/signal/HUP", nil)
			So(rec.Code, ShouldEqual, http.StatusMethodNotAllowed)
			So(len(b.signals()), ShouldEqual, 2)

			b.stopped = true
			rec = do(h, "POST", "/signal/TERM", nil)
			So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("Metrics are exported", func() {
			rec := do(h, "GET", "/metrics", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, "swoop_workers")
		})

		Convey("With authentication", func() {
			hash, err := bcrypt.GenerateFromPassword([]byte("sekrit"), bcrypt.MinCost)
			So(err, ShouldBeNil)
			h.SetAuth("admin", string(hash))

			rec := do(h, "GET", "/status", nil)
			So(rec.Code, ShouldEqual, http.StatusUnauthorized)
			So(rec.Header().Get("WWW-Authenticate"), ShouldNotBeEmpty)

			req := httptest.NewRequest("GET", "/status", nil)
			req.SetBasicAuth("admin", "wrong")
			rec = httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			So(rec.Code, ShouldEqual, http.StatusUnauthorized)

			req = httptest.NewRequest("GET", "/status", nil)
			req.SetBasicAuth("admin", "sekrit")
			rec = httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			So(rec.Code, ShouldEqual, http.StatusOK)
		})
	})
}

func TestClient(t *testing.T) {
	Convey("Given a client and a server", t, func() {
		b := newTestBackend()
		h := NewHandler(b)
		srv := httptest.NewServer(h)
		defer srv.Close()
		c := NewClient(srv.URL)
		ctx := context.Background()

		Convey("Status round trips", func() {
			st, err := c.Status(ctx)
			So(err, ShouldBeNil)
			So(st.Name, ShouldEqual, "Master")
			So(st.Target, ShouldEqual, 2)

			go func() {
				time.Sleep(20 * time.Millisecond)
				b.board.Publish(swoop.Status{Name: "Master", State: "terminating"})
			}()
			st2, err := c.WatchStatus(ctx, st)
			So(err, ShouldBeNil)
			So(st2.State, ShouldEqual, "terminating")
			So(st2.Serial, ShouldNotEqual, st.Serial)
		})

		Convey("Workers round trip", func() {
			ws, err := c.Workers(ctx)
			So(err, ShouldBeNil)
			So(len(ws), ShouldEqual, 2)
		})

		Convey("The log can be followed", func() {
			fmt.Fprintf(b.log, "first\n")
			info, err := c.GetLog(ctx)
			So(err, ShouldBeNil)
			So(len(info.Records), ShouldEqual, 1)

			go func() {
				time.Sleep(20 * time.Millisecond)
				fmt.Fprintf(b.log, "second\n")
			}()
			info, err = c.WatchLog(ctx, info)
			So(err, ShouldBeNil)
			So(len(info.Records), ShouldEqual, 2)
			So(info.Records[1].Text, ShouldEqual, "second")
		})

		Convey("Signals are sent", func() {
			So(c.Signal(ctx, "USR1"), ShouldBeNil)
			So(b.signals(), ShouldResemble, []swoop.SignalKind{swoop.SigUSR1})

			err := c.Signal(ctx, "KILL")
			var re *Error
			So(errors.As(err, &re), ShouldBeTrue)
			So(re.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Credentials are sent", func() {
			hash, err := bcrypt.GenerateFromPassword([]byte("sekrit"), bcrypt.MinCost)
			So(err, ShouldBeNil)
			h.SetAuth("admin", string(hash))

			_, err = c.Status(ctx)
			var re *Error
			So(errors.As(err, &re), ShouldBeTrue)
			So(re.Code, ShouldEqual, http.StatusUnauthorized)

			c.SetAuth("admin", "sekrit")
			st, err := c.Status(ctx)
			So(err, ShouldBeNil)
			So(st.Pid, ShouldEqual, 100)
		})
	})
}

func TestServe(t *testing.T) {
	Convey("Serve stops with its context", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- Serve(ctx, "127.0.0.1:0", 4, NewHandler(newTestBackend()), nil)
		}()
		time.Sleep(20 * time.Millisecond)
		cancel()
		select {
		case err := <-done:
			So(err, ShouldBeNil)
		case <-time.After(10 * time.Second):
			So("server did not stop", ShouldBeEmpty)
		}
	})
}
