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
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

const yamlConfig = `
workers: 4
bind:
  - tcp://127.0.0.1:9000
  - unix:/tmp/swoop-test.sock
timeout: 30
proc_name: myapp
max_requests: 1000
max_requests_jitter: 50
log:
  level: debug
status:
  address: 127.0.0.1:8321
`

const tomlConfig = `
workers = 2
bind = ["127.0.0.1:9001"]
graceful_timeout = 5
worker_class = "sync"

[log]
level = "warn"
format = "json"
`

func writeConfig(dir, name, body string) string {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		panic(err)
	}
	return path
}

func TestConfig(t *testing.T) {
	Convey("Defaults are valid", t, func() {
		cfg := DefaultConfig()
		So(cfg.Validate(), ShouldBeNil)
		So(cfg.WorkerClass, ShouldEqual, "sync")
		So(cfg.Workers, ShouldBeGreaterThan, 0)
		So(cfg.TimeoutDuration(), ShouldEqual, time.Duration(0))
		So(cfg.GracefulDuration(), ShouldEqual, 30*time.Second)
	})

	Convey("Loading a YAML file", t, func() {
		path := writeConfig(t.TempDir(), "swoop.yaml", yamlConfig)
		cfg, err := LoadConfig(path)
		So(err, ShouldBeNil)
		So(cfg.Workers, ShouldEqual, 4)
		So(cfg.Bind, ShouldResemble, []string{"tcp://127.0.0.1:9000", "unix:/tmp/swoop-test.sock"})
		So(cfg.TimeoutDuration(), ShouldEqual, 30*time.Second)
		So(cfg.WorkerTimeout(), ShouldEqual, 15*time.Second)
		So(cfg.ProcName, ShouldEqual, "myapp")
		So(cfg.MaxRequestsJitter, ShouldEqual, 50)
		So(cfg.Log.Level, ShouldEqual, "debug")
		So(cfg.Status.Address, ShouldEqual, "127.0.0.1:8321")
		// Unset values keep their defaults.
		So(cfg.WorkerClass, ShouldEqual, "sync")
		So(cfg.GracefulTimeout, ShouldEqual, 30)
	})

	Convey("Loading a TOML file", t, func() {
		path := writeConfig(t.TempDir(), "swoop.toml", tomlConfig)
		cfg, err := LoadConfig(path)
		So(err, ShouldBeNil)
		So(cfg.Workers, ShouldEqual, 2)
		So(cfg.Bind, ShouldResemble, []string{"127.0.0.1:9001"})
		So(cfg.GracefulDuration(), ShouldEqual, 5*time.Second)
		So(cfg.Log.Format, ShouldEqual, "json")
	})

	Convey("Bad files are rejected", t, func() {
		dir := t.TempDir()

		_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
		So(err, ShouldNotBeNil)

		_, err = LoadConfig(writeConfig(dir, "bad.yaml", "workers: [1"))
		So(errors.Is(err, ErrBadConfig), ShouldBeTrue)

		_, err = LoadConfig(writeConfig(dir, "bad.ini", "workers=1"))
		So(errors.Is(err, ErrBadConfig), ShouldBeTrue)

		_, err = LoadConfig(writeConfig(dir, "neg.yaml", "workers: -1"))
		So(errors.Is(err, ErrBadConfig), ShouldBeTrue)

		_, err = LoadConfig(writeConfig(dir, "nobind.yaml", "bind: []"))
		So(errors.Is(err, ErrBadConfig), ShouldBeTrue)

		_, err = LoadConfig(writeConfig(dir, "level.yaml", "log:\n  level: loud"))
		So(errors.Is(err, ErrBadConfig), ShouldBeTrue)
	})

	Convey("Clone and snapshot", t, func() {
		cfg := DefaultConfig()
		cfg.Bind = []string{"127.0.0.1:1", "127.0.0.1:2"}
		cfg.Timeout = 7

		n := cfg.Clone()
		n.Bind[0] = "changed"
		So(cfg.Bind[0], ShouldEqual, "127.0.0.1:1")

		s, err := cfg.encodeSnapshot()
		So(err, ShouldBeNil)
		back, err := decodeSnapshot(s)
		So(err, ShouldBeNil)
		So(back, ShouldResemble, cfg)

		_, err = decodeSnapshot("bind: {")
		So(errors.Is(err, ErrBadConfig), ShouldBeTrue)
	})
}

func TestApplication(t *testing.T) {
	Convey("The canned response", t, func() {
		r := GenerateResponse("OK")
		So(r, ShouldStartWith, "HTTP/1.1 200 OK\r\n")
		So(r, ShouldContainSubstring, "Content-Length: 2\r\n")
		So(r, ShouldEndWith, "\r\n\r\nOK")
	})

	Convey("A base application answers OK", t, func() {
		app := NewBaseApplication(nil)
		So(app.Config(), ShouldNotBeNil)

		c1, c2 := net.Pipe()
		defer c2.Close()
		go func() {
			app.Handle(c1)
			c1.Close()
		}()
		buf := make([]byte, 256)
		var got strings.Builder
		for {
			n, err := c2.Read(buf)
			got.Write(buf[:n])
			if err != nil {
				break
			}
		}
		So(got.String(), ShouldEqual, GenerateResponse("OK"))
	})

	Convey("A file application reloads its file", t, func() {
		dir := t.TempDir()
		path := writeConfig(dir, "app.yaml", "workers: 3\n")
		app, err := NewFileApplication(path)
		So(err, ShouldBeNil)
		So(app.Config().Workers, ShouldEqual, 3)

		writeConfig(dir, "app.yaml", "workers: 5\n")
		cfg, err := app.Reload()
		So(err, ShouldBeNil)
		So(cfg.Workers, ShouldEqual, 5)
		So(app.Config().Workers, ShouldEqual, 5)

		Convey("A broken file keeps the old config", func() {
			writeConfig(dir, "app.yaml", "workers: [")
			_, err := app.Reload()
			So(err, ShouldNotBeNil)
			So(app.Config().Workers, ShouldEqual, 5)
		})
	})
}

func TestListeners(t *testing.T) {
	Convey("Bind addresses are parsed", t, func() {
		n, a := ParseBind("127.0.0.1:8000")
		So(n, ShouldEqual, "tcp")
		So(a, ShouldEqual, "127.0.0.1:8000")
		n, a = ParseBind("tcp://0.0.0.0:80")
		So(n, ShouldEqual, "tcp")
		So(a, ShouldEqual, "0.0.0.0:80")
		n, a = ParseBind("unix:/run/app.sock")
		So(n, ShouldEqual, "unix")
		So(a, ShouldEqual, "/run/app.sock")
		n, a = ParseBind("unix:///run/app.sock")
		So(n, ShouldEqual, "unix")
		So(a, ShouldEqual, "/run/app.sock")
	})

	Convey("Listeners open and render", t, func() {
		_, err := OpenListeners(nil)
		So(err, ShouldEqual, ErrNoListeners)

		sock := filepath.Join(t.TempDir(), "s.sock")
		ls, err := OpenListeners([]string{"127.0.0.1:0", "unix:" + sock})
		So(err, ShouldBeNil)
		defer closeListeners(ls)
		addrs := listenerAddrs(ls)
		So(addrs[0], ShouldStartWith, "http://127.0.0.1:")
		So(addrs[1], ShouldEqual, "unix:"+sock)

		files, err := listenerFiles(ls)
		So(err, ShouldBeNil)
		So(len(files), ShouldEqual, 2)
		closeFiles(files)

		Convey("A failed bind closes the rest", func() {
			_, err := OpenListeners([]string{"127.0.0.1:0", "unix:" + sock})
			So(err, ShouldNotBeNil)
		})
	})
}
