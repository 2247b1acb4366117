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
	"net"
	"strings"
	"sync"
	"time"
)

// Application is what a program built on swoop supplies.  The arbiter
// only uses Config and Reload; Handle runs inside worker processes.
type Application interface {
	// Config returns the current configuration.  The arbiter takes a
	// snapshot of it for every worker it spawns.
	Config() *Config

	// Handle serves one accepted connection.  The worker closes the
	// connection once Handle returns.
	Handle(conn net.Conn) error

	// Reload re-reads the configuration (on HUP).  An error leaves the
	// running configuration in place.
	Reload() (*Config, error)
}

// SignalPolicy may be implemented by an Application that wants to act on
// WINCH, TTIN or TTOU.  Without it those signals are logged and ignored.
type SignalPolicy interface {
	HandleSignal(kind SignalKind) error
}

// BaseApplication serves a fixed "OK" HTTP response on every connection.
// Real programs embed it and override Handle.
type BaseApplication struct {
	cfg *Config
	mx  sync.Mutex
}

func NewBaseApplication(cfg *Config) *BaseApplication {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &BaseApplication{cfg: cfg}
}

func (a *BaseApplication) Config() *Config {
	a.mx.Lock()
	defer a.mx.Unlock()
	return a.cfg
}

// SetConfig replaces the configuration, e.g. from a worker snapshot.
func (a *BaseApplication) SetConfig(cfg *Config) {
	a.mx.Lock()
	a.cfg = cfg
	a.mx.Unlock()
}

func (a *BaseApplication) Handle(conn net.Conn) error {
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_, err := conn.Write([]byte(GenerateResponse("OK")))
	return err
}

// Reload has nothing to re-read for a base application.
func (a *BaseApplication) Reload() (*Config, error) {
	return a.Config(), nil
}

// FileApplication is a BaseApplication whose configuration comes from a
// file, re-read on every Reload.
type FileApplication struct {
	Path string
	BaseApplication
}

func NewFileApplication(path string) (*FileApplication, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return &FileApplication{Path: path, BaseApplication: BaseApplication{cfg: cfg}}, nil
}

func (a *FileApplication) Reload() (*Config, error) {
	cfg, err := LoadConfig(a.Path)
	if err != nil {
		return nil, err
	}
	a.SetConfig(cfg)
	return cfg, nil
}

// GenerateResponse renders a minimal HTTP/1.1 200 response that closes
// the connection.
func GenerateResponse(body string) string {
	var b strings.Builder
	b.WriteString("HTTP/1.1 200 OK\r\n")
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	b.WriteString("Connection: close\r\n")
	b.WriteString("Server: Swoop/1.0\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.String()
}
