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
	"os"
	"strings"
)

// listenFdStart is the first descriptor a child inherits listeners on.
const listenFdStart = 3

// ParseBind splits a bind address into a network and an address.
//
//	"127.0.0.1:8000"        tcp
//	"tcp://0.0.0.0:80"      tcp
//	"unix:/run/app.sock"    unix
//	"unix:///run/app.sock"  unix
func ParseBind(bind string) (network, addr string) {
	switch {
	case strings.HasPrefix(bind, "unix://"):
		return "unix", strings.TrimPrefix(bind, "unix://")
	case strings.HasPrefix(bind, "unix:"):
		return "unix", strings.TrimPrefix(bind, "unix:")
	case strings.HasPrefix(bind, "tcp://"):
		return "tcp", strings.TrimPrefix(bind, "tcp://")
	}
	return "tcp", bind
}

// OpenListeners binds every address.  On error the listeners opened so
// far are closed.
func OpenListeners(binds []string) ([]net.Listener, error) {
	if len(binds) == 0 {
		return nil, ErrNoListeners
	}
	var rv []net.Listener
	for _, b := range binds {
		network, addr := ParseBind(b)
		l, err := net.Listen(network, addr)
		if err != nil {
			closeListeners(rv)
			return nil, fmt.Errorf("bind %s: %w", b, err)
		}
		rv = append(rv, l)
	}
	return rv, nil
}

type filer interface {
	File() (*os.File, error)
}

// listenerFiles duplicates the descriptors of ls so they can be passed to
// child processes.
func listenerFiles(ls []net.Listener) ([]*os.File, error) {
	rv := make([]*os.File, 0, len(ls))
	for _, l := range ls {
		f, ok := l.(filer)
		if !ok {
			closeFiles(rv)
			return nil, fmt.Errorf("listener %s cannot be inherited", l.Addr())
		}
		file, err := f.File()
		if err != nil {
			closeFiles(rv)
			return nil, err
		}
		rv = append(rv, file)
	}
	return rv, nil
}

// inheritListeners adopts n listeners passed starting at listenFdStart.
func inheritListeners(n int) ([]net.Listener, error) {
	var rv []net.Listener
	for i := 0; i < n; i++ {
		fd := listenFdStart + i
		f := os.NewFile(uintptr(fd), fmt.Sprintf("listener-%d", i))
		l, err := net.FileListener(f)
		f.Close()
		if err != nil {
			closeListeners(rv)
			return nil, fmt.Errorf("inherit fd %d: %w", fd, err)
		}
		rv = append(rv, l)
	}
	return rv, nil
}

// listenerAddrs renders addresses the way they are logged at startup.
func listenerAddrs(ls []net.Listener) []string {
	rv := make([]string, 0, len(ls))
	for _, l := range ls {
		a := l.Addr()
		if a.Network() == "unix" {
			rv = append(rv, "unix:"+a.String())
		} else {
			rv = append(rv, "http://"+a.String())
		}
	}
	return rv
}

// keepSocketFiles stops unix listeners from unlinking their socket on
// close, for when a successor arbiter still serves on them.
func keepSocketFiles(ls []net.Listener) {
	for _, l := range ls {
		if ul, ok := l.(*net.UnixListener); ok {
			ul.SetUnlinkOnClose(false)
		}
	}
}

func closeListeners(ls []net.Listener) {
	for _, l := range ls {
		l.Close()
	}
}

func closeFiles(fs []*os.File) {
	for _, f := range fs {
		f.Close()
	}
}
