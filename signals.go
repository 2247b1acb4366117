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
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// SignalKind is a process signal as seen by the arbiter.
type SignalKind unix.Signal

const (
	SigHUP   = SignalKind(unix.SIGHUP)
	SigQUIT  = SignalKind(unix.SIGQUIT)
	SigINT   = SignalKind(unix.SIGINT)
	SigTERM  = SignalKind(unix.SIGTERM)
	SigTTIN  = SignalKind(unix.SIGTTIN)
	SigTTOU  = SignalKind(unix.SIGTTOU)
	SigUSR1  = SignalKind(unix.SIGUSR1)
	SigUSR2  = SignalKind(unix.SIGUSR2)
	SigWINCH = SignalKind(unix.SIGWINCH)
	SigCHLD  = SignalKind(unix.SIGCHLD)
)

// queuedSignals are delivered to the control loop in FIFO order.
var queuedSignals = []SignalKind{
	SigHUP, SigQUIT, SigTERM, SigTTIN, SigTTOU, SigUSR1, SigUSR2, SigWINCH,
}

// RecognizedSignals returns every signal the arbiter installs a handler
// for, the immediate ones (CHLD, INT) included.
func RecognizedSignals() []SignalKind {
	rv := make([]SignalKind, 0, len(queuedSignals)+2)
	rv = append(rv, queuedSignals...)
	return append(rv, SigINT, SigCHLD)
}

// Recognized reports whether the arbiter has a policy for the signal.
func (k SignalKind) Recognized() bool {
	if k.Immediate() {
		return true
	}
	return k.Queued()
}

// Immediate reports whether the signal bypasses the queue.
func (k SignalKind) Immediate() bool {
	return k == SigCHLD || k == SigINT
}

// Queued reports whether the signal goes through the bounded queue.
func (k SignalKind) Queued() bool {
	for _, q := range queuedSignals {
		if q == k {
			return true
		}
	}
	return false
}

// Signal returns the value suitable for os.Process.Signal and friends.
func (k SignalKind) Signal() os.Signal {
	return unix.Signal(k)
}

func (k SignalKind) String() string {
	return SignalName(unix.Signal(k))
}

// SignalName maps a signal number to its conventional name.  Numbers the
// platform has no name for are rendered as "code N".
func SignalName(sig unix.Signal) string {
	if name := unix.SignalName(sig); name != "" {
		return name
	}
	return fmt.Sprintf("code %d", int(sig))
}

// ParseSignal accepts "HUP", "hup" or "SIGHUP".  Only queued signals can be
// parsed; those are the ones an operator may inject by name.
func ParseSignal(name string) (SignalKind, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	sig := unix.SignalNum(name)
	if sig == 0 {
		return 0, fmt.Errorf("unknown signal %q", name)
	}
	k := SignalKind(sig)
	if !k.Queued() {
		return 0, fmt.Errorf("signal %s cannot be injected", name)
	}
	return k, nil
}
