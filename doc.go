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

// Package swoop implements a pre-fork worker server in pure Go.
//
// A single long lived arbiter process owns the listening sockets and keeps
// a pool of worker processes alive.  Each worker accepts connections from
// the shared listeners on its own.  The arbiter never serves requests;
// it only spawns workers up to the configured count, reaps the ones that
// exit, kills the ones that stop responding, and reacts to operator
// signals (reload, graceful shutdown, re-exec in place).
//
// Go cannot fork a running program, so a worker is the same binary
// started again with the listeners passed as inherited descriptors.
// Programs built on this package must therefore route to the worker side
// at the very top of main:
//
//	func main() {
//		app := swoop.NewBaseApplication(cfg)
//		if swoop.IsWorkerProcess() {
//			os.Exit(swoop.RunWorker(app))
//		}
//		arb := swoop.NewArbiter(app)
//		...
//	}
//
// Signals understood by the arbiter:
//
//	HUP     reload the configuration and recycle workers
//	TERM    graceful shutdown
//	QUIT    quick shutdown
//	INT     immediate shutdown, workers are killed
//	USR1    reopen log files
//	USR2    re-execute the arbiter binary, keeping the listeners
//	WINCH, TTIN, TTOU   passed to the application, if it cares
//
// Workers understand QUIT and INT (exit now), TERM (finish and exit),
// and ABRT (the arbiter's timeout warning, exit with failure).
package swoop
