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

//go:build unix

package swoop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// State is the arbiter's lifecycle state.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StatePromoting
	StateTerminating
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StatePromoting:
		return "promoting"
	case StateTerminating:
		return "terminating"
	}
	return "unknown"
}

// QuickStopTimeout bounds how long a QUIT shutdown waits for workers
// before killing them.
var QuickStopTimeout = 2 * time.Second

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithLogger replaces the logger built from the configuration.  The sink,
// which may be nil, is reopened on USR1 and receives worker output.
func WithLogger(l *slog.Logger, sink *LogSink) Option {
	return func(a *Arbiter) {
		a.logger = l
		a.sink = sink
	}
}

// WithMetrics shares a metrics set instead of creating one.
func WithMetrics(m *Metrics) Option {
	return func(a *Arbiter) { a.metrics = m }
}

// WithSpawner replaces the default re-exec spawner.
func WithSpawner(s Spawner) Option {
	return func(a *Arbiter) { a.spawner = s }
}

// WithProcTable replaces the process table used to reap and signal workers.
func WithProcTable(t ProcTable) Option {
	return func(a *Arbiter) { a.procs = t }
}

// WithListeners supplies already open listeners instead of binding the
// configured addresses.
func WithListeners(ls []net.Listener) Option {
	return func(a *Arbiter) { a.listeners = ls }
}

// WithTick sets the longest the loop sleeps when nothing happens.
func WithTick(d time.Duration) Option {
	return func(a *Arbiter) { a.tick = d }
}

// WithSpawnJitter bounds the random delay between consecutive spawns.
func WithSpawnJitter(d time.Duration) Option {
	return func(a *Arbiter) { a.jitter = d }
}

// Arbiter is the supervising process.  It keeps the configured number of
// workers alive and turns signals into actions on them.
type Arbiter struct {
	app     Application
	cfg     *Config
	logger  *slog.Logger
	sink    *LogSink
	ring    *Log
	metrics *Metrics
	board   *StatusBoard

	id         string
	pid        int
	masterPid  int
	masterName string
	procName   string
	state      atomic.Int32

	listeners []net.Listener
	files     []*os.File
	addrs     []string

	spawner Spawner
	procs   ProcTable
	pool    *Pool
	waker   *Waker
	bridge  atomic.Pointer[Bridge]

	tick        time.Duration
	jitter      time.Duration
	spawnCtx    context.Context
	cancelSpawn context.CancelFunc
	services    []func(context.Context) error

	getppid      func() int
	startArbiter func(string, []string, []*os.File) (int, error)
}

// NewArbiter creates an arbiter for app.  Nothing happens until Run.
func NewArbiter(app Application, opts ...Option) (*Arbiter, error) {
	cfg := app.Config()
	if cfg == nil {
		return nil, fmt.Errorf("%w: application has no configuration", ErrBadConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Arbiter{
		app:          app,
		cfg:          cfg.Clone(),
		ring:         NewLog(),
		board:        NewStatusBoard(),
		masterName:   "Master",
		procName:     cfg.ProcName,
		tick:         time.Second,
		jitter:       100 * time.Millisecond,
		getppid:      unix.Getppid,
		startArbiter: startArbiter,
	}
	a.spawnCtx, a.cancelSpawn = context.WithCancel(context.Background())
	for _, o := range opts {
		o(a)
	}
	if a.logger == nil {
		a.logger, a.sink = NewLogger(a.cfg.Log, os.Stderr, a.ring)
	}
	if a.metrics == nil {
		a.metrics = NewMetrics()
	}
	return a, nil
}

// AddService registers a function run alongside the control loop.  Its
// context is cancelled when the arbiter stops.  A service that fails is
// logged when it returns; the arbiter and other services keep running.
// It must be called before Run.
func (a *Arbiter) AddService(fn func(context.Context) error) {
	a.services = append(a.services, fn)
}

// Run starts the arbiter and blocks until it stops.  The returned error
// maps to an exit status with ExitCode.  Cancelling ctx stops the arbiter
// gracefully, as TERM does.
func (a *Arbiter) Run(ctx context.Context) error {
	if err := a.start(); err != nil {
		a.logger.Error("Failed to start arbiter", "error", err)
		a.cleanup()
		return err
	}
	defer a.cleanup()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopWake := context.AfterFunc(ctx, a.waker.Wake)
	defer stopWake()

	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range a.services {
		g.Go(func() error {
			if err := svc(gctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("Service failed", "error", err)
			}
			return nil
		})
	}

	err := a.loop(ctx)
	cancel()
	g.Wait()
	return err
}

func (a *Arbiter) start() error {
	a.setState(StateStarting)
	a.pid = os.Getpid()
	a.id = uuid.NewString()
	if v := os.Getenv(EnvMasterPid); v != "" {
		if pid, err := strconv.Atoi(v); err == nil && pid > 0 {
			a.masterPid = pid
			a.procName = a.cfg.ProcName + ".2"
			a.masterName = "Master.2"
		}
	}
	a.logger.Info("Starting swoop", "id", a.id, "pid", a.pid)

	waker, err := NewWaker()
	if err != nil {
		return err
	}
	a.waker = waker
	b := NewBridge(waker, a.cancelSpawn, a.logger, a.metrics)
	b.Start()
	a.bridge.Store(b)

	if a.listeners == nil {
		if a.listeners, err = a.openListeners(); err != nil {
			return err
		}
	}
	a.addrs = listenerAddrs(a.listeners)

	if a.spawner == nil {
		if err := a.ensureFiles(); err != nil {
			return err
		}
		exe, err := os.Executable()
		if err != nil {
			return err
		}
		var out io.Writer = os.Stderr
		if a.sink != nil {
			out = a.sink
		}
		a.spawner = &execSpawner{
			path:   exe,
			args:   os.Args,
			files:  a.files,
			config: a.workerConfig,
			out:    out,
			logger: a.logger,
		}
	}
	if a.procs == nil {
		a.procs = osProcTable{}
	}
	a.pool = NewPool(PoolConfig{
		Target:     a.cfg.Workers,
		Timeout:    a.cfg.TimeoutDuration(),
		Jitter:     a.jitter,
		RatePeriod: time.Duration(a.cfg.SpawnRatePeriod) * time.Second,
	}, a.spawner, a.procs, a.logger, a.metrics)

	if a.masterPid == 0 {
		a.writePidFile()
	}
	setProcTitle(a.title())
	a.logger.Info("Listening at", "addresses", strings.Join(a.addrs, ", "), "pid", a.pid)
	a.logger.Info("Using worker", "class", a.cfg.WorkerClass)
	if a.cfg.Preload {
		a.logger.Info("Preload requested, application is loaded in each worker")
	}
	a.publish()
	return nil
}

func (a *Arbiter) openListeners() ([]net.Listener, error) {
	if v := os.Getenv(EnvListenFds); v != "" {
		os.Unsetenv(EnvListenFds)
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("bad %s: %q", EnvListenFds, v)
		}
		return inheritListeners(n)
	}
	return OpenListeners(a.cfg.Bind)
}

func (a *Arbiter) ensureFiles() error {
	if a.files != nil {
		return nil
	}
	files, err := listenerFiles(a.listeners)
	if err != nil {
		return err
	}
	a.files = files
	return nil
}

func (a *Arbiter) cleanup() {
	if b := a.bridge.Load(); b != nil {
		b.Stop()
	}
	a.cancelSpawn()
	if a.pool != nil && a.pool.ReexecPid() != 0 {
		keepSocketFiles(a.listeners)
	}
	closeListeners(a.listeners)
	closeFiles(a.files)
	a.removePidFile()
	a.logger.Info("Shutting down", "name", a.masterName, "pid", a.pid)
	a.publish()
	if a.waker != nil {
		a.waker.Close()
	}
	if a.sink != nil {
		a.sink.Close()
	}
}

func (a *Arbiter) loop(ctx context.Context) error {
	a.setState(StateRunning)
	if err := a.reconcile(); err != nil && !isRecoverable(err) {
		return fmt.Errorf("%w: %v", ErrLoopFailed, err)
	}
	for {
		done, err := a.iterate(ctx)
		a.publish()
		var ee *ExitError
		switch {
		case errors.As(err, &ee):
			return err
		case err == nil && done:
			return nil
		case err == nil:
		case isRecoverable(err):
			a.logger.Warn("Recoverable error in arbiter loop", "error", err)
		default:
			a.logger.Error("Unhandled exception in main loop", "error", err)
			a.pool.KillAll(unix.SIGTERM)
			return fmt.Errorf("%w: %v", ErrLoopFailed, err)
		}
	}
}

// iterate runs one pass of the control loop.
func (a *Arbiter) iterate(ctx context.Context) (done bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	b := a.bridge.Load()
	a.maybePromote()
	if b.Interrupted() {
		return true, a.interrupt()
	}
	if b.TakeChild() {
		a.reap()
	}
	if ctx.Err() != nil {
		return true, a.stop(true)
	}

	k, ok := b.Next()
	if ok {
		return a.dispatch(k)
	}
	if _, err := a.waker.Wait(a.tick); err != nil {
		return false, err
	}
	if b.Interrupted() {
		return false, nil
	}
	if b.TakeChild() {
		a.reap()
	}
	a.pool.EnforceTimeouts()
	return false, a.reconcile()
}

func (a *Arbiter) reconcile() error {
	err := a.pool.Reconcile(a.spawnCtx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *Arbiter) reap() {
	for _, e := range a.pool.Reap() {
		if e.Reexec {
			a.logger.Info("Re-executed arbiter exited", "pid", e.Pid)
		}
	}
}

func (a *Arbiter) dispatch(k SignalKind) (bool, error) {
	a.logger.Info("Handling signal", "signal", k.String())
	switch k {
	case SigHUP:
		a.reload()
	case SigTERM:
		return true, a.stop(true)
	case SigQUIT:
		return true, a.stop(false)
	case SigUSR1:
		a.reopenLogs()
	case SigUSR2:
		a.reexec()
	case SigWINCH, SigTTIN, SigTTOU:
		a.delegate(k)
	default:
		a.logger.Info("Ignoring unknown signal", "signal", k.String())
	}
	return false, nil
}

// reload applies a re-read configuration to future workers and recycles
// the current ones.  The worker count stays as it was at startup.
func (a *Arbiter) reload() {
	cfg, err := a.app.Reload()
	if err == nil && cfg != nil {
		err = cfg.Validate()
	}
	if err != nil || cfg == nil {
		a.logger.Error("Failed to reload configuration", "error", err)
		return
	}
	cfg = cfg.Clone()
	if cfg.Workers != a.pool.Target() {
		a.logger.Info("Worker count change takes effect on restart",
			"workers", cfg.Workers, "target", a.pool.Target())
	}
	a.cfg = cfg
	a.pool.SetTimeout(cfg.TimeoutDuration())
	a.pool.KillAll(unix.SIGTERM)
}

// stop shuts the workers down.  A graceful stop asks with TERM and waits
// up to the graceful timeout; a quick one uses QUIT and a short wait.
// Stragglers are killed.  An INT during the wait cuts it short and is
// reported as from interrupt.
func (a *Arbiter) stop(graceful bool) error {
	a.setState(StateTerminating)
	b := a.bridge.Load()
	sig, limit := unix.SIGQUIT, QuickStopTimeout
	if graceful {
		sig, limit = unix.SIGTERM, a.cfg.GracefulDuration()
	}
	a.pool.KillAll(sig)

	deadline := time.Now().Add(limit)
	for a.pool.Len() > 0 && time.Now().Before(deadline) && !b.Interrupted() {
		a.waker.Wait(100 * time.Millisecond)
		b.TakeChild()
		a.reap()
		a.publish()
	}
	if b.Interrupted() {
		return a.interrupt()
	}
	if a.pool.Len() > 0 {
		a.logger.Warn("Killing workers that did not stop in time", "count", a.pool.Len())
		a.pool.KillAll(unix.SIGKILL)
		a.reap()
	}
	return nil
}

func (a *Arbiter) interrupt() error {
	a.setState(StateTerminating)
	a.logger.Info("Handling signal", "signal", SigINT.String())
	a.pool.KillAll(unix.SIGKILL)
	a.reap()
	return &ExitError{Code: int(unix.SIGINT), Reason: "interrupted"}
}

func (a *Arbiter) reopenLogs() {
	if a.sink != nil {
		if err := a.sink.Reopen(); err != nil {
			a.logger.Warn("Failed to reopen log file", "error", err)
		}
	}
	a.pool.KillAll(unix.SIGUSR1)
}

// reexec starts a new arbiter on the same listeners.  Only one may be
// in flight, and a not yet promoted arbiter may not start another.
func (a *Arbiter) reexec() {
	if a.pool.ReexecPid() != 0 {
		a.logger.Warn("USR2 signal ignored. Child exists.")
		return
	}
	if a.masterPid != 0 {
		a.logger.Warn("USR2 signal ignored. Parent exists.")
		return
	}
	if err := a.ensureFiles(); err != nil {
		a.logger.Error("Cannot pass listeners to new arbiter", "error", err)
		return
	}
	exe, err := os.Executable()
	if err != nil {
		a.logger.Error("Cannot find executable", "error", err)
		return
	}
	pid, err := a.startArbiter(exe, os.Args, a.files)
	if err != nil {
		a.logger.Error("Failed to re-execute arbiter", "error", err)
		return
	}
	a.pool.SetReexecPid(pid)
	a.logger.Info("Started new arbiter", "pid", pid)
}

func (a *Arbiter) delegate(k SignalKind) {
	p, ok := a.app.(SignalPolicy)
	if !ok {
		a.logger.Info("No policy for signal, ignoring", "signal", k.String())
		return
	}
	if err := p.HandleSignal(k); err != nil {
		a.logger.Warn("Signal policy failed", "signal", k.String(), "error", err)
	}
}

// maybePromote finishes a re-exec: once the arbiter that started us is no
// longer our parent, we are the arbiter.
func (a *Arbiter) maybePromote() {
	if a.masterPid == 0 || a.getppid() == a.masterPid {
		return
	}
	a.setState(StatePromoting)
	a.logger.Info("Master has been promoted.", "pid", a.pid)
	a.masterName = "Master"
	a.masterPid = 0
	a.procName = a.cfg.ProcName
	os.Unsetenv(EnvMasterPid)
	setProcTitle(a.title())
	a.writePidFile()
	a.setState(StateRunning)
}

func (a *Arbiter) title() string {
	return "swoop master [" + a.procName + "]"
}

func (a *Arbiter) workerConfig() *Config {
	return a.cfg
}

func (a *Arbiter) writePidFile() {
	if a.cfg.PidFile == "" {
		return
	}
	if err := os.WriteFile(a.cfg.PidFile, []byte(strconv.Itoa(a.pid)+"\n"), 0644); err != nil {
		a.logger.Warn("Failed to write pid file", "path", a.cfg.PidFile, "error", err)
	}
}

// removePidFile only removes a pid file that still names us.
func (a *Arbiter) removePidFile() {
	if a.cfg.PidFile == "" {
		return
	}
	b, err := os.ReadFile(a.cfg.PidFile)
	if err != nil || strings.TrimSpace(string(b)) != strconv.Itoa(a.pid) {
		return
	}
	os.Remove(a.cfg.PidFile)
}

func (a *Arbiter) setState(s State) {
	a.state.Store(int32(s))
}

// State returns the lifecycle state.
func (a *Arbiter) State() State {
	return State(a.state.Load())
}

func (a *Arbiter) publish() {
	if a.pool == nil {
		return
	}
	depth := 0
	if b := a.bridge.Load(); b != nil {
		depth = b.Pending()
	}
	a.board.Publish(Status{
		Id:         a.id,
		Name:       a.masterName,
		ProcName:   a.procName,
		Pid:        a.pid,
		MasterPid:  a.masterPid,
		ReexecPid:  a.pool.ReexecPid(),
		State:      a.State().String(),
		WorkerType: a.cfg.WorkerClass,
		Target:     a.pool.Target(),
		Timeout:    a.cfg.Timeout,
		QueueDepth: depth,
		Listeners:  a.addrs,
		Workers:    a.pool.Workers(),
	})
}

// Status returns the most recently published snapshot.
func (a *Arbiter) Status() Status {
	return a.board.Get()
}

// WatchStatus waits up to expire for the status serial to move past old.
func (a *Arbiter) WatchStatus(old int64, expire time.Duration) int64 {
	return a.board.Watch(old, expire)
}

// Log is the in-memory log ring served by the status API.
func (a *Arbiter) Log() *Log {
	return a.ring
}

// Metrics returns the arbiter's metrics.
func (a *Arbiter) Metrics() *Metrics {
	return a.metrics
}

// Logger returns the arbiter's logger.
func (a *Arbiter) Logger() *slog.Logger {
	return a.logger
}

// Inject raises a queued signal as though it came from the OS.  It is
// safe to call from any goroutine once Run has started.
func (a *Arbiter) Inject(k SignalKind) error {
	b := a.bridge.Load()
	if b == nil {
		return ErrNotRunning
	}
	return b.Inject(k)
}
