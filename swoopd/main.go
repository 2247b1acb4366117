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

// Command swoopd runs a pre-forked pool of workers that answer every
// connection with a fixed HTTP response.  It is both a usable smoke test
// server and the reference for embedding swoop in a program.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"github.com/swoopd/swoop"
	"github.com/swoopd/swoop/rest"
)

type options struct {
	config          string
	bind            []string
	workers         int
	workerClass     string
	timeout         int
	gracefulTimeout int
	name            string
	pidFile         string
	maxRequests     int
	logLevel        string
	logFormat       string
	logFile         string
	statusAddr      string
	watch           bool
}

func (o *options) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.config, "config", "c", "", "configuration file (YAML or TOML)")
	fs.StringArrayVarP(&o.bind, "bind", "b", nil, "address to listen on, may be repeated")
	fs.IntVarP(&o.workers, "workers", "w", 0, "number of worker processes")
	fs.StringVarP(&o.workerClass, "worker-class", "k", "", "worker class")
	fs.IntVarP(&o.timeout, "timeout", "t", 0, "worker timeout in seconds, 0 disables")
	fs.IntVar(&o.gracefulTimeout, "graceful-timeout", 0, "graceful shutdown timeout in seconds")
	fs.StringVarP(&o.name, "name", "n", "", "process name")
	fs.StringVarP(&o.pidFile, "pid", "p", "", "pid file")
	fs.IntVar(&o.maxRequests, "max-requests", 0, "recycle workers after this many connections")
	fs.StringVar(&o.logLevel, "log-level", "", "log level (trace, debug, info, warn, error, critical)")
	fs.StringVar(&o.logFormat, "log-format", "", "log format (text or json)")
	fs.StringVar(&o.logFile, "log-file", "", "log file, rotated on USR1")
	fs.StringVar(&o.statusAddr, "status", "", "address for the status API")
	fs.BoolVar(&o.watch, "watch", false, "reload when the configuration file changes")
}

// apply overrides cfg with the flags that were given explicitly.
func (o *options) apply(fs *pflag.FlagSet, cfg *swoop.Config) {
	if fs.Changed("bind") {
		cfg.Bind = append([]string(nil), o.bind...)
	}
	if fs.Changed("workers") {
		cfg.Workers = o.workers
	}
	if fs.Changed("worker-class") {
		cfg.WorkerClass = o.workerClass
	}
	if fs.Changed("timeout") {
		cfg.Timeout = o.timeout
	}
	if fs.Changed("graceful-timeout") {
		cfg.GracefulTimeout = o.gracefulTimeout
	}
	if fs.Changed("name") {
		cfg.ProcName = o.name
	}
	if fs.Changed("pid") {
		cfg.PidFile = o.pidFile
	}
	if fs.Changed("max-requests") {
		cfg.MaxRequests = o.maxRequests
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if fs.Changed("log-format") {
		cfg.Log.Format = o.logFormat
	}
	if fs.Changed("log-file") {
		cfg.Log.File = o.logFile
	}
	if fs.Changed("status") {
		cfg.Status.Address = o.statusAddr
	}
	if fs.Changed("watch") {
		cfg.WatchConfig = o.watch
	}
}

// daemonApp re-reads its configuration file on reload and reapplies the
// command line on top of it.
type daemonApp struct {
	*swoop.BaseApplication
	path     string
	override func(*swoop.Config)
}

func (d *daemonApp) Reload() (*swoop.Config, error) {
	if d.path == "" {
		return d.Config(), nil
	}
	cfg, err := swoop.LoadConfig(d.path)
	if err != nil {
		return nil, err
	}
	d.override(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d.SetConfig(cfg)
	return cfg, nil
}

var exitCode int

func newRootCommand() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:           "swoopd",
		Short:         "Pre-fork worker pool server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := cmd.Flags()
			cfg := swoop.DefaultConfig()
			if o.config != "" {
				var err error
				if cfg, err = swoop.LoadConfig(o.config); err != nil {
					exitCode = 1
					return err
				}
			}
			o.apply(fs, cfg)
			if err := cfg.Validate(); err != nil {
				exitCode = 1
				return err
			}
			app := &daemonApp{
				BaseApplication: swoop.NewBaseApplication(cfg),
				path:            o.config,
				override:        func(c *swoop.Config) { o.apply(fs, c) },
			}
			exitCode = run(app)
			return nil
		},
	}
	o.addFlags(cmd.Flags())
	cmd.AddCommand(newHashCommand())
	return cmd
}

func run(app *daemonApp) int {
	arb, err := swoop.NewArbiter(app)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cfg := app.Config()
	if sc := cfg.Status; sc.Address != "" {
		h := rest.NewHandler(arb)
		if sc.User != "" {
			h.SetAuth(sc.User, sc.PasswordHash)
		}
		arb.AddService(func(ctx context.Context) error {
			return rest.Serve(ctx, sc.Address, sc.MaxConns, h, arb.Logger())
		})
	}
	if cfg.WatchConfig && app.path != "" {
		arb.AddService(func(ctx context.Context) error {
			return swoop.WatchConfig(ctx, app.path, arb.Inject, arb.Logger())
		})
	}
	return swoop.ExitCode(arb.Run(context.Background()))
}

func newHashCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password PASSWORD",
		Short: "Print a bcrypt hash for the status API password_hash setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
}

func main() {
	if swoop.IsWorkerProcess() {
		os.Exit(swoop.RunWorker(swoop.NewBaseApplication(nil)))
	}
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "swoopd:", err)
		if exitCode == 0 {
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}
