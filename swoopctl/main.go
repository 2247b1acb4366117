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

// Command swoopctl talks to the status API of a running swoopd.
//
// The flags are
//
//	-a <address>	- the status API, default http://127.0.0.1:8321
//	-u <user:pass>	- user name & password for basic auth
//
// Subcommands are
//
//	status          - show the arbiter's state
//	workers         - list workers
//	log [-f]        - print (and follow) the arbiter log
//	signal <NAME>   - send HUP, TERM, QUIT, USR1, USR2, TTIN, TTOU or WINCH
//	top             - full screen view
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/swoopd/swoop"
	"github.com/swoopd/swoop/rest"
	"github.com/swoopd/swoop/swoopctl/ui"
)

var (
	addr = "http://127.0.0.1:8321"
	auth = ""
)

func newClient() (*rest.Client, error) {
	client := rest.NewClient(strings.TrimSuffix(addr, "/"))
	if auth != "" {
		a := strings.SplitN(auth, ":", 2)
		if len(a) != 2 {
			return nil, errors.New("bad user:pass supplied")
		}
		client.SetAuth(a[0], a[1])
	}
	return client, nil
}

func stateColor(state string) *color.Color {
	switch state {
	case "running":
		return color.New(color.FgGreen, color.Bold)
	case "terminating":
		return color.New(color.FgRed, color.Bold)
	}
	return color.New(color.FgYellow)
}

func showStatus(w io.Writer, st *swoop.Status) {
	now := time.Now()
	fmt.Fprintf(w, "Name:      %s (%s)\n", st.Name, st.ProcName)
	fmt.Fprintf(w, "Id:        %s\n", st.Id)
	fmt.Fprintf(w, "Pid:       %d\n", st.Pid)
	if st.MasterPid != 0 {
		fmt.Fprintf(w, "Parent:    %d (not yet promoted)\n", st.MasterPid)
	}
	if st.ReexecPid != 0 {
		fmt.Fprintf(w, "Successor: %d\n", st.ReexecPid)
	}
	fmt.Fprintf(w, "State:     %s\n", stateColor(st.State).Sprint(st.State))
	fmt.Fprintf(w, "Up:        %s\n", humanize.RelTime(st.CreateTime, now, "", ""))
	fmt.Fprintf(w, "Workers:   %d/%d (%s)\n", len(st.Workers), st.Target, st.WorkerType)
	if st.Timeout > 0 {
		fmt.Fprintf(w, "Timeout:   %ds\n", st.Timeout)
	} else {
		fmt.Fprintf(w, "Timeout:   disabled\n")
	}
	fmt.Fprintf(w, "Queued:    %d\n", st.QueueDepth)
	fmt.Fprintf(w, "Listening: %s\n", strings.Join(st.Listeners, ", "))
}

func showWorkers(w io.Writer, workers []swoop.WorkerInfo) {
	now := time.Now()
	fmt.Fprintf(w, "%8s %6s  %-8s %-16s %s\n", "PID", "AGE", "STATE", "UP", "LAST SEEN")
	for _, wi := range workers {
		state := color.GreenString("%-8s", "ok")
		if wi.Aborted {
			state = color.RedString("%-8s", "timeout")
		}
		fmt.Fprintf(w, "%8d %6d  %s %-16s %s\n", wi.Pid, wi.Age, state,
			humanize.RelTime(wi.Started, now, "", ""), humanize.Time(wi.LastSeen))
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the arbiter's state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			st, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			showStatus(cmd.OutOrStdout(), &st.Status)
			return nil
		},
	}
}

func newWorkersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "workers",
		Short: "List the workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			workers, err := client.Workers(cmd.Context())
			if err != nil {
				return err
			}
			showWorkers(cmd.OutOrStdout(), workers)
			return nil
		},
	}
}

func newLogCommand() *cobra.Command {
	follow := false
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print the arbiter log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			info, err := client.GetLog(ctx)
			if err != nil {
				return err
			}
			var last int64
			for {
				for _, r := range info.Records {
					if r.Id > last {
						fmt.Fprintln(cmd.OutOrStdout(), r.Text)
						last = r.Id
					}
				}
				if !follow {
					return nil
				}
				if info, err = client.WatchLog(ctx, info); err != nil {
					return err
				}
			}
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "wait for new lines")
	return cmd
}

func newSignalCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "signal NAME",
		Short: "Ask the arbiter to act on a signal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := swoop.ParseSignal(args[0]); err != nil {
				return err
			}
			client, err := newClient()
			if err != nil {
				return err
			}
			return client.Signal(cmd.Context(), strings.ToUpper(args[0]))
		},
	}
}

func newTopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "top",
		Short: "Full screen view of the arbiter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			return ui.NewApp(client, addr).Run()
		},
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "swoopctl",
		Short:         "Control a running swoopd",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&addr, "address", "a", addr, "status API address")
	cmd.PersistentFlags().StringVarP(&auth, "user", "u", auth, "user:pass authentication")
	cmd.AddCommand(
		newStatusCommand(),
		newWorkersCommand(),
		newLogCommand(),
		newSignalCommand(),
		newTopCommand(),
	)
	return cmd
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Failed:"), err)
		os.Exit(1)
	}
}
