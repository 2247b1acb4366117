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

// Package ui is a full screen view of a running arbiter, in the style of
// top(1).
package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/swoopd/swoop/rest"
)

type App struct {
	app       *views.Application
	view      views.View
	panel     views.Widget
	help      *HelpPanel
	log       *LogPanel
	main      *MainPanel
	client    *rest.Client
	status    *rest.StatusInfo
	err       error
	notice    string
	logInfo   *rest.LogInfo
	logErr    error
	logCancel context.CancelFunc

	views.WidgetWatchers
}

func (a *App) show(w views.Widget) {
	if w != a.panel {
		a.panel.SetView(nil)
		a.panel = w
	}
	a.panel.SetView(a.view)
	a.panel.Resize()
	a.app.Refresh()
}

func (a *App) ShowHelp() {
	a.show(a.help)
}

func (a *App) ShowLog() {
	if a.logCancel != nil {
		a.logCancel()
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	a.logInfo = nil
	a.logCancel = cancel
	go a.refreshLog(ctx)
	a.show(a.log)
}

func (a *App) ShowMain() {
	if a.logCancel != nil {
		a.logCancel()
		a.logCancel = nil
	}
	a.show(a.main)
}

// Signal asks the arbiter to act on a signal.  The outcome shows up in
// the main panel's status line.
func (a *App) Signal(name string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e := a.client.Signal(ctx, name)
		a.app.PostFunc(func() {
			if e != nil {
				a.notice = fmt.Sprintf("%s failed: %v", name, e)
			} else {
				a.notice = "Sent " + name
			}
			a.app.Update()
		})
	}()
}

func (a *App) Quit() {
	a.app.Quit()
}

func (a *App) HandleEvent(ev tcell.Event) bool {
	if ev, ok := ev.(*tcell.EventKey); ok {
		switch ev.Key() {
		case tcell.KeyCtrlC:
			a.Quit()
			return true
		case tcell.KeyCtrlL:
			a.app.Refresh()
			return true
		}
	}
	if a.panel != nil {
		return a.panel.HandleEvent(ev)
	}
	return false
}

func (a *App) Draw() {
	if a.panel != nil {
		a.panel.Draw()
	}
}

func (a *App) Resize() {
	if a.panel != nil {
		a.panel.Resize()
	}
}

func (a *App) SetView(view views.View) {
	a.view = view
	if a.panel != nil {
		a.panel.SetView(view)
	}
}

func (a *App) Size() (int, int) {
	if a.panel != nil {
		return a.panel.Size()
	}
	return 0, 0
}

func (a *App) GetAppName() string {
	return "swoopctl"
}

func NewApp(client *rest.Client, url string) *App {
	app := &App{}
	app.app = &views.Application{}
	app.client = client
	app.help = NewHelpPanel(app)
	app.log = NewLogPanel(app)
	app.main = NewMainPanel(app, url)
	app.panel = app.main

	go app.refresh()
	return app
}

// refresh keeps the status current with long polls.
func (a *App) refresh() {
	var last *rest.StatusInfo
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 6*time.Minute)
		var st *rest.StatusInfo
		var e error
		if last == nil {
			st, e = a.client.Status(ctx)
		} else {
			st, e = a.client.WatchStatus(ctx, last)
		}
		cancel()

		a.app.PostFunc(func() {
			a.status = st
			a.err = e
			a.app.Update()
		})
		if e != nil {
			last = nil
			time.Sleep(2 * time.Second)
			continue
		}
		last = st
	}
}

func (a *App) refreshLog(ctx context.Context) {
	info, e := a.client.GetLog(ctx)
	for {
		a.app.PostFunc(func() {
			a.logInfo = info
			a.logErr = e
			a.app.Update()
		})
		if ctx.Err() != nil {
			return
		}
		if e != nil {
			time.Sleep(2 * time.Second)
			info, e = a.client.GetLog(ctx)
			continue
		}
		info, e = a.client.WatchLog(ctx, info)
	}
}

// GetStatus returns the latest status, or the error that prevented
// fetching it.
func (a *App) GetStatus() (*rest.StatusInfo, error) {
	return a.status, a.err
}

func (a *App) GetLog() (*rest.LogInfo, error) {
	return a.logInfo, a.logErr
}

func (a *App) Run() error {
	a.app.SetRootWidget(a)
	a.ShowMain()
	go func() {
		// Uptimes move even when nothing else does.
		for {
			a.app.Update()
			time.Sleep(time.Second)
		}
	}()
	return a.app.Run()
}
