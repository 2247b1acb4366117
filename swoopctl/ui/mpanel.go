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

package ui

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/swoopd/swoop"
	"github.com/swoopd/swoop/rest"
)

var (
	StyleNormal = tcell.StyleDefault.
			Foreground(tcell.ColorSilver).
			Background(tcell.ColorBlack)
	StyleGood = tcell.StyleDefault.
			Foreground(tcell.ColorGreen).
			Background(tcell.ColorBlack)
	StyleWarn = tcell.StyleDefault.
			Foreground(tcell.ColorYellow).
			Background(tcell.ColorBlack)
	StyleError = tcell.StyleDefault.
			Foreground(tcell.ColorMaroon).
			Background(tcell.ColorBlack)
)

// MainPanel lists the arbiter's workers, one per line.
type MainPanel struct {
	content  *views.CellView
	server   string
	selected int // pid, 0 for none
	width    int
	height   int
	curx     int
	cury     int
	lines    []string
	styles   []tcell.Style
	pids     []int

	Panel
}

// mainModel provides the model for a CellView.
type mainModel struct {
	m *MainPanel
}

func NewMainPanel(app *App, server string) *MainPanel {
	m := &MainPanel{server: server}

	m.Panel.Init(app)
	m.content = views.NewCellView()
	m.SetContent(m.content)

	m.content.SetModel(&mainModel{m})
	m.content.SetStyle(StyleNormal)

	m.SetTitle(server)
	m.SetKeys([]string{"[Q] Quit"})

	return m
}

func (m *MainPanel) Draw() {
	m.update()
	m.Panel.Draw()
}

func (m *MainPanel) HandleEvent(ev tcell.Event) bool {
	app := m.App()
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			m.unselect()
			return true
		case tcell.KeyF1:
			app.ShowHelp()
			return true
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				app.Quit()
				return true
			case 'H', 'h':
				app.ShowHelp()
				return true
			case 'L', 'l':
				app.ShowLog()
				return true
			case 'R', 'r':
				app.Signal("HUP")
				return true
			case 'O', 'o':
				app.Signal("USR1")
				return true
			case '+':
				app.Signal("TTIN")
				return true
			case '-':
				app.Signal("TTOU")
				return true
			}
		}
	}
	return m.Panel.HandleEvent(ev)
}

func (model *mainModel) GetCell(x, y int) (rune, tcell.Style, []rune, int) {
	m := model.m
	if y < 0 || y >= len(m.lines) {
		return ' ', StyleNormal, nil, 1
	}
	ch := ' '
	if x >= 0 && x < len(m.lines[y]) {
		ch = rune(m.lines[y][x])
	}
	style := m.styles[y]
	if m.selected != 0 && m.pids[y] == m.selected {
		style = style.Reverse(true)
	}
	return ch, style, nil, 1
}

func (model *mainModel) GetBounds() (int, int) {
	return model.m.width, model.m.height
}

func (model *mainModel) GetCursor() (int, int, bool, bool) {
	m := model.m
	return m.curx, m.cury, true, false
}

func (model *mainModel) MoveCursor(offx, offy int) {
	m := model.m
	m.curx += offx
	m.cury += offy
	m.updateCursor(true)
}

func (model *mainModel) SetCursor(x, y int) {
	m := model.m
	m.curx = x
	m.cury = y
	m.updateCursor(true)
}

func (m *MainPanel) unselect() {
	m.cury = 0
	m.curx = 0
	m.updateCursor(false)
}

func (m *MainPanel) updateCursor(selected bool) {
	m.curx = max(0, min(m.curx, m.width-1))
	m.cury = max(0, min(m.cury, m.height-1))
	if selected && m.height > 0 {
		if m.selected == 0 {
			m.curx = 0
			m.cury = 0
		}
		m.selected = m.pids[m.cury]
	} else {
		m.selected = 0
	}
}

func workerLine(w swoop.WorkerInfo, now time.Time) (string, tcell.Style) {
	state, style := "ok", StyleGood
	if w.Aborted {
		state, style = "timeout", StyleError
	} else if !w.LastSeen.IsZero() && now.Sub(w.LastSeen) > 5*time.Second {
		state, style = "quiet", StyleWarn
	}
	line := fmt.Sprintf("%8d %6d  %-8s %-16s %s",
		w.Pid, w.Age, state, humanize.RelTime(w.Started, now, "", ""),
		humanize.Time(w.LastSeen))
	return line, style
}

// update refreshes the content from the latest status.  It is called
// from Draw, on the application goroutine.
func (m *MainPanel) update() {
	st, err := m.App().GetStatus()
	if err != nil {
		if e, ok := err.(*rest.Error); ok && e.Code == 401 {
			m.SetStatus("Not authorized; pass --user")
		} else {
			m.SetStatus(fmt.Sprintf("Cannot load status: %v", err))
		}
		m.SetError()
		m.lines, m.styles, m.pids = nil, nil, nil
		m.width, m.height = 0, 0
		return
	}
	if st == nil {
		m.SetStatus("Loading ...")
		m.SetNormal()
		return
	}

	now := time.Now()
	lines := make([]string, 0, len(st.Workers)+1)
	styles := make([]tcell.Style, 0, len(st.Workers)+1)
	pids := make([]int, 0, len(st.Workers)+1)

	lines = append(lines, fmt.Sprintf("%8s %6s  %-8s %-16s %s",
		"PID", "AGE", "STATE", "UP", "LAST SEEN"))
	styles = append(styles, StyleNormal.Bold(true))
	pids = append(pids, 0)

	aborted := 0
	for _, w := range st.Workers {
		line, style := workerLine(w, now)
		if w.Aborted {
			aborted++
		}
		lines = append(lines, line)
		styles = append(styles, style)
		pids = append(pids, w.Pid)
	}

	m.width = 0
	for _, l := range lines {
		m.width = max(m.width, len(l))
	}
	m.height = len(lines)
	m.lines, m.styles, m.pids = lines, styles, pids

	m.SetTitle(fmt.Sprintf("%s  %s pid %d [%s]", m.server, st.Name, st.Pid, st.State))
	status := fmt.Sprintf("%d/%d workers  %d timed out  %d queued  up %s",
		len(st.Workers), st.Target, aborted, st.QueueDepth,
		humanize.RelTime(st.CreateTime, now, "", ""))
	if n := m.App().notice; n != "" {
		status += "  | " + n
	}
	m.SetStatus(status)

	switch {
	case aborted > 0 || st.State == "terminating":
		m.SetError()
	case len(st.Workers) < st.Target:
		m.SetWarn()
	default:
		m.SetGood()
	}
	m.SetKeys([]string{"[Q] Quit", "[H] Help", "[L] Log", "[R] Reload", "[O] Reopen logs"})
}
