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
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"
)

// LogPanel follows the arbiter's log, which includes worker output.
type LogPanel struct {
	text *views.TextArea
	Panel
}

func NewLogPanel(app *App) *LogPanel {
	p := &LogPanel{}
	p.Panel.Init(app)

	p.SetKeys([]string{"[ESC] Main", "[H] Help"})
	p.SetTitle("Arbiter Log")

	p.text = views.NewTextArea()
	p.text.EnableCursor(false)
	p.text.SetStyle(StyleNormal)
	p.SetContent(p.text)
	return p
}

func (p *LogPanel) Draw() {
	p.update()
	p.Panel.Draw()
}

func (p *LogPanel) HandleEvent(ev tcell.Event) bool {
	if p.escToMain(ev) {
		return true
	}
	if ev, ok := ev.(*tcell.EventKey); ok {
		switch {
		case ev.Key() == tcell.KeyF1,
			ev.Key() == tcell.KeyRune && (ev.Rune() == 'H' || ev.Rune() == 'h'):
			p.app.ShowHelp()
			return true
		}
	}
	return p.Panel.HandleEvent(ev)
}

func (p *LogPanel) update() {
	info, err := p.app.GetLog()
	if info == nil {
		if err != nil {
			p.SetStatus(fmt.Sprintf("No data: %v", err))
			p.SetError()
		} else {
			p.SetStatus("Loading ...")
			p.SetNormal()
		}
		p.text.SetLines([]string{""})
		return
	}
	p.SetStatus(fmt.Sprintf("%d lines", len(info.Records)))
	p.SetNormal()

	lines := make([]string, 0, len(info.Records))
	for _, r := range info.Records {
		lines = append(lines, strings.TrimRight(r.Text, "\n"))
	}
	p.text.SetLines(lines)
}
