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
	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"
)

type HelpPanel struct {
	text *views.TextArea
	Panel
}

func (h *HelpPanel) HandleEvent(ev tcell.Event) bool {
	if h.escToMain(ev) {
		return true
	}
	return h.Panel.HandleEvent(ev)
}

func NewHelpPanel(app *App) *HelpPanel {
	h := &HelpPanel{}
	h.Panel.Init(app)

	h.text = views.NewTextArea()
	h.text.SetLines([]string{
		"Supported keys (not all keys available in all contexts)",
		"",
		"  <ESC>          : return to main screen",
		"  <CTRL-C>       : quit",
		"  <CTRL-L>       : refresh the screen",
		"  <H>            : show this help",
		"  <UP>, <DOWN>   : navigation",
		"  <L>            : view the arbiter log",
		"  <R>            : reload configuration (HUP)",
		"  <O>            : reopen log files (USR1)",
		"  <+>            : send TTIN to the arbiter",
		"  <->            : send TTOU to the arbiter",
		"",
		"This program is distributed under the Apache 2.0 License",
		"Copyright 2026 The Swoop Authors",
	})
	h.SetContent(h.text)
	h.SetTitle("Help")
	h.SetKeys([]string{"[ESC] Main"})
	return h
}
