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
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"
)

var (
	barStyle = tcell.StyleDefault.
			Foreground(tcell.ColorBlack).
			Background(tcell.ColorSilver)
	barAccent = tcell.StyleDefault.
			Foreground(tcell.ColorNavy).
			Background(tcell.ColorSilver).
			Bold(true)
)

// TitleBar shows the arbiter's address in the center and the program
// name on the right.
type TitleBar struct {
	once sync.Once
	views.SimpleStyledTextBar
}

func (tb *TitleBar) Init() {
	tb.once.Do(func() {
		tb.SimpleStyledTextBar.Init()
		tb.SimpleStyledTextBar.SetStyle(barStyle)
		for _, reg := range []func(rune, tcell.Style){
			tb.RegisterLeftStyle, tb.RegisterCenterStyle, tb.RegisterRightStyle,
		} {
			reg('N', barStyle)
			reg('A', barAccent)
		}
	})
}

func NewTitleBar() *TitleBar {
	tb := &TitleBar{}
	tb.Init()
	return tb
}

// KeyBar lists the keys a panel responds to.  Text in brackets is
// highlighted.
type KeyBar struct {
	once sync.Once
	views.SimpleStyledTextBar
}

func (k *KeyBar) Init() {
	k.once.Do(func() {
		k.SimpleStyledTextBar.Init()
		k.SimpleStyledTextBar.SetStyle(barStyle)
		k.RegisterLeftStyle('N', barStyle)
		k.RegisterLeftStyle('A', barAccent)
	})
}

// SetKeys renders words such as "[Q] Quit", escaping '%' for the styled
// text bar.
func (k *KeyBar) SetKeys(words []string) {
	var b strings.Builder
	for i, w := range words {
		if i != 0 && w != "" {
			b.WriteByte(' ')
		}
		inKey := false
		for _, r := range w {
			switch {
			case r == '%':
				b.WriteString("%%")
			case r == '[' && !inKey:
				b.WriteString("[%A")
				inKey = true
			case r == ']' && inKey:
				b.WriteString("%N]")
				inKey = false
			default:
				b.WriteRune(r)
			}
		}
	}
	k.SetLeft(b.String())
}

func NewKeyBar() *KeyBar {
	kb := &KeyBar{}
	kb.Init()
	return kb
}

// StatusBar changes color with the health of what is on screen.
type StatusBar struct {
	once   sync.Once
	status string
	views.SimpleStyledTextBar
}

var (
	StatusBarStyleNormal = barStyle
	StatusBarStyleGood   = tcell.StyleDefault.
				Foreground(tcell.ColorWhite).
				Background(tcell.ColorGreen).
				Bold(true)
	StatusBarStyleWarn = tcell.StyleDefault.
				Foreground(tcell.ColorBlack).
				Background(tcell.ColorYellow)
	StatusBarStyleError = tcell.StyleDefault.
				Foreground(tcell.ColorWhite).
				Background(tcell.ColorMaroon).
				Bold(true)
)

func (sb *StatusBar) Init() {
	sb.once.Do(func() {
		sb.SimpleStyledTextBar.Init()
		sb.SetNormal()
	})
}

func (sb *StatusBar) SetStyle(style tcell.Style) {
	sb.SimpleStyledTextBar.SetStyle(style)
	sb.SimpleStyledTextBar.RegisterLeftStyle('N', style)
	sb.SimpleStyledTextBar.SetLeft(sb.status)
}

func (sb *StatusBar) SetGood()   { sb.SetStyle(StatusBarStyleGood) }
func (sb *StatusBar) SetNormal() { sb.SetStyle(StatusBarStyleNormal) }
func (sb *StatusBar) SetWarn()   { sb.SetStyle(StatusBarStyleWarn) }
func (sb *StatusBar) SetError()  { sb.SetStyle(StatusBarStyleError) }

func (sb *StatusBar) SetText(status string) {
	sb.status = strings.ReplaceAll(status, "%", "%%")
	sb.SetLeft(sb.status)
}

func NewStatusBar() *StatusBar {
	sb := &StatusBar{}
	sb.Init()
	return sb
}
