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

// Package rest exposes a running arbiter over HTTP: its status, its
// workers, its log, and a way to send it signals.
package rest

import (
	"strconv"
	"time"
)

const (
	mimeJson = "application/json; charset=UTF-8"

	// A GET carrying both headers, with the etag still current, is held
	// until the resource changes or the time (in seconds) elapses.
	PollEtagHeader = "X-Swoop-Poll-Etag"
	PollTimeHeader = "X-Swoop-Poll-Time"

	// MaxPollTime caps a long poll.
	MaxPollTime = 300 * time.Second
)

var ok struct{}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

func makeEtag(id int64) string {
	return `"` + strconv.FormatInt(id, 16) + `"`
}
