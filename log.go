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

package swoop

import (
	"context"
	"strings"
	"sync"
	"time"
)

const (
	MaxLogRecords = 1000
)

type LogRecord struct {
	Id   int64     `json:"id,string"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// Log keeps the most recent lines written by the arbiter and its workers,
// so that they can be served over the status API.  It is an io.Writer.
type Log struct {
	records []LogRecord
	next    int // total lines ever stored; next%len(records) is the slot
	id      int64
	changed chan struct{}
	mx      sync.Mutex
}

// Write implements io.Writer.  Each newline separated line becomes one
// record.
func (l *Log) Write(b []byte) (int, error) {
	str := strings.Trim(string(b), "\n")
	if str == "" {
		return len(b), nil
	}
	now := time.Now()
	l.mx.Lock()
	for _, line := range strings.Split(str, "\n") {
		l.id++
		l.records[l.next%len(l.records)] = LogRecord{
			Id:   l.id,
			Time: now,
			Text: line,
		}
		l.next++
	}
	close(l.changed)
	l.changed = make(chan struct{})
	l.mx.Unlock()
	return len(b), nil
}

// Clear drops all records.  The id moves forward so that cached etags
// are invalidated.
func (l *Log) Clear() {
	l.mx.Lock()
	l.next = 0
	l.id = time.Now().UnixNano()
	close(l.changed)
	l.changed = make(chan struct{})
	l.mx.Unlock()
}

// GetRecords returns the stored records, oldest first, together with an
// id suitable for use as an Etag.  If last equals the current id, nothing
// has changed and nil is returned.
func (l *Log) GetRecords(last int64) ([]LogRecord, int64) {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.id == last {
		return nil, last
	}
	cnt := l.next
	if cnt > len(l.records) {
		cnt = len(l.records)
	}
	recs := make([]LogRecord, 0, cnt)
	for i := l.next - cnt; i < l.next; i++ {
		recs = append(recs, l.records[i%len(l.records)])
	}
	return recs, l.id
}

// Watch waits until the log id differs from last, the context is done,
// or expire elapses, and returns the current id.
func (l *Log) Watch(ctx context.Context, last int64, expire time.Duration) int64 {
	l.mx.Lock()
	id, ch := l.id, l.changed
	l.mx.Unlock()
	if id != last || expire <= 0 {
		return id
	}

	timer := time.NewTimer(expire)
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
	case <-ctx.Done():
	}

	l.mx.Lock()
	defer l.mx.Unlock()
	return l.id
}

// NewLog returns a Log holding up to MaxLogRecords lines.
func NewLog() *Log {
	return &Log{
		records: make([]LogRecord, MaxLogRecords),
		// We start the id at the current time, so that a restarted
		// arbiter never hands out an etag that a client has cached.
		id:      time.Now().UnixNano(),
		changed: make(chan struct{}),
	}
}
