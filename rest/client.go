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

package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/swoopd/swoop"
)

// StatusInfo is a status snapshot together with the etag it was served
// with.
type StatusInfo struct {
	etag string
	swoop.Status
}

type LogInfo struct {
	etag    string
	Records []swoop.LogRecord
}

type Client struct {
	user   string // HTTP Basic-Auth
	pass   string
	base   string // URI to root of tree on server
	auth   bool
	client *retryablehttp.Client

	// Cached data
	status *StatusInfo
	log    *LogInfo
	lock   sync.Mutex
}

func (c *Client) SetAuth(user string, pass string) {
	c.user = user
	c.pass = pass
	c.auth = true
}

// poll issues a GET against the URL, optionally checking for a cache,
// including optionally issuing a long poll that waits until the value
// changes.  The return values are the new Etag and any error.  If the
// value did not change, then the returned etag will be "", but the error
// will be nil.
func (c *Client) poll(ctx context.Context, url string, etag string, wait int, v interface{}) (string, error) {
	req, e := retryablehttp.NewRequestWithContext(ctx, "GET", url, nil)
	if e != nil {
		return "", e
	}
	if c.auth {
		req.SetBasicAuth(c.user, c.pass)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
		if wait > 0 {
			req.Header.Set(PollEtagHeader, etag)
			req.Header.Set(PollTimeHeader, strconv.Itoa(wait))
		}
	}

	res, e := c.client.Do(req)
	if e != nil {
		return "", e
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotModified {
		return "", nil
	}
	if res.StatusCode != http.StatusOK {
		return "", readError(res)
	}
	body, e := io.ReadAll(res.Body)
	if e != nil {
		return "", e
	}
	if e := json.Unmarshal(body, v); e != nil {
		return "", e
	}
	return res.Header.Get("Etag"), nil
}

func (c *Client) post(ctx context.Context, url string) error {
	req, e := retryablehttp.NewRequestWithContext(ctx, "POST", url, nil)
	if e != nil {
		return e
	}
	req.Header.Set("Content-Type", "text/plain") // we don't really care
	if c.auth {
		req.SetBasicAuth(c.user, c.pass)
	}
	res, e := c.client.Do(req)
	if e != nil {
		return e
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return readError(res)
	}
	return nil
}

// readError decodes the server's JSON error, falling back to the status
// line.
func readError(res *http.Response) error {
	e := &Error{}
	if b, err := io.ReadAll(res.Body); err == nil && json.Unmarshal(b, e) == nil && e.Message != "" {
		return e
	}
	return &Error{Code: res.StatusCode, Message: res.Status}
}

func (c *Client) pollStatus(ctx context.Context, secs int, last *StatusInfo) (*StatusInfo, error) {
	c.lock.Lock()
	cached := c.status
	c.lock.Unlock()

	otag := ""
	if last == nil {
		secs = 0
	} else if cached != nil && last.etag != cached.etag {
		return cached, nil
	} else {
		otag = last.etag
	}

	v := &StatusInfo{}
	etag, e := c.poll(ctx, c.base+"/status", otag, secs, &v.Status)
	if e != nil {
		return nil, e
	}
	if etag == "" && cached != nil {
		return cached, nil
	}
	v.etag = etag
	c.lock.Lock()
	c.status = v
	c.lock.Unlock()
	return v, nil
}

// Status fetches the current status without waiting.
func (c *Client) Status(ctx context.Context) (*StatusInfo, error) {
	return c.pollStatus(ctx, 0, nil)
}

// WatchStatus waits, up to five minutes, for the status to differ from
// last.
func (c *Client) WatchStatus(ctx context.Context, last *StatusInfo) (*StatusInfo, error) {
	return c.pollStatus(ctx, 300, last)
}

func (c *Client) Workers(ctx context.Context) ([]swoop.WorkerInfo, error) {
	var v []swoop.WorkerInfo
	if _, e := c.poll(ctx, c.base+"/workers", "", 0, &v); e != nil {
		return nil, e
	}
	return v, nil
}

func (c *Client) pollLog(ctx context.Context, secs int, last *LogInfo) (*LogInfo, error) {
	c.lock.Lock()
	cached := c.log
	c.lock.Unlock()

	otag := ""
	if last == nil {
		secs = 0
	} else {
		otag = last.etag
	}

	v := &LogInfo{}
	etag, e := c.poll(ctx, c.base+"/log", otag, secs, &v.Records)
	if e != nil {
		c.lock.Lock()
		c.log = nil
		c.lock.Unlock()
		return nil, e
	}
	if etag == "" && cached != nil {
		return cached, nil
	}
	v.etag = etag
	c.lock.Lock()
	c.log = v
	c.lock.Unlock()
	return v, nil
}

// GetLog returns the arbiter's recent log lines.
func (c *Client) GetLog(ctx context.Context) (*LogInfo, error) {
	return c.pollLog(ctx, 0, nil)
}

// WatchLog waits, up to five minutes, for new log lines.
func (c *Client) WatchLog(ctx context.Context, last *LogInfo) (*LogInfo, error) {
	return c.pollLog(ctx, 300, last)
}

// Signal asks the arbiter to act as if it had received the named signal.
func (c *Client) Signal(ctx context.Context, name string) error {
	return c.post(ctx, c.base+"/signal/"+url.PathEscape(name))
}

// NewClient returns a Client for the API rooted at baseURI.  Transport
// errors and server errors are retried a few times.
func NewClient(baseURI string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	return &Client{
		base:   baseURI,
		client: rc,
	}
}
