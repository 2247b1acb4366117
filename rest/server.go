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
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/net/netutil"

	"github.com/swoopd/swoop"
)

// Backend is what the handler needs from an arbiter.
type Backend interface {
	Status() swoop.Status
	WatchStatus(old int64, expire time.Duration) int64
	Log() *swoop.Log
	Metrics() *swoop.Metrics
	Inject(swoop.SignalKind) error
}

// Handler wraps a Backend, adding http.Handler functionality.
type Handler struct {
	b    Backend
	r    *mux.Router
	user string
	hash []byte
}

// SetAuth requires HTTP basic authentication.  hash is a bcrypt hash of
// the password.
func (h *Handler) SetAuth(user string, hash string) {
	h.user = user
	h.hash = []byte(hash)
}

func (h *Handler) internalError(w http.ResponseWriter, e error) {
	http.Error(w, e.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeJson(w http.ResponseWriter, v interface{}) {
	if b, e := json.Marshal(v); e != nil {
		h.internalError(w, e)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.Write(b)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, e *Error) {
	if b, err := json.Marshal(e); err != nil {
		h.internalError(w, err)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.WriteHeader(e.Code)
		w.Write(b)
	}
}

// pollArgs returns the etag and wait time of a long poll request, if it
// is one.
func pollArgs(r *http.Request) (string, time.Duration) {
	etag := r.Header.Get(PollEtagHeader)
	secs, err := strconv.Atoi(r.Header.Get(PollTimeHeader))
	if etag == "" || err != nil || secs <= 0 {
		return "", 0
	}
	d := time.Duration(secs) * time.Second
	if d > MaxPollTime {
		d = MaxPollTime
	}
	return etag, d
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	st := h.b.Status()
	etag := makeEtag(st.Serial)
	if old, wait := pollArgs(r); old != "" && old == etag {
		h.b.WatchStatus(st.Serial, wait)
		st = h.b.Status()
		etag = makeEtag(st.Serial)
	}
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Etag", etag)
	h.writeJson(w, st)
}

func (h *Handler) getWorkers(w http.ResponseWriter, r *http.Request) {
	st := h.b.Status()
	workers := st.Workers
	if workers == nil {
		workers = []swoop.WorkerInfo{}
	}
	w.Header().Set("Etag", makeEtag(st.Serial))
	h.writeJson(w, workers)
}

func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	log := h.b.Log()
	var since int64
	if s := r.URL.Query().Get("since"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			h.writeError(w, &Error{http.StatusBadRequest, "Bad since parameter"})
			return
		}
		since = v
	}

	_, id := log.GetRecords(0)
	etag := makeEtag(id)
	if old, wait := pollArgs(r); old != "" && old == etag {
		id = log.Watch(r.Context(), id, wait)
		etag = makeEtag(id)
	}
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	recs, id := log.GetRecords(0)
	rv := make([]swoop.LogRecord, 0, len(recs))
	for _, rec := range recs {
		if rec.Id > since {
			rv = append(rv, rec)
		}
	}
	w.Header().Set("Etag", makeEtag(id))
	h.writeJson(w, rv)
}

func (h *Handler) postSignal(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["signal"]
	k, err := swoop.ParseSignal(name)
	if err != nil {
		h.writeError(w, &Error{http.StatusBadRequest, err.Error()})
		return
	}
	if err := h.b.Inject(k); err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, swoop.ErrNotRunning) {
			code = http.StatusServiceUnavailable
		}
		h.writeError(w, &Error{code, err.Error()})
		return
	}
	h.writeJson(w, ok)
}

func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.user != "" {
			user, pass, found := r.BasicAuth()
			if !found || subtle.ConstantTimeCompare([]byte(user), []byte(h.user)) != 1 ||
				bcrypt.CompareHashAndPassword(h.hash, []byte(pass)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="swoop"`)
				h.writeError(w, &Error{http.StatusUnauthorized, "Unauthorized"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.r.ServeHTTP(w, req)
}

func NewHandler(b Backend) *Handler {
	r := mux.NewRouter()
	h := &Handler{b: b, r: r}
	r.Use(h.authenticate)
	r.HandleFunc("/status", h.getStatus).Methods("GET")
	r.HandleFunc("/workers", h.getWorkers).Methods("GET")
	r.HandleFunc("/log", h.getLog).Methods("GET")
	r.HandleFunc("/signal/{signal}", h.postSignal).Methods("POST")
	r.Handle("/metrics", b.Metrics().Handler()).Methods("GET")
	return h
}

// Serve runs the status API on addr until ctx is done.  At most maxConns
// connections are served at once; zero means no limit.
func Serve(ctx context.Context, addr string, maxConns int, h http.Handler, logger *slog.Logger) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if maxConns > 0 {
		l = netutil.LimitListener(l, maxConns)
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			srv.Close()
		}
	})
	defer stop()

	if logger != nil {
		logger.Info("Status API listening", "address", l.Addr().String())
	}
	if err := srv.Serve(l); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
