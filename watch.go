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
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatchDelay coalesces the bursts of events editors produce when
// saving a file.
var ConfigWatchDelay = 250 * time.Millisecond

// WatchConfig raises HUP through inject whenever the file at path is
// written, created or renamed into place.  The parent directory is
// watched so that atomic replacement is noticed.  It returns when ctx is
// done.
func WatchConfig(ctx context.Context, path string, inject func(SignalKind) error, logger *slog.Logger) error {
	if logger == nil {
		logger = discardLogger()
	}
	path = filepath.Clean(path)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		return err
	}
	logger.Debug("Watching configuration", "path", path)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				timer.Reset(ConfigWatchDelay)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Configuration watch error", "error", err)
		case <-timer.C:
			logger.Info("Configuration changed, reloading", "path", path)
			if err := inject(SigHUP); err != nil {
				logger.Warn("Failed to request reload", "error", err)
			}
		}
	}
}
