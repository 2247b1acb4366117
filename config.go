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
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the application configuration consumed by the arbiter and
// handed, as a snapshot, to every worker it spawns.
type Config struct {
	// WorkerClass selects the registered worker implementation.
	WorkerClass string `yaml:"worker_class" toml:"worker_class" json:"worker_class"`
	// Workers is the number of worker processes to keep alive.
	Workers int `yaml:"workers" toml:"workers" json:"workers"`
	// Bind lists the addresses to listen on: "host:port",
	// "tcp://host:port" or "unix:/path/to/socket".
	Bind []string `yaml:"bind" toml:"bind" json:"bind"`
	// Timeout is the worker health timeout in seconds, 0 disables it.
	Timeout int `yaml:"timeout" toml:"timeout" json:"timeout"`
	// GracefulTimeout bounds a graceful shutdown, in seconds.
	GracefulTimeout int `yaml:"graceful_timeout" toml:"graceful_timeout" json:"graceful_timeout"`
	// ProcName is shown in process titles.
	ProcName string `yaml:"proc_name" toml:"proc_name" json:"proc_name"`
	// Preload is advisory and only logged.
	Preload bool `yaml:"preload" toml:"preload" json:"preload"`
	// MaxRequests recycles a worker after that many connections;
	// 0 means never.
	MaxRequests int `yaml:"max_requests" toml:"max_requests" json:"max_requests"`
	// MaxRequestsJitter adds a random amount, up to this value, to
	// MaxRequests so that workers do not all recycle at once.
	MaxRequestsJitter int `yaml:"max_requests_jitter" toml:"max_requests_jitter" json:"max_requests_jitter"`
	// PidFile, when set, receives the arbiter's pid.
	PidFile string `yaml:"pid_file" toml:"pid_file" json:"pid_file"`
	// SpawnRatePeriod is the period, in seconds, over which at most
	// Workers spawns are allowed.  0 disables rate limiting.
	SpawnRatePeriod int `yaml:"spawn_rate_period" toml:"spawn_rate_period" json:"spawn_rate_period"`
	// WatchConfig reloads the configuration when its file changes.
	WatchConfig bool `yaml:"watch_config" toml:"watch_config" json:"watch_config"`

	Log    LogConfig    `yaml:"log" toml:"log" json:"log"`
	Status StatusConfig `yaml:"status" toml:"status" json:"status"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level     string `yaml:"level" toml:"level" json:"level"`
	Format    string `yaml:"format" toml:"format" json:"format"`
	File      string `yaml:"file" toml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" toml:"max_size_mb" json:"max_size_mb"`
}

// StatusConfig controls the optional HTTP status API.
type StatusConfig struct {
	Address      string `yaml:"address" toml:"address" json:"address"`
	User         string `yaml:"user" toml:"user" json:"user"`
	PasswordHash string `yaml:"password_hash" toml:"password_hash" json:"-"`
	MaxConns     int    `yaml:"max_conns" toml:"max_conns" json:"max_conns"`
}

// DefaultConfig returns the built in defaults.
func DefaultConfig() *Config {
	return &Config{
		WorkerClass:     "sync",
		Workers:         runtime.NumCPU()*2 + 1,
		Bind:            []string{"127.0.0.1:8000"},
		Timeout:         0,
		GracefulTimeout: 30,
		ProcName:        "swoop",
		SpawnRatePeriod: 1,
		Log: LogConfig{
			Level:     "info",
			Format:    "text",
			MaxSizeMB: 100,
		},
		Status: StatusConfig{
			MaxConns: 16,
		},
	}
}

// LoadConfig reads a YAML (.yaml, .yml) or TOML (.toml) file on top of
// the defaults, and validates the result.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(b), cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadConfig, path, err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadConfig, path, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s: unsupported format", ErrBadConfig, path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the arbiter cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Workers < 0:
		return fmt.Errorf("%w: workers must not be negative", ErrBadConfig)
	case len(c.Bind) == 0:
		return fmt.Errorf("%w: %v", ErrBadConfig, ErrNoListeners)
	case c.Timeout < 0:
		return fmt.Errorf("%w: timeout must not be negative", ErrBadConfig)
	case c.GracefulTimeout < 0:
		return fmt.Errorf("%w: graceful_timeout must not be negative", ErrBadConfig)
	case c.MaxRequests < 0 || c.MaxRequestsJitter < 0:
		return fmt.Errorf("%w: max_requests must not be negative", ErrBadConfig)
	case c.WorkerClass == "":
		return fmt.Errorf("%w: worker_class is empty", ErrBadConfig)
	}
	if _, ok := ParseLevel(c.Log.Level); !ok {
		return fmt.Errorf("%w: unknown log level %q", ErrBadConfig, c.Log.Level)
	}
	return nil
}

// TimeoutDuration is the arbiter's worker timeout.
func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// WorkerTimeout is the budget a worker gets for one blocking accept,
// half the arbiter's timeout.
func (c *Config) WorkerTimeout() time.Duration {
	return c.TimeoutDuration() / 2
}

func (c *Config) GracefulDuration() time.Duration {
	return time.Duration(c.GracefulTimeout) * time.Second
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	n := *c
	n.Bind = append([]string(nil), c.Bind...)
	return &n
}

// encodeSnapshot and decodeSnapshot carry a Config to a worker process.
func (c *Config) encodeSnapshot() (string, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeSnapshot(s string) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(s), cfg); err != nil {
		return nil, fmt.Errorf("%w: worker snapshot: %v", ErrBadConfig, err)
	}
	return cfg, nil
}
