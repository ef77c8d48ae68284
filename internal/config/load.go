/*
 * MIT License
 *
 * Copyright (c) 2026 chess-uci-bridge contributors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/vidar808/chess-uci-bridge/internal/bridgerr"
)

// FuncOnChange is invoked on every successful live-reload (wired to
// fsnotify through viper.WatchConfig).
type FuncOnChange func(cfg *Config)

// Loader owns one viper instance for one config file and exposes Load,
// Save and Watch around it.
type Loader struct {
	v    *viper.Viper
	path string
}

// NewLoader resolves the config path (expanding a leading "~" against the
// $HOME-relative --config default) and builds a Loader around it.
func NewLoader(path string) (*Loader, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		expanded = path
	}

	v := viper.New()
	v.SetConfigFile(expanded)

	defaults := Defaults()
	v.SetDefault("max_connections", defaults.MaxConnections)
	v.SetDefault("enable_trusted_sources", defaults.EnableTrustedSources)
	v.SetDefault("max_connection_attempts", defaults.MaxConnectionAttempts)
	v.SetDefault("connection_attempt_period", defaults.ConnectionAttemptPeriod)
	v.SetDefault("max_connection_attempts_from_untrusted_subnet", defaults.MaxConnectionAttemptsFromSubnet)
	v.SetDefault("ipv6_subnet_prefix_len", defaults.IPv6SubnetPrefixLen)
	v.SetDefault("inactivity_timeout", defaults.InactivityTimeout)
	v.SetDefault("heartbeat_time", defaults.HeartbeatTime)
	v.SetDefault("watchdog_timer_interval", defaults.WatchdogTimerInterval)
	v.SetDefault("auth_method", string(defaults.AuthMethodName))
	v.SetDefault("session_keepalive_timeout", defaults.SessionKeepaliveTimeout)
	v.SetDefault("info_throttle_ms", defaults.InfoThrottleMs)
	v.SetDefault("base_port", defaults.BasePort)
	v.SetDefault("upnp_lease_duration", defaults.UPnPLeaseDuration)
	v.SetDefault("pid_file", defaults.PidFile)
	v.SetDefault("status_api_listen", defaults.StatusAPIlisten)

	return &Loader{v: v, path: expanded}, nil
}

// Load reads the file, decodes it into a Config (auth_method is decoded
// as a string then converted, since viper/mapstructure have no native
// support for Go string-kind enums) and validates it.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		return nil, bridgerr.New(bridgerr.CodeConfigInvalid, fmt.Sprintf("reading config file %s", l.path), err)
	}

	cfg := &Config{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
		TagName: "mapstructure",
	})
	if err != nil {
		return nil, bridgerr.New(bridgerr.CodeConfigInvalid, "building config decoder", err)
	}
	if err := dec.Decode(l.v.AllSettings()); err != nil {
		return nil, bridgerr.New(bridgerr.CodeConfigInvalid, "decoding config", err)
	}

	cfg.resolveOverrides()

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Watch wires fsnotify (through viper.WatchConfig) to call fn whenever the
// file changes and re-validates successfully, so the orchestrator never
// sees a half-valid Config.
func (l *Loader) Watch(fn FuncOnChange) {
	l.v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := l.Load()
		if err != nil {
			return
		}
		fn(cfg)
	})
	l.v.WatchConfig()
}

// Save writes cfg back to the loader's file path (used by the
// "add-engine" CLI subcommand), preserving whatever format the original
// file used (yaml/json/toml, inferred by viper from the extension).
func (l *Loader) Save(cfg *Config) error {
	l.v.Set("listen_address", cfg.ListenAddress)
	l.v.Set("max_connections", cfg.MaxConnections)
	l.v.Set("engines", engineMapToRaw(cfg.Engines))
	l.v.Set("server_secret", cfg.ServerSecret)
	return l.v.WriteConfigAs(l.path)
}

func engineMapToRaw(m map[string]EngineConfig) map[string]map[string]any {
	out := make(map[string]map[string]any, len(m))
	for name, e := range m {
		out[name] = map[string]any{
			"path":    e.Path,
			"port":    e.Port,
			"options": e.RawOpts,
		}
	}
	return out
}

// Path returns the resolved config file path.
func (l *Loader) Path() string {
	return l.path
}

// EnsureServerSecret generates a cryptographically random 64-hex-char
// secret when cfg.ServerSecret is empty and persists it, so a restarted
// bridge derives the same deterministic relay session ids across runs.
func EnsureServerSecret(l *Loader, cfg *Config) error {
	if cfg.ServerSecret != "" {
		return nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return bridgerr.New(bridgerr.CodeConfigInvalid, "generating server secret", err)
	}
	cfg.ServerSecret = hex.EncodeToString(buf)

	return l.Save(cfg)
}

// DefaultPath returns the conventional "$HOME/.<binary>.yaml" config path
// for this binary.
func DefaultPath(binaryName string) string {
	home, err := homedir.Dir()
	if err != nil {
		return "." + binaryName + ".yaml"
	}
	return filepath.Join(home, "."+binaryName+".yaml")
}
