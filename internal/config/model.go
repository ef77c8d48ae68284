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

// Package config models the bridge's structured configuration document,
// loads it through viper, validates it exhaustively, and watches it for
// live reload.
package config

import "time"

// OverrideKind is the two-variant sum type for an engine option override:
// either a literal substitute value, or the pass-through sentinel.
type OverrideKind uint8

const (
	OverrideLiteral OverrideKind = iota
	OverridePassThrough
)

// Override is one entry of an engine's option-override map.
type Override struct {
	Kind  OverrideKind
	Value string // meaningful only when Kind == OverrideLiteral
}

// IsPassThrough reports whether this override means "forward the client's
// value unmodified" (the `override` sentinel).
func (o Override) IsPassThrough() bool {
	return o.Kind == OverridePassThrough
}

// ParseOverride turns a raw config value into an Override. The literal
// string "override" is the pass-through sentinel; anything else is a
// literal substitute.
func ParseOverride(raw string) Override {
	if raw == "override" {
		return Override{Kind: OverridePassThrough}
	}
	return Override{Kind: OverrideLiteral, Value: raw}
}

// EngineConfig is one entry of the engine map, before port resolution
// rewrites it.
type EngineConfig struct {
	Name      string              `mapstructure:"-"`
	Path      string              `mapstructure:"path" validate:"required"`
	Port      int                 `mapstructure:"port" validate:"required,min=1,max=65535"`
	Overrides map[string]Override `mapstructure:"-"`
	RawOpts   map[string]string   `mapstructure:"options"`
}

// AuthMethod is the three-to-four-way sum type for the auth handshake
// policy: never flags, always an explicit variant.
type AuthMethod string

const (
	AuthNone  AuthMethod = "none"
	AuthToken AuthMethod = "token"
	AuthPSK   AuthMethod = "psk"
	AuthBoth  AuthMethod = "both"
)

// Config is the full structured document the bridge loads at startup.
type Config struct {
	// Required keys.
	ListenAddress      string                  `mapstructure:"listen_address" validate:"required"`
	Engines            map[string]EngineConfig `mapstructure:"engines"`
	MaxConnections     int                     `mapstructure:"max_connections" validate:"required,min=1"`
	TrustedAddresses   []string                `mapstructure:"trusted_addresses"`
	TrustedNetworks    []string                `mapstructure:"trusted_networks"`

	// Trust & rate filter.
	EnableTrustedSources               bool          `mapstructure:"enable_trusted_sources"`
	EnableAutoTrust                    bool          `mapstructure:"enable_auto_trust"`
	EnableFirewallRules                bool          `mapstructure:"enable_firewall_rules"`
	EnableFirewallIPBlocking           bool          `mapstructure:"enable_firewall_ip_blocking"`
	EnableFirewallSubnetBlocking       bool          `mapstructure:"enable_firewall_subnet_blocking"`
	MaxConnectionAttempts              int           `mapstructure:"max_connection_attempts"`
	ConnectionAttemptPeriod            time.Duration `mapstructure:"connection_attempt_period"`
	MaxConnectionAttemptsFromSubnet    int           `mapstructure:"max_connection_attempts_from_untrusted_subnet"`
	LogUntrustedAttempts               bool          `mapstructure:"log_untrusted_attempts"`
	IPv6SubnetPrefixLen                int           `mapstructure:"ipv6_subnet_prefix_len"`

	// Bridge timing.
	InactivityTimeout    time.Duration `mapstructure:"inactivity_timeout"`
	HeartbeatTime        time.Duration `mapstructure:"heartbeat_time"`
	WatchdogTimerInterval time.Duration `mapstructure:"watchdog_timer_interval"`

	// TLS.
	EnableTLS   bool   `mapstructure:"enable_tls"`
	TLSCertPath string `mapstructure:"tls_cert_path"`
	TLSKeyPath  string `mapstructure:"tls_key_path"`

	// Auth.
	AuthMethodName AuthMethod `mapstructure:"auth_method"`
	AuthToken      string     `mapstructure:"auth_token"`
	PSKKey         string     `mapstructure:"psk_key"`

	// Session manager.
	SessionKeepaliveTimeout time.Duration `mapstructure:"session_keepalive_timeout"`

	// Throttler.
	InfoThrottleMs int `mapstructure:"info_throttle_ms"`

	// Multiplex mode.
	EnableSinglePort bool   `mapstructure:"enable_single_port"`
	BasePort         int    `mapstructure:"base_port"`
	DefaultEngine    string `mapstructure:"default_engine"`

	// UPnP.
	EnableUPnP        bool          `mapstructure:"enable_upnp"`
	UPnPLeaseDuration time.Duration `mapstructure:"upnp_lease_duration"`

	// mDNS.
	EnableMDNS bool `mapstructure:"enable_mdns"`

	// Auto-discovery.
	EngineDirectory string `mapstructure:"engine_directory"`

	// Relay.
	RelayServerURL  string `mapstructure:"relay_server_url"`
	RelayServerPort int    `mapstructure:"relay_server_port"`
	ServerSecret    string `mapstructure:"server_secret"`

	// PID file.
	PidFile string `mapstructure:"pid_file"`

	// Global option-override policy (applies when no engine-local entry
	// exists for the option).
	GlobalOverrides map[string]Override `mapstructure:"-"`
	GlobalRawOpts   map[string]string   `mapstructure:"global_options"`

	// Supplemental status/metrics endpoint.
	EnableStatusAPI bool   `mapstructure:"enable_status_api"`
	StatusAPIlisten string `mapstructure:"status_api_listen"`
}

// resolveOverrides converts the raw string maps viper decodes into the
// Override sum type, for the global map and for every engine.
func (c *Config) resolveOverrides() {
	c.GlobalOverrides = make(map[string]Override, len(c.GlobalRawOpts))
	for k, v := range c.GlobalRawOpts {
		c.GlobalOverrides[k] = ParseOverride(v)
	}

	for name, e := range c.Engines {
		e.Name = name
		e.Overrides = make(map[string]Override, len(e.RawOpts))
		for k, v := range e.RawOpts {
			e.Overrides[k] = ParseOverride(v)
		}
		c.Engines[name] = e
	}
}

// Defaults returns a Config pre-populated with the bridge's optional-key
// defaults.
func Defaults() *Config {
	return &Config{
		MaxConnections:                  100,
		EnableTrustedSources:            true,
		EnableAutoTrust:                 false,
		EnableFirewallRules:             false,
		EnableFirewallIPBlocking:        false,
		EnableFirewallSubnetBlocking:    false,
		MaxConnectionAttempts:           5,
		ConnectionAttemptPeriod:         10 * time.Minute,
		MaxConnectionAttemptsFromSubnet: 20,
		IPv6SubnetPrefixLen:             64,
		InactivityTimeout:               15 * time.Minute,
		HeartbeatTime:                   5 * time.Minute,
		WatchdogTimerInterval:           5 * time.Minute,
		AuthMethodName:                  AuthNone,
		SessionKeepaliveTimeout:         60 * time.Second,
		InfoThrottleMs:                  200,
		BasePort:                        9998,
		EnableUPnP:                      false,
		UPnPLeaseDuration:               2 * time.Hour,
		PidFile:                         "chessbridge.pid",
		StatusAPIlisten:                 "127.0.0.1:9999",
	}
}
