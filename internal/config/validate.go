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
	"fmt"
	"net"
	"os"

	validatorpkg "github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"

	"github.com/vidar808/chess-uci-bridge/internal/bridgerr"
)

var structValidator = validatorpkg.New()

// Validate reports every violation found in cfg in a single pass,
// aggregated with go-multierror so the caller can print the whole list
// instead of stopping at the first failure.
func Validate(cfg *Config) error {
	var merr *multierror.Error

	if err := structValidator.Struct(cfg); err != nil {
		if verrs, ok := err.(validatorpkg.ValidationErrors); ok {
			for _, fe := range verrs {
				merr = multierror.Append(merr, fmt.Errorf("config key '%s' failed validation: %s", fe.Namespace(), fe.Tag()))
			}
		} else {
			merr = multierror.Append(merr, err)
		}
	}

	seenPorts := make(map[int]string)
	for name, e := range cfg.Engines {
		if e.Path == "" {
			merr = multierror.Append(merr, fmt.Errorf("engine '%s' missing required key 'path'", name))
		} else if info, statErr := os.Stat(e.Path); statErr != nil {
			merr = multierror.Append(merr, fmt.Errorf("engine '%s' path does not exist: '%s'", name, e.Path))
		} else if info.Mode()&0o111 == 0 {
			merr = multierror.Append(merr, fmt.Errorf("engine '%s' path is not executable: '%s'", name, e.Path))
		}

		if e.Port == 0 {
			merr = multierror.Append(merr, fmt.Errorf("engine '%s' missing required key 'port'", name))
		} else if other, dup := seenPorts[e.Port]; dup {
			merr = multierror.Append(merr, fmt.Errorf("port conflict: engines '%s' and '%s' both use port %d", other, name, e.Port))
		} else {
			seenPorts[e.Port] = name
		}
	}

	for _, ip := range cfg.TrustedAddresses {
		if net.ParseIP(ip) == nil {
			merr = multierror.Append(merr, fmt.Errorf("invalid IP in trusted_addresses: '%s'", ip))
		}
	}

	for _, cidr := range cfg.TrustedNetworks {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("invalid network in trusted_networks: '%s'", cidr))
		}
	}

	if cfg.MaxConnections < 1 {
		merr = multierror.Append(merr, fmt.Errorf("max_connections must be >= 1"))
	}
	if cfg.InactivityTimeout < 0 {
		merr = multierror.Append(merr, fmt.Errorf("inactivity_timeout must be >= 0"))
	}

	if cfg.EnableTLS {
		if cfg.TLSCertPath == "" {
			merr = multierror.Append(merr, fmt.Errorf("enable_tls is true but tls_cert_path is empty"))
		} else if _, err := os.Stat(cfg.TLSCertPath); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("TLS certificate not found: '%s'", cfg.TLSCertPath))
		}
		if cfg.TLSKeyPath == "" {
			merr = multierror.Append(merr, fmt.Errorf("enable_tls is true but tls_key_path is empty"))
		} else if _, err := os.Stat(cfg.TLSKeyPath); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("TLS key not found: '%s'", cfg.TLSKeyPath))
		}
	}

	if cfg.ServerSecret != "" && len(cfg.ServerSecret) < 32 {
		merr = multierror.Append(merr, fmt.Errorf("server_secret must be at least 32 characters"))
	}

	if cfg.DefaultEngine != "" {
		if _, ok := cfg.Engines[cfg.DefaultEngine]; !ok {
			merr = multierror.Append(merr, fmt.Errorf("default_engine '%s' not found in engines", cfg.DefaultEngine))
		}
	}

	if cfg.EnableSinglePort && cfg.BasePort <= 0 {
		merr = multierror.Append(merr, fmt.Errorf("base_port must be > 0 when enable_single_port is set"))
	}

	switch cfg.AuthMethodName {
	case "", AuthNone, AuthToken, AuthPSK, AuthBoth:
	default:
		merr = multierror.Append(merr, fmt.Errorf("auth_method '%s' is not one of none|token|psk|both", cfg.AuthMethodName))
	}
	if (cfg.AuthMethodName == AuthToken || cfg.AuthMethodName == AuthBoth) && cfg.AuthToken == "" {
		merr = multierror.Append(merr, fmt.Errorf("auth_method requires auth_token but none was set"))
	}
	if (cfg.AuthMethodName == AuthPSK || cfg.AuthMethodName == AuthBoth) && cfg.PSKKey == "" {
		merr = multierror.Append(merr, fmt.Errorf("auth_method requires psk_key but none was set"))
	}

	if merr.ErrorOrNil() == nil {
		return nil
	}
	return bridgerr.New(bridgerr.CodeConfigInvalid, merr.Error(), nil)
}
