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

// Package pairing builds the JSON payload a remote client uses to
// discover and authenticate against a running bridge, and renders it
// either as a standalone connection file or as a terminal QR code.
package pairing

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vidar808/chess-uci-bridge/internal/config"
	"github.com/vidar808/chess-uci-bridge/internal/engine"
)

// EngineEndpoint is one engine's entry in the payload's engines array.
type EngineEndpoint struct {
	Name      string            `json:"name"`
	Port      int               `json:"port"`
	MDNSName  string            `json:"mdns_name,omitempty"`
	Endpoints map[string]string `json:"endpoints,omitempty"`
}

// RelayInfo is the optional relay sub-object.
type RelayInfo struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Payload is the shared shape of the QR payload and the connection file;
// ConnectionFile adds a few extra top-level fields.
type Payload struct {
	Type          string           `json:"type"`
	Host          string           `json:"host"`
	Engines       []EngineEndpoint `json:"engines"`
	TLS           bool             `json:"tls"`
	Token         string           `json:"token,omitempty"`
	PSK           string           `json:"psk,omitempty"`
	AuthMethod    string           `json:"auth_method"`
	Fingerprint   string           `json:"fingerprint,omitempty"`
	ExternalHost  string           `json:"external_host,omitempty"`
	Relay         *RelayInfo       `json:"relay,omitempty"`
	SinglePort    bool             `json:"single_port,omitempty"`
	Port          int              `json:"port,omitempty"`
}

// ConnectionFile wraps Payload with the extra bookkeeping fields the
// on-disk connection file carries beyond what a QR code needs to hold.
type ConnectionFile struct {
	Payload
	Version    string                     `json:"version"`
	Created    string                     `json:"created"`
	ServerName string                     `json:"server_name"`
	Security   ConnectionSecurity         `json:"security"`
	Endpoints  map[string]EndpointDetail  `json:"per_engine_endpoints,omitempty"`
}

// ConnectionSecurity summarizes the auth/TLS posture for a human reading
// the connection file.
type ConnectionSecurity struct {
	AuthMethod  string `json:"auth_method"`
	TLS         bool   `json:"tls"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// EndpointDetail is the per-engine lan/upnp/wan/relay address map.
type EndpointDetail struct {
	LAN   string `json:"lan,omitempty"`
	UPnP  string `json:"upnp,omitempty"`
	WAN   string `json:"wan,omitempty"`
	Relay string `json:"relay,omitempty"`
}

// Build assembles the shared Payload from a loaded config and registry.
func Build(cfg *config.Config, reg *engine.Registry, host string, certDER []byte, relaySessionOf func(engineName string) string) Payload {
	p := Payload{
		Type:       "chess-uci-server",
		Host:       host,
		TLS:        cfg.EnableTLS,
		Token:      cfg.AuthToken,
		PSK:        cfg.PSKKey,
		AuthMethod: string(cfg.AuthMethodName),
		SinglePort: cfg.EnableSinglePort,
	}
	if cfg.EnableSinglePort {
		p.Port = cfg.BasePort
	}
	if len(certDER) > 0 {
		p.Fingerprint = fingerprint(certDER)
	}
	if cfg.RelayServerURL != "" {
		p.Relay = &RelayInfo{Host: cfg.RelayServerURL, Port: cfg.RelayServerPort}
	}

	for _, name := range reg.Names() {
		d, _ := reg.Get(name)
		ep := EngineEndpoint{Name: name, Port: d.Port}
		if cfg.EnableMDNS {
			ep.MDNSName = name + "._chessbridge._tcp.local."
		}
		if relaySessionOf != nil {
			if id := relaySessionOf(name); id != "" {
				ep.Endpoints = map[string]string{"relay": id}
			}
		}
		p.Engines = append(p.Engines, ep)
	}
	return p
}

// fingerprint renders a SHA-256 digest of a DER certificate as
// colon-separated uppercase hex, matching the conventional fingerprint
// display format.
func fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}

// ParseCertificate is a small helper for callers that have a DER blob
// and want to confirm it decodes before computing a fingerprint from it.
// PEM input is not decoded.
func ParseCertificate(der []byte) (*x509.Certificate, error) {
	return x509.ParseCertificate(der)
}

// MarshalIndent renders any payload as pretty-printed JSON, the format
// both the QR emitter and the connection-file writer consume.
func MarshalIndent(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
