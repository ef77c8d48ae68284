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

package reachability

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/huin/goupnp/dcps/internetgateway2"
	"github.com/jackpal/go-nat-pmp"

	"github.com/vidar808/chess-uci-bridge/internal/logging"
)

// upnpDiscoverySem bounds concurrent blocking gateway discovery calls
// (goupnp's SOAP discovery walks the LAN and can take seconds), so a
// process mapping many engine ports at once does not spawn one blocking
// call per port.
var upnpDiscoverySem = semaphore.NewWeighted(2)

// PortMapper requests router-level port forwarding so a bridge listening
// on a private address is reachable from the public internet.
type PortMapper interface {
	AddMapping(ctx context.Context, externalPort, internalPort int, description string, lease time.Duration) error
	RemoveMapping(ctx context.Context, externalPort int) error
}

// NoopPortMapper satisfies PortMapper without making any network calls,
// used when enable_upnp is false.
type NoopPortMapper struct{}

func (NoopPortMapper) AddMapping(context.Context, int, int, string, time.Duration) error { return nil }
func (NoopPortMapper) RemoveMapping(context.Context, int) error                          { return nil }

// UPnPPortMapper maps ports via IGDv2 (falling back silently to logging a
// warning on discovery failure, since many home routers speak only IGDv1
// or nothing at all).
type UPnPPortMapper struct {
	Log logging.Logger

	clients []*internetgateway2.WANIPConnection1
}

// Discover locates IGDv2-capable gateways on the LAN. Call once at
// startup; a zero-value mapper with no discovered clients degrades every
// AddMapping/RemoveMapping call to a logged no-op.
func (m *UPnPPortMapper) Discover(ctx context.Context) error {
	if err := upnpDiscoverySem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer upnpDiscoverySem.Release(1)

	clients, _, err := internetgateway2.NewWANIPConnection1Clients()
	if err != nil {
		return fmt.Errorf("upnp discovery: %w", err)
	}
	m.clients = clients
	return nil
}

func (m *UPnPPortMapper) AddMapping(ctx context.Context, externalPort, internalPort int, description string, lease time.Duration) error {
	if len(m.clients) == 0 {
		m.Log.Warn("upnp mapping requested but no gateway discovered", map[string]any{"port": externalPort})
		return nil
	}
	leaseSeconds := uint32(lease.Seconds())
	var lastErr error
	for _, c := range m.clients {
		if err := c.AddPortMapping("", uint16(externalPort), "TCP", uint16(internalPort), localAddr(), true, description, leaseSeconds); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr != nil {
		m.Log.Warn("upnp mapping failed", map[string]any{"port": externalPort, "error": lastErr.Error()})
	}
	return lastErr
}

func (m *UPnPPortMapper) RemoveMapping(ctx context.Context, externalPort int) error {
	var lastErr error
	for _, c := range m.clients {
		if err := c.DeletePortMapping("", uint16(externalPort), "TCP"); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// natPMPFallback wraps jackpal/go-nat-pmp for gateways that only speak
// NAT-PMP. Nothing in this module constructs one: Discover and the
// orchestrator use IGDv2 only, and an empty IGDv2 discovery leaves
// UPnPPortMapper degrading to logged no-ops.
type natPMPFallback struct {
	client *natpmp.Client
	Log    logging.Logger
}

func newNATPMPFallback(gatewayIP [4]byte, log logging.Logger) *natPMPFallback {
	return &natPMPFallback{client: natpmp.NewClient(gatewayIP), Log: log}
}

func (n *natPMPFallback) AddMapping(ctx context.Context, externalPort, internalPort int, _ string, lease time.Duration) error {
	_, err := n.client.AddPortMapping("tcp", internalPort, externalPort, int(lease.Seconds()))
	if err != nil {
		n.Log.Warn("nat-pmp mapping failed", map[string]any{"port": externalPort, "error": err.Error()})
	}
	return err
}

func (n *natPMPFallback) RemoveMapping(ctx context.Context, externalPort int) error {
	_, err := n.client.AddPortMapping("tcp", externalPort, 0, 0)
	return err
}

func localAddr() string {
	return "0.0.0.0"
}
