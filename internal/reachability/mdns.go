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
	"fmt"

	"github.com/hashicorp/mdns"

	"github.com/vidar808/chess-uci-bridge/internal/logging"
)

// ServiceAnnouncer registers and tears down an mDNS service record so
// clients on the local network can discover a bridge without knowing its
// address in advance.
type ServiceAnnouncer interface {
	Register(instance string, port int) error
	Unregister()
}

// NoopAnnouncer satisfies ServiceAnnouncer without touching the network,
// used when enable_mdns is false.
type NoopAnnouncer struct{}

func (NoopAnnouncer) Register(string, int) error { return nil }
func (NoopAnnouncer) Unregister()                 {}

const serviceType = "_chessbridge._tcp"

// MDNSAnnouncer advertises the bridge as a "_chessbridge._tcp" service
// using hashicorp/mdns.
type MDNSAnnouncer struct {
	Log    logging.Logger
	server *mdns.Server
}

func (a *MDNSAnnouncer) Register(instance string, port int) error {
	svc, err := mdns.NewMDNSService(instance, serviceType, "", "", port, nil, []string{"chess-uci-bridge"})
	if err != nil {
		return fmt.Errorf("mdns service record: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: svc})
	if err != nil {
		return fmt.Errorf("mdns server: %w", err)
	}
	a.server = server
	a.Log.Info("mdns service registered", map[string]any{"instance": instance, "port": port})
	return nil
}

func (a *MDNSAnnouncer) Unregister() {
	if a.server == nil {
		return
	}
	_ = a.server.Shutdown()
	a.server = nil
}
