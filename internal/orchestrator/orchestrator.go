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

// Package orchestrator owns the whole-process lifecycle: resolving ports,
// building the shared collaborators, starting listeners and relay
// dialers, and tearing everything down in response to a signal.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/vidar808/chess-uci-bridge/internal/auth"
	"github.com/vidar808/chess-uci-bridge/internal/bridge"
	"github.com/vidar808/chess-uci-bridge/internal/config"
	"github.com/vidar808/chess-uci-bridge/internal/engine"
	"github.com/vidar808/chess-uci-bridge/internal/listener"
	"github.com/vidar808/chess-uci-bridge/internal/logging"
	"github.com/vidar808/chess-uci-bridge/internal/pidfile"
	"github.com/vidar808/chess-uci-bridge/internal/reachability"
	"github.com/vidar808/chess-uci-bridge/internal/relay"
	"github.com/vidar808/chess-uci-bridge/internal/statusapi"
	"github.com/vidar808/chess-uci-bridge/internal/trust"
)

const multiplexSessionLabel = "__multiplex__"

// Orchestrator wires every component together and runs until shut down.
type Orchestrator struct {
	cfg      *config.Config
	log      logging.Logger
	registry *engine.Registry
	pid      *pidfile.Handle

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New resolves engine ports, builds the registry, and acquires the PID
// file; it does not start any network listener yet.
func New(cfg *config.Config, log logging.Logger) (*Orchestrator, error) {
	reg, err := engine.NewRegistry(cfg)
	if err != nil {
		return nil, err
	}
	if err := listener.ResolvePorts(reg); err != nil {
		return nil, err
	}

	pid, err := pidfile.Acquire(cfg.PidFile)
	if err != nil {
		return nil, fmt.Errorf("acquiring pid file: %w", err)
	}

	return &Orchestrator{cfg: cfg, log: log, registry: reg, pid: pid}, nil
}

// Run starts every enabled component and blocks until a shutdown signal
// (SIGINT/SIGTERM) arrives, then tears everything down in order.
func (o *Orchestrator) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	o.cancel = cancel

	sessions := engine.NewSessionManager(o.log)
	fw := o.firewall()
	trustFilter := trust.New(o.trustOptions(), fw, o.log)

	deps := bridge.Deps{Sessions: sessions, Trust: trustFilter, Log: o.log}
	bridgeOptFor := func(engineName string) bridge.Options {
		return bridge.Options{
			AuthPolicy:        o.authPolicy(),
			InactivityTimeout: o.cfg.InactivityTimeout,
			HeartbeatInterval: o.cfg.HeartbeatTime,
			InfoThrottleMs:    o.cfg.InfoThrottleMs,
			SessionKeepalive:  o.cfg.SessionKeepaliveTimeout,
		}
	}

	var announcer reachability.ServiceAnnouncer = reachability.NoopAnnouncer{}
	if o.cfg.EnableMDNS {
		announcer = &reachability.MDNSAnnouncer{Log: o.log}
		if err := announcer.Register("chessbridge", o.firstPort()); err != nil {
			o.log.Warn("mdns registration failed", map[string]any{"error": err.Error()})
		}
	}

	var mapper reachability.PortMapper = reachability.NoopPortMapper{}
	var upnpMapper *reachability.UPnPPortMapper
	if o.cfg.EnableUPnP {
		upnpMapper = &reachability.UPnPPortMapper{Log: o.log}
		if err := upnpMapper.Discover(ctx); err != nil {
			o.log.Warn("upnp discovery failed", map[string]any{"error": err.Error()})
		} else {
			mapper = upnpMapper
			o.startUPnPMappings(ctx, mapper)
			o.wg.Add(1)
			go func() {
				defer o.wg.Done()
				o.renewUPnPLoop(ctx, mapper)
			}()
		}
	}

	ls := listener.New(o.registry, deps, listener.SetOptions{
		BridgeOptions: bridgeOptFor,
		Multiplex:     o.cfg.EnableSinglePort,
		BasePort:      o.cfg.BasePort,
	}, o.log)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ls.Run(ctx)
	}()

	if o.cfg.RelayServerURL != "" {
		o.startRelayLegs(ctx, deps, bridgeOptFor)
	}

	if o.cfg.EnableStatusAPI {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			_ = statusapi.Run(ctx, o.cfg.StatusAPIlisten, sessions, trustFilter, o.log)
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}

	announcer.Unregister()
	sessions.ShutdownAll()
	cancel()
	o.wg.Wait()
	_ = o.pid.Release()
	return nil
}

func (o *Orchestrator) firewall() trust.Firewall {
	if !o.cfg.EnableFirewallRules {
		return reachability.NoopFirewall{}
	}
	return reachability.IptablesFirewall{Log: o.log}
}

func (o *Orchestrator) trustOptions() trust.Options {
	ports := make([]int, 0, len(o.registry.Names()))
	for _, name := range o.registry.Names() {
		if d, ok := o.registry.Get(name); ok {
			ports = append(ports, d.Port)
		}
	}
	return trust.Options{
		Enabled:               o.cfg.EnableTrustedSources,
		AutoTrustEnabled:      o.cfg.EnableAutoTrust,
		TrustedAddresses:      o.cfg.TrustedAddresses,
		TrustedNetworks:       o.cfg.TrustedNetworks,
		MaxAttemptsPerAddress: o.cfg.MaxConnectionAttempts,
		AttemptPeriod:         o.cfg.ConnectionAttemptPeriod,
		MaxAttemptsPerSubnet:  o.cfg.MaxConnectionAttemptsFromSubnet,
		IPv6PrefixLen:         o.cfg.IPv6SubnetPrefixLen,
		IPBlockingEnabled:     o.cfg.EnableFirewallIPBlocking,
		SubnetBlockingEnabled: o.cfg.EnableFirewallSubnetBlocking,
		EnginePorts:           ports,
	}
}

func (o *Orchestrator) authPolicy() auth.Policy {
	return auth.Policy{Method: o.cfg.AuthMethodName, Token: o.cfg.AuthToken, PSK: o.cfg.PSKKey}
}

func (o *Orchestrator) firstPort() int {
	names := o.registry.Names()
	if len(names) == 0 {
		return o.cfg.BasePort
	}
	d, _ := o.registry.Get(names[0])
	return d.Port
}

func (o *Orchestrator) startUPnPMappings(ctx context.Context, mapper reachability.PortMapper) {
	if o.cfg.EnableSinglePort {
		_ = mapper.AddMapping(ctx, o.cfg.BasePort, o.cfg.BasePort, "chess-uci-bridge", o.cfg.UPnPLeaseDuration)
		return
	}
	for _, name := range o.registry.Names() {
		d, _ := o.registry.Get(name)
		_ = mapper.AddMapping(ctx, d.Port, d.Port, "chess-uci-bridge:"+name, o.cfg.UPnPLeaseDuration)
	}
}

func (o *Orchestrator) renewUPnPLoop(ctx context.Context, mapper reachability.PortMapper) {
	interval := o.cfg.UPnPLeaseDuration / 2
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.startUPnPMappings(ctx, mapper)
		}
	}
}

func (o *Orchestrator) startRelayLegs(ctx context.Context, deps bridge.Deps, bridgeOptFor func(string) bridge.Options) {
	relayAddr := fmt.Sprintf("%s:%d", o.cfg.RelayServerURL, o.cfg.RelayServerPort)

	if o.cfg.EnableSinglePort {
		d, ok := o.registry.Get(o.registry.Default)
		if !ok {
			return
		}
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			relay.Leg(ctx, relayAddr, multiplexSessionLabel, d, o.cfg.ServerSecret, deps, bridgeOptFor(d.Name), o.log)
		}()
		return
	}

	for _, name := range o.registry.Names() {
		d, _ := o.registry.Get(name)
		o.wg.Add(1)
		go func(d engine.Descriptor) {
			defer o.wg.Done()
			relay.Leg(ctx, relayAddr, d.Name, d, o.cfg.ServerSecret, deps, bridgeOptFor(d.Name), o.log)
		}(d)
	}
}
