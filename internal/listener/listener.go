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

// Package listener runs the TCP accept loops in front of the bridge: one
// listener per engine, or a single multiplexed listener that negotiates
// which engine a client wants before handing off.
package listener

import (
	"context"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/vidar808/chess-uci-bridge/internal/bridge"
	"github.com/vidar808/chess-uci-bridge/internal/engine"
	"github.com/vidar808/chess-uci-bridge/internal/logging"
)

const (
	bindRetries  = 5
	bindRetryGap = 5 * time.Second
)

// Set owns every TCP listener the orchestrator starts, one per engine in
// per-engine mode or exactly one in multiplex mode.
type Set struct {
	registry *engine.Registry
	deps     bridge.Deps
	opt      SetOptions
	log      logging.Logger
}

// SetOptions carries the per-connection Options template (auth policy,
// timeouts) shared by every bridge the listener set spawns.
type SetOptions struct {
	BridgeOptions func(engineName string) bridge.Options
	Multiplex     bool
	BasePort      int
}

// New builds a listener Set.
func New(reg *engine.Registry, deps bridge.Deps, opt SetOptions, log logging.Logger) *Set {
	return &Set{registry: reg, deps: deps, opt: opt, log: log}
}

// Run starts every configured listener and blocks until ctx is cancelled.
// Per-engine listeners that exhaust their bind retries are skipped; the
// orchestrator continues serving the remaining engines.
func (s *Set) Run(ctx context.Context) {
	if s.opt.Multiplex {
		s.runMultiplex(ctx)
		return
	}
	s.runPerEngine(ctx)
}

func (s *Set) runPerEngine(ctx context.Context) {
	done := make(chan struct{})
	var running int
	for _, name := range s.registry.Names() {
		d, _ := s.registry.Get(name)
		ln, err := bindWithRetry(fmt.Sprintf(":%d", d.Port), s.log, name)
		if err != nil {
			s.log.Error("listener bind failed, skipping engine", map[string]any{"engine": name, "error": err.Error()})
			continue
		}
		running++
		s.log.Info("listening for engine", map[string]any{"engine": name, "port": d.Port})
		go func(d engine.Descriptor, ln net.Listener) {
			defer close(done)
			acceptLoop(ctx, ln, func(conn net.Conn) {
				bridge.Run(ctx, conn, d, s.deps, s.opt.BridgeOptions(d.Name))
			})
		}(d, ln)
	}
	if running == 0 {
		return
	}
	<-ctx.Done()
}

func (s *Set) runMultiplex(ctx context.Context) {
	ln, err := bindWithRetry(fmt.Sprintf(":%d", s.opt.BasePort), s.log, "multiplex")
	if err != nil {
		s.log.Error("multiplex listener bind failed", map[string]any{"error": err.Error()})
		return
	}
	s.log.Info("multiplex listening", map[string]any{"port": s.opt.BasePort, "engines": len(s.registry.Names())})

	acceptLoop(ctx, ln, func(conn net.Conn) {
		s.handleMultiplex(ctx, conn)
	})
}

func acceptLoop(ctx context.Context, ln net.Listener, handle func(net.Conn)) {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go handle(conn)
	}
}

func bindWithRetry(addr string, log logging.Logger, label string) (net.Listener, error) {
	var lastErr error
	for attempt := 0; attempt < bindRetries; attempt++ {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
		lastErr = err
		log.Error("bind failed, retrying", map[string]any{"target": label, "addr": addr, "attempt": attempt + 1, "error": err.Error()})
		time.Sleep(bindRetryGap)
	}
	return nil, lastErr
}

// ResolvePorts probes every configured engine port with a bind attempt and
// rewrites the registry entry to the first free port at or after it,
// skipping ports already claimed by another descriptor in this pass.
func ResolvePorts(reg *engine.Registry) error {
	claimed := make(map[int]struct{})
	for _, name := range reg.Names() {
		d, _ := reg.Get(name)
		port := d.Port
		for {
			if _, taken := claimed[port]; taken {
				port++
				continue
			}
			ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
			if err == nil {
				_ = ln.Close()
				break
			}
			port++
			if port > 65535 {
				return fmt.Errorf("engine %q: no free port found", name)
			}
		}
		claimed[port] = struct{}{}
		reg.SetPort(name, port)
	}
	return nil
}

// sortedNames returns engine names in ascending order, used by the
// ENGINE_LIST negotiation.
func sortedNames(reg *engine.Registry) []string {
	names := reg.Names()
	sort.Strings(names)
	return names
}
