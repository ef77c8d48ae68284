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

// Package trust classifies a peer address as trusted or not, and keeps
// the connection-attempt ledger that drives the firewall collaborator.
package trust

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/vidar808/chess-uci-bridge/internal/logging"
)

// Firewall is the capability interface invoked on threshold breach.
// internal/reachability provides the concrete (no-op or shell-out)
// implementations.
type Firewall interface {
	BlockAddress(addr string, ports []int) error
	BlockNetwork(cidr string, ports []int) error
}

// Options configures the Filter (wired from internal/config.Config).
type Options struct {
	Enabled                 bool
	AutoTrustEnabled         bool
	TrustedAddresses        []string
	TrustedNetworks         []string
	MaxAttemptsPerAddress   int
	AttemptPeriod           time.Duration
	MaxAttemptsPerSubnet    int
	IPv6PrefixLen           int
	IPBlockingEnabled       bool
	SubnetBlockingEnabled   bool
	EnginePorts             []int
}

// Filter is the trust & rate filter. A single instance is shared by
// every bridge in the process.
type Filter struct {
	opt Options
	fw  Firewall
	log logging.Logger

	mu          sync.Mutex
	byAddress   map[string][]time.Time
	bySubnet    map[string][]time.Time
	autoTrusted map[string]struct{}

	// subnetSem bounds the concurrent subnet-arithmetic work to a
	// worker-pool-sized budget; RecordAttempt acquires it only around the
	// subnet-derivation step, never while holding mu.
	subnetSem *semaphore.Weighted
}

// New builds a Filter.
func New(opt Options, fw Firewall, log logging.Logger) *Filter {
	return &Filter{
		opt:         opt,
		fw:          fw,
		log:         log,
		byAddress:   make(map[string][]time.Time),
		bySubnet:    make(map[string][]time.Time),
		autoTrusted: make(map[string]struct{}),
		subnetSem:   semaphore.NewWeighted(4),
	}
}

// Classify reports whether addr is trusted: configured exact address,
// configured network block, or the runtime auto-trust set. No side
// effects.
func (f *Filter) Classify(addr string) bool {
	if !f.opt.Enabled {
		return true
	}

	for _, a := range f.opt.TrustedAddresses {
		if a == addr {
			return true
		}
	}

	f.mu.Lock()
	_, auto := f.autoTrusted[addr]
	f.mu.Unlock()
	if auto {
		return true
	}

	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, cidr := range f.opt.TrustedNetworks {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// AddAutoTrust adds addr to the runtime auto-trust set. Idempotent.
func (f *Filter) AddAutoTrust(addr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.autoTrusted[addr] = struct{}{}
}

// RecordAttempt appends a timestamp for addr and its containing subnet,
// pruning stale entries first, and invokes the firewall collaborator
// (outside the lock) once a threshold is crossed. Intended to be called
// only for untrusted addresses.
func (f *Filter) RecordAttempt(ctx context.Context, addr string) {
	now := time.Now()

	f.mu.Lock()
	f.byAddress[addr] = prune(append(f.byAddress[addr], now), f.opt.AttemptPeriod, now)
	addrCount := len(f.byAddress[addr])
	var blockAddr bool
	if addrCount > f.opt.MaxAttemptsPerAddress && f.opt.MaxAttemptsPerAddress > 0 {
		blockAddr = f.opt.IPBlockingEnabled
		delete(f.byAddress, addr)
	}
	f.mu.Unlock()

	subnet := f.subnetOf(ctx, addr)

	f.mu.Lock()
	f.bySubnet[subnet] = prune(append(f.bySubnet[subnet], now), f.opt.AttemptPeriod, now)
	subnetCount := len(f.bySubnet[subnet])
	var blockSubnet bool
	if subnetCount > f.opt.MaxAttemptsPerSubnet && f.opt.MaxAttemptsPerSubnet > 0 {
		blockSubnet = f.opt.SubnetBlockingEnabled
		delete(f.bySubnet, subnet)
	}
	f.mu.Unlock()

	if blockAddr && f.fw != nil {
		if err := f.fw.BlockAddress(addr, f.opt.EnginePorts); err != nil {
			f.log.Error("firewall block-address failed", map[string]any{"addr": addr, "error": err.Error()})
		}
	}
	if blockSubnet && f.fw != nil {
		if err := f.fw.BlockNetwork(subnet, f.opt.EnginePorts); err != nil {
			f.log.Error("firewall block-subnet failed", map[string]any{"subnet": subnet, "error": err.Error()})
		}
	}
}

// AddressAttemptCount returns the current ledger length for addr (used by
// tests and the status endpoint; not part of the original protocol).
func (f *Filter) AddressAttemptCount(addr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byAddress[addr])
}

// subnetOf derives the /24 (IPv4) or configured-width (IPv6) network
// containing addr. The semaphore caps how many of these run concurrently
// against a worker-pool-sized budget without spinning up a goroutine per
// call.
func (f *Filter) subnetOf(ctx context.Context, addr string) string {
	_ = f.subnetSem.Acquire(ctx, 1)
	defer f.subnetSem.Release(1)

	ip := net.ParseIP(addr)
	if ip == nil {
		return addr
	}
	if v4 := ip.To4(); v4 != nil {
		mask := net.CIDRMask(24, 32)
		return (&net.IPNet{IP: v4.Mask(mask), Mask: mask}).String()
	}

	prefixLen := f.opt.IPv6PrefixLen
	if prefixLen <= 0 {
		prefixLen = 64
	}
	mask := net.CIDRMask(prefixLen, 128)
	return (&net.IPNet{IP: ip.Mask(mask), Mask: mask}).String()
}

func prune(times []time.Time, period time.Duration, now time.Time) []time.Time {
	if period <= 0 {
		return times
	}
	out := times[:0]
	for _, t := range times {
		if now.Sub(t) <= period {
			out = append(out, t)
		}
	}
	return out
}
