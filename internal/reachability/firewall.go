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

// Package reachability collects the capability collaborators the trust
// filter and orchestrator drive but do not themselves implement: firewall
// rule injection, UPnP port mapping, and mDNS service advertisement. Every
// capability degrades to a logged no-op when the underlying tool or
// protocol is unavailable.
package reachability

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/vidar808/chess-uci-bridge/internal/logging"
)

// NoopFirewall satisfies trust.Firewall without touching any system
// state, used when enable_firewall_rules is false.
type NoopFirewall struct{}

func (NoopFirewall) BlockAddress(addr string, ports []int) error  { return nil }
func (NoopFirewall) BlockNetwork(cidr string, ports []int) error  { return nil }

// IptablesFirewall shells out to iptables (and ip6tables for IPv6
// addresses) to drop traffic from a single address or network, scoped to
// the engine ports given.
type IptablesFirewall struct {
	Log logging.Logger
}

func (f IptablesFirewall) BlockAddress(addr string, ports []int) error {
	return f.block(binaryFor(addr), "-s", addr, ports)
}

func (f IptablesFirewall) BlockNetwork(cidr string, ports []int) error {
	return f.block(binaryFor(cidr), "-s", cidr, ports)
}

func (f IptablesFirewall) block(bin, flag, target string, ports []int) error {
	if len(ports) == 0 {
		return f.run(bin, "-A", "INPUT", flag, target, "-j", "DROP")
	}
	portList := make([]string, len(ports))
	for i, p := range ports {
		portList[i] = strconv.Itoa(p)
	}
	return f.run(bin, "-A", "INPUT", flag, target, "-p", "tcp", "-m", "multiport",
		"--dports", strings.Join(portList, ","), "-j", "DROP")
}

func (f IptablesFirewall) run(bin string, args ...string) error {
	cmd := exec.Command(bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		f.Log.Error("firewall command failed", map[string]any{"cmd": bin, "output": string(out), "error": err.Error()})
		return fmt.Errorf("%s %s: %w", bin, strings.Join(args, " "), err)
	}
	return nil
}

func binaryFor(addrOrCIDR string) string {
	if strings.Contains(addrOrCIDR, ":") {
		return "ip6tables"
	}
	return "iptables"
}
