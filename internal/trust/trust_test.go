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

package trust_test

import (
	"context"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vidar808/chess-uci-bridge/internal/logging"
	"github.com/vidar808/chess-uci-bridge/internal/trust"
)

func TestTrust(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Trust Suite")
}

type nopLogger struct{}

func (nopLogger) Debug(string, map[string]any)           {}
func (nopLogger) Info(string, map[string]any)            {}
func (nopLogger) Warn(string, map[string]any)            {}
func (nopLogger) Error(string, map[string]any)           {}
func (l nopLogger) WithField(string, any) logging.Logger { return l }
func (l nopLogger) WithFields(map[string]any) logging.Logger {
	return l
}

type recordingFirewall struct {
	mu            sync.Mutex
	blockedAddrs  []string
	blockedSubnet []string
}

func (f *recordingFirewall) BlockAddress(addr string, ports []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockedAddrs = append(f.blockedAddrs, addr)
	return nil
}

func (f *recordingFirewall) BlockNetwork(cidr string, ports []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockedSubnet = append(f.blockedSubnet, cidr)
	return nil
}

func (f *recordingFirewall) addrs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.blockedAddrs...)
}

var _ = Describe("Filter.Classify", func() {
	It("trusts everything when the filter is disabled", func() {
		f := trust.New(trust.Options{Enabled: false}, nil, nopLogger{})
		Expect(f.Classify("203.0.113.5")).To(BeTrue())
	})

	It("trusts exact addresses and configured networks", func() {
		f := trust.New(trust.Options{
			Enabled:          true,
			TrustedAddresses: []string{"203.0.113.5"},
			TrustedNetworks:  []string{"10.0.0.0/8"},
		}, nil, nopLogger{})

		Expect(f.Classify("203.0.113.5")).To(BeTrue(), "exact trusted address")
		Expect(f.Classify("10.1.2.3")).To(BeTrue(), "address inside trusted network")
		Expect(f.Classify("198.51.100.9")).To(BeFalse(), "unrelated address")
	})

	It("respects AddAutoTrust", func() {
		f := trust.New(trust.Options{Enabled: true}, nil, nopLogger{})
		Expect(f.Classify("192.0.2.1")).To(BeFalse(), "starts untrusted")

		f.AddAutoTrust("192.0.2.1")
		Expect(f.Classify("192.0.2.1")).To(BeTrue(), "trusted after AddAutoTrust")
	})
})

var _ = Describe("Filter.RecordAttempt", func() {
	It("blocks an address once its attempt threshold is crossed", func() {
		fw := &recordingFirewall{}
		f := trust.New(trust.Options{
			Enabled:               true,
			MaxAttemptsPerAddress: 2,
			AttemptPeriod:         time.Minute,
			MaxAttemptsPerSubnet:  1000,
			IPBlockingEnabled:     true,
		}, fw, nopLogger{})

		ctx := context.Background()
		addr := "198.51.100.20"
		for i := 0; i < 3; i++ {
			f.RecordAttempt(ctx, addr)
		}

		Expect(fw.addrs()).To(Equal([]string{addr}))
	})

	It("skips the firewall collaborator when IP blocking is disabled", func() {
		fw := &recordingFirewall{}
		f := trust.New(trust.Options{
			Enabled:               true,
			MaxAttemptsPerAddress: 1,
			AttemptPeriod:         time.Minute,
			IPBlockingEnabled:     false,
		}, fw, nopLogger{})

		ctx := context.Background()
		for i := 0; i < 3; i++ {
			f.RecordAttempt(ctx, "198.51.100.30")
		}

		Expect(fw.addrs()).To(BeEmpty())
	})

	It("reflects recorded attempts in the ledger count", func() {
		f := trust.New(trust.Options{
			Enabled:               true,
			MaxAttemptsPerAddress: 100,
			AttemptPeriod:         time.Minute,
		}, nil, nopLogger{})

		ctx := context.Background()
		f.RecordAttempt(ctx, "198.51.100.40")
		f.RecordAttempt(ctx, "198.51.100.40")

		Expect(f.AddressAttemptCount("198.51.100.40")).To(Equal(2))
	})
})
