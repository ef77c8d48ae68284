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

package throttle

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestThrottle(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Throttle Suite")
}

func newTestThrottler(intervalMs int) (*Throttler, *int64) {
	clock := new(int64)
	th := New(intervalMs)
	th.now = func() int64 { return *clock }
	return th, clock
}

var _ = Describe("Throttler.Process", func() {
	It("forwards everything when throttling is disabled", func() {
		th, _ := newTestThrottler(0)
		for i := 0; i < 5; i++ {
			d := th.Process("info depth 10 score cp 20")
			Expect(d.Forward).To(BeTrue(), "iteration %d", i)
		}
	})

	It("always forwards non-info lines", func() {
		th, clock := newTestThrottler(1000)
		*clock = 0
		th.Process("info depth 5 score cp 1")
		d := th.Process("bestmove e2e4")
		Expect(d.Forward).To(BeTrue())
	})

	It("forwards immediately on a depth change", func() {
		th, clock := newTestThrottler(1000)
		*clock = 0
		first := th.Process("info depth 1 score cp 1")
		Expect(first.Forward).To(BeTrue(), "first depth forwards")

		*clock = 10
		second := th.Process("info depth 2 score cp 2")
		Expect(second.Forward).To(BeTrue(), "depth change forwards within the window")
	})

	It("elides a same-depth line within the window and keeps it pending", func() {
		th, clock := newTestThrottler(1000)
		*clock = 0
		th.Process("info depth 5 score cp 1")
		*clock = 500
		d := th.Process("info depth 5 score cp 2")
		Expect(d.Forward).To(BeFalse())

		line, ok := th.Pending()
		Expect(ok).To(BeTrue())
		Expect(line).To(Equal("info depth 5 score cp 2"))
	})

	It("forwards a same-depth line once the window elapses and clears pending", func() {
		th, clock := newTestThrottler(1000)
		*clock = 0
		th.Process("info depth 5 score cp 1")
		*clock = 500
		th.Process("info depth 5 score cp 2")
		*clock = 1500
		d := th.Process("info depth 5 score cp 3")
		Expect(d.Forward).To(BeTrue())

		_, ok := th.Pending()
		Expect(ok).To(BeFalse(), "pending slot clears once a line forwards")
	})

	It("elides depthless info lines like any other info line", func() {
		th, clock := newTestThrottler(1000)
		*clock = 0
		th.Process("info depth 5 score cp 1")
		*clock = 100
		d := th.Process("info string hello")
		Expect(d.Forward).To(BeFalse())
	})
})
