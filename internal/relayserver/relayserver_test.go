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

package relayserver

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vidar808/chess-uci-bridge/internal/logging"
)

func TestRelayServer(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Relay Server Suite")
}

type nopLogger struct{}

func (nopLogger) Debug(string, map[string]any)               {}
func (nopLogger) Info(string, map[string]any)                {}
func (nopLogger) Warn(string, map[string]any)                {}
func (nopLogger) Error(string, map[string]any)                {}
func (l nopLogger) WithField(string, any) logging.Logger     { return l }
func (l nopLogger) WithFields(map[string]any) logging.Logger { return l }

var _ = Describe("Server pairing", func() {
	It("relays bytes both ways once the server and client legs are paired", func() {
		s := New(nopLogger{}, 0)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		serverSide, serverRemote := net.Pipe()
		clientSide, clientRemote := net.Pipe()
		defer serverRemote.Close()
		defer clientRemote.Close()

		go s.dispatch(ctx, serverSide)

		serverReader := bufio.NewReader(serverRemote)
		_, err := serverRemote.Write([]byte("SESSION abc123 server\n"))
		Expect(err).NotTo(HaveOccurred())

		line, err := serverReader.ReadString('\n')
		Expect(err).NotTo(HaveOccurred())
		Expect(line).To(Equal("REGISTERED\n"))

		go s.dispatch(ctx, clientSide)

		clientReader := bufio.NewReader(clientRemote)
		_, err = clientRemote.Write([]byte("SESSION abc123 client\n"))
		Expect(err).NotTo(HaveOccurred())

		line, err = clientReader.ReadString('\n')
		Expect(err).NotTo(HaveOccurred())
		Expect(line).To(Equal("CONNECTED\n"))

		line, err = serverReader.ReadString('\n')
		Expect(err).NotTo(HaveOccurred())
		Expect(line).To(Equal("PAIRED\n"), "server leg observes PAIRED")

		_, err = serverRemote.Write([]byte("hello-from-engine\n"))
		Expect(err).NotTo(HaveOccurred())
		got, err := clientReader.ReadString('\n')
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal("hello-from-engine\n"), "server leg's bytes reach the client leg")

		_, err = clientRemote.Write([]byte("hello-from-client\n"))
		Expect(err).NotTo(HaveOccurred())
		got, err = serverReader.ReadString('\n')
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal("hello-from-client\n"), "client leg's bytes reach the server leg")
	})

	It("supersedes a prior session on duplicate server registration", func() {
		s := New(nopLogger{}, 0)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		firstSide, firstRemote := net.Pipe()
		defer firstRemote.Close()
		go s.dispatch(ctx, firstSide)

		firstReader := bufio.NewReader(firstRemote)
		_, err := firstRemote.Write([]byte("SESSION dup server\n"))
		Expect(err).NotTo(HaveOccurred())
		line, err := firstReader.ReadString('\n')
		Expect(err).NotTo(HaveOccurred())
		Expect(line).To(Equal("REGISTERED\n"))

		secondSide, secondRemote := net.Pipe()
		defer secondRemote.Close()
		go s.dispatch(ctx, secondSide)

		secondReader := bufio.NewReader(secondRemote)
		_, err = secondRemote.Write([]byte("SESSION dup server\n"))
		Expect(err).NotTo(HaveOccurred())
		line, err = secondReader.ReadString('\n')
		Expect(err).NotTo(HaveOccurred())
		Expect(line).To(Equal("REGISTERED\n"), "second registration succeeds")

		firstRemote.SetReadDeadline(time.Now().Add(2 * time.Second))
		buf := make([]byte, 16)
		_, err = firstRemote.Read(buf)
		Expect(err).To(HaveOccurred(), "the superseded leg's connection is closed")
	})

	It("rejects a client naming an unknown session", func() {
		s := New(nopLogger{}, 0)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		side, remote := net.Pipe()
		defer remote.Close()
		go s.dispatch(ctx, side)

		reader := bufio.NewReader(remote)
		_, err := remote.Write([]byte("SESSION ghost client\n"))
		Expect(err).NotTo(HaveOccurred())
		line, err := reader.ReadString('\n')
		Expect(err).NotTo(HaveOccurred())
		Expect(line).To(Equal("ERROR unknown session\n"))
	})

	It("rejects a distinct session once capacity is reached", func() {
		s := New(nopLogger{}, 1)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		firstSide, firstRemote := net.Pipe()
		defer firstRemote.Close()
		go s.dispatch(ctx, firstSide)
		firstReader := bufio.NewReader(firstRemote)
		_, err := firstRemote.Write([]byte("SESSION one server\n"))
		Expect(err).NotTo(HaveOccurred())
		line, err := firstReader.ReadString('\n')
		Expect(err).NotTo(HaveOccurred())
		Expect(line).To(Equal("REGISTERED\n"))

		secondSide, secondRemote := net.Pipe()
		defer secondRemote.Close()
		go s.dispatch(ctx, secondSide)
		secondReader := bufio.NewReader(secondRemote)
		_, err = secondRemote.Write([]byte("SESSION two server\n"))
		Expect(err).NotTo(HaveOccurred())
		line, err = secondReader.ReadString('\n')
		Expect(err).NotTo(HaveOccurred())
		Expect(line).To(Equal("ERROR max sessions reached\n"))
	})

	It("sweeps sessions older than the stale age", func() {
		s := New(nopLogger{}, 0)
		s.StaleAge = time.Millisecond

		side, remote := net.Pipe()
		defer remote.Close()
		defer side.Close()

		s.mu.Lock()
		s.sessions["old"] = &record{id: "old", server: &legEnd{conn: side}, registeredAt: time.Now().Add(-time.Hour), paired: make(chan struct{})}
		s.mu.Unlock()

		time.Sleep(5 * time.Millisecond)
		s.sweepStale()

		s.mu.Lock()
		_, stillPresent := s.sessions["old"]
		s.mu.Unlock()
		Expect(stillPresent).To(BeFalse(), "the stale session is swept")
	})
})
