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

package listener

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"time"

	"github.com/vidar808/chess-uci-bridge/internal/auth"
	"github.com/vidar808/chess-uci-bridge/internal/bridge"
	"github.com/vidar808/chess-uci-bridge/internal/engine"
)

const negotiationTimeout = 30 * time.Second

// handleMultiplex runs the trust/auth gate, then the ENGINE_LIST /
// SELECT_ENGINE sub-protocol (or falls through to the default engine for
// an immediate "uci"), then hands off to the bridge. Trust and auth are
// NOT re-run inside bridge.Run for this path: they already happened here,
// against the real client address, before any engine was touched.
func (s *Set) handleMultiplex(ctx context.Context, conn net.Conn) {
	reader := bufio.NewReader(conn)

	gate := s.opt.BridgeOptions(s.registry.Default)
	if host, _, err := net.SplitHostPort(conn.RemoteAddr().String()); err == nil && s.deps.Trust != nil && !s.deps.Trust.Classify(host) {
		s.deps.Trust.RecordAttempt(ctx, host)
		_ = conn.Close()
		return
	}
	if !auth.Handshake(ctx, &auth.BufReaderLineRW{R: reader, W: conn}, gate.AuthPolicy) {
		_ = conn.Close()
		return
	}

	selected, ok := negotiateEngine(reader, conn, s.registry, s.registry.Default)
	if !ok {
		_ = conn.Close()
		return
	}

	d, ok := s.registry.Get(selected)
	if !ok {
		_ = conn.Close()
		return
	}

	opt := s.opt.BridgeOptions(selected)
	opt.SkipTrust = true
	opt.AuthPolicy = auth.Policy{}
	bridge.Run(ctx, &prebufferedConn{Conn: conn, r: reader}, d, s.deps, opt)
}

// negotiateEngine reads the client's first line and resolves it to an
// engine name per the single-port sub-protocol. def is the configured
// default engine, falling back to the first registered name.
func negotiateEngine(r *bufio.Reader, w net.Conn, reg *engine.Registry, def string) (string, bool) {
	if def == "" {
		names := reg.Names()
		if len(names) > 0 {
			def = names[0]
		}
	}

	_ = w.SetReadDeadline(time.Now().Add(negotiationTimeout))
	first, err := r.ReadString('\n')
	if err != nil && first == "" {
		return "", false
	}
	_ = w.SetReadDeadline(time.Time{})
	firstLine := strings.TrimRight(first, "\r\n")

	if firstLine != "ENGINE_LIST" {
		return def, def != ""
	}

	for _, name := range sortedNames(reg) {
		if _, err := io.WriteString(w, "ENGINE "+name+"\n"); err != nil {
			return "", false
		}
	}
	if _, err := io.WriteString(w, "ENGINES_END\n"); err != nil {
		return "", false
	}

	_ = w.SetReadDeadline(time.Now().Add(negotiationTimeout))
	sel, err := r.ReadString('\n')
	if err != nil && sel == "" {
		return "", false
	}
	_ = w.SetReadDeadline(time.Time{})
	selLine := strings.TrimRight(sel, "\r\n")

	const prefix = "SELECT_ENGINE "
	if !strings.HasPrefix(selLine, prefix) {
		return def, def != ""
	}

	requested := strings.TrimPrefix(selLine, prefix)
	if _, ok := reg.Get(requested); !ok {
		_, _ = io.WriteString(w, "ENGINE_ERROR unknown engine\n")
		return "", false
	}
	if _, err := io.WriteString(w, "ENGINE_SELECTED\n"); err != nil {
		return "", false
	}
	return requested, true
}

// prebufferedConn lets the bridge read through a bufio.Reader that may
// already hold bytes buffered during the multiplex negotiation, instead
// of dropping them by handing bridge.Run the raw net.Conn.
type prebufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (p *prebufferedConn) Read(b []byte) (int, error) {
	return p.r.Read(b)
}
