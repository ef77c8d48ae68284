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

// Package relay dials a rendezvous server and keeps one long-running leg
// per engine registered, so a remote client with no inbound connectivity
// to this machine can still reach an engine through the rendezvous hop.
package relay

import (
	"bufio"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"
	"time"

	"github.com/vidar808/chess-uci-bridge/internal/bridge"
	"github.com/vidar808/chess-uci-bridge/internal/engine"
	"github.com/vidar808/chess-uci-bridge/internal/logging"
)

const (
	keepaliveCeiling = 300 * time.Second
	reconnectPause   = 10 * time.Second
)

// SessionID derives the deterministic 24-hex-character relay session id
// for an engine name (or the reserved multiplex label), keyed by the
// bridge's persistent server secret. A restarted process rejoins the same
// slot because the derivation has no random input.
func SessionID(serverSecret, label string) string {
	mac := hmac.New(sha256.New, []byte(serverSecret))
	mac.Write([]byte(label))
	return hex.EncodeToString(mac.Sum(nil))[:24]
}

// Leg runs one engine's relay client loop until ctx is cancelled.
func Leg(ctx context.Context, relayAddr string, label string, d engine.Descriptor, serverSecret string, deps bridge.Deps, bridgeOpt bridge.Options, log logging.Logger) {
	id := SessionID(serverSecret, label)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := legOnce(ctx, relayAddr, id, d, deps, bridgeOpt, log); err != nil {
			log.Warn("relay leg error, reconnecting", map[string]any{"engine": d.Name, "error": err.Error()})
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectPause):
		}
	}
}

func legOnce(ctx context.Context, relayAddr, id string, d engine.Descriptor, deps bridge.Deps, bridgeOpt bridge.Options, log logging.Logger) error {
	conn, err := net.Dial("tcp", relayAddr)
	if err != nil {
		return err
	}

	reader := bufio.NewReader(conn)

	if _, err := conn.Write([]byte("SESSION " + id + " server\n")); err != nil {
		_ = conn.Close()
		return err
	}

	line, err := reader.ReadString('\n')
	if err != nil {
		_ = conn.Close()
		return err
	}
	line = strings.TrimRight(line, "\r\n")
	if line != "REGISTERED" {
		_ = conn.Close()
		return errLine(line)
	}

	_ = conn.SetReadDeadline(time.Now().Add(keepaliveCeiling))
	line, err = reader.ReadString('\n')
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil {
		_ = conn.Close()
		return err
	}
	line = strings.TrimRight(line, "\r\n")
	if line != "PAIRED" {
		_ = conn.Close()
		return errLine(line)
	}

	opt := bridgeOpt
	opt.SkipTrust = true
	bridge.Run(ctx, &relayConn{Conn: conn, r: reader}, d, deps, opt)
	return nil
}

type errLine string

func (e errLine) Error() string { return "unexpected relay reply: " + string(e) }

// relayConn is the same "don't drop buffered negotiation bytes" pattern
// used by the multiplex listener: the bridge reads through this reader
// rather than directly from the socket.
type relayConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *relayConn) Read(b []byte) (int, error) {
	return c.r.Read(b)
}
