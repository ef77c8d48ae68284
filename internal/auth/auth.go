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

// Package auth implements the pre-UCI challenge/response handshake that
// gates a bridge connection before any engine traffic flows.
package auth

import (
	"bufio"
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/vidar808/chess-uci-bridge/internal/config"
)

const replyTimeout = 10 * time.Second

// Policy is the handshake configuration resolved from config.Config.
type Policy struct {
	Method config.AuthMethod
	Token  string
	PSK    string
}

// LineReadWriter is the minimal surface the handshake needs: a buffered
// line reader and a raw writer, so it can run against either a plain TCP
// connection or a relay-piped reader/writer pair.
type LineReadWriter interface {
	ReadLine(ctx context.Context, timeout time.Duration) (string, error)
	WriteLine(line string) error
}

// Handshake runs the full exchange and reports success. When Method is
// AuthNone (or empty), it returns true immediately without sending a
// greeting at all: no credentials configured means no handshake.
func Handshake(ctx context.Context, rw LineReadWriter, p Policy) bool {
	methods := advertisedMethods(p)
	if len(methods) == 0 {
		return true
	}

	if err := rw.WriteLine(greeting(methods)); err != nil {
		return false
	}

	line, err := rw.ReadLine(ctx, replyTimeout)
	if err != nil || line == "" {
		_ = rw.WriteLine("AUTH_FAIL")
		return false
	}

	fields := strings.SplitN(strings.TrimSpace(line), " ", 2)
	if len(fields) != 2 {
		_ = rw.WriteLine("AUTH_FAIL")
		return false
	}

	ok := false
	switch fields[0] {
	case "AUTH":
		ok = (p.Method == config.AuthToken || p.Method == config.AuthBoth) && constantTimeEqual(fields[1], p.Token)
	case "PSK_AUTH":
		ok = (p.Method == config.AuthPSK || p.Method == config.AuthBoth) && constantTimeEqual(fields[1], p.PSK)
	}

	if ok {
		return rw.WriteLine("AUTH_OK") == nil
	}
	_ = rw.WriteLine("AUTH_FAIL")
	return false
}

func advertisedMethods(p Policy) []string {
	switch p.Method {
	case config.AuthToken:
		return []string{"token"}
	case config.AuthPSK:
		return []string{"psk"}
	case config.AuthBoth:
		return []string{"token", "psk"}
	default:
		return nil
	}
}

// greeting produces the backward-compatible plain "AUTH_REQUIRED" form
// when only token auth is configured, and the explicit comma-list form
// otherwise, so older clients that only understand the bare form keep
// working unchanged.
func greeting(methods []string) string {
	if len(methods) == 1 && methods[0] == "token" {
		return "AUTH_REQUIRED"
	}
	return fmt.Sprintf("AUTH_REQUIRED %s", strings.Join(methods, ","))
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		// Still run a comparison (of a against itself) so a length
		// mismatch does not return before any compare work is done; the
		// time spent then depends on len(a) only, not on b's contents.
		return subtle.ConstantTimeCompare([]byte(a), []byte(a)) == 1 && len(a) == len(b)
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// BufReaderLineRW adapts a bufio.Reader + io.Writer pair to LineReadWriter
// for production use against a net.Conn.
type BufReaderLineRW struct {
	R *bufio.Reader
	W interface{ Write([]byte) (int, error) }
}

func (b *BufReaderLineRW) ReadLine(ctx context.Context, timeout time.Duration) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := b.R.ReadString('\n')
		ch <- result{line: strings.TrimRight(line, "\r\n"), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(timeout):
		return "", context.DeadlineExceeded
	case r := <-ch:
		return r.line, r.err
	}
}

func (b *BufReaderLineRW) WriteLine(line string) error {
	_, err := b.W.Write([]byte(line + "\n"))
	return err
}
