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

// Package bridge wires one client connection to one engine process:
// trust gate, auth handshake, session acquisition, the uci/uciok startup
// sequence, and the steady-state copy loops between client and engine.
package bridge

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/vidar808/chess-uci-bridge/internal/auth"
	"github.com/vidar808/chess-uci-bridge/internal/config"
	"github.com/vidar808/chess-uci-bridge/internal/engine"
	"github.com/vidar808/chess-uci-bridge/internal/logging"
	"github.com/vidar808/chess-uci-bridge/internal/statusapi"
	"github.com/vidar808/chess-uci-bridge/internal/throttle"
	"github.com/vidar808/chess-uci-bridge/internal/trust"
)

const uciokTimeout = 30 * time.Second

// Deps bundles the process-wide collaborators a bridge needs, so one
// struct can be constructed once at startup and shared by every
// connection.
type Deps struct {
	Sessions *engine.SessionManager
	Trust    *trust.Filter
	Log      logging.Logger
}

// Options configures one Run invocation.
type Options struct {
	AuthPolicy              auth.Policy
	SkipTrust               bool // set by the relay leg and the multiplex handler post-negotiation
	InactivityTimeout       time.Duration
	HeartbeatInterval       time.Duration
	InfoThrottleMs          int
	SessionKeepalive        time.Duration
	ClientAddr              string
}

// Run drives one client connection against one engine descriptor until
// either side closes or an error occurs. Run closes conn before it
// returns, on the error paths and after the copy loops finish alike.
func Run(ctx context.Context, conn net.Conn, d engine.Descriptor, deps Deps, opt Options) {
	clientAddr := opt.ClientAddr
	if clientAddr == "" {
		clientAddr = hostOf(conn.RemoteAddr().String())
	}

	if !opt.SkipTrust && deps.Trust != nil {
		if !deps.Trust.Classify(clientAddr) {
			deps.Trust.RecordAttempt(ctx, clientAddr)
			statusapi.RecordUntrustedAttempt(clientAddr)
			deps.Log.Warn("rejected untrusted connection", map[string]any{"addr": clientAddr})
			_ = conn.Close()
			return
		}
	}

	reader := bufio.NewReader(conn)
	if opt.AuthPolicy.Method != "" && opt.AuthPolicy.Method != config.AuthNone {
		rw := &auth.BufReaderLineRW{R: reader, W: conn}
		if !auth.Handshake(ctx, rw, opt.AuthPolicy) {
			deps.Log.Warn("auth failed", map[string]any{"addr": clientAddr})
			_ = conn.Close()
			return
		}
	}

	proc, reattached, err := deps.Sessions.Acquire(d)
	if err != nil {
		deps.Log.Error("engine spawn failed", map[string]any{"engine": d.Name, "error": err.Error()})
		_ = conn.Close()
		return
	}
	deps.Log.Info("bridge starting", map[string]any{"engine": d.Name, "addr": clientAddr, "reattached": reattached})
	statusapi.ActiveBridges().Inc()
	defer statusapi.ActiveBridges().Dec()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.Heartbeat(runCtx, proc, opt.HeartbeatInterval)
	}()

	lastActivity := &activityClock{t: time.Now()}
	wg.Add(1)
	go func() {
		defer wg.Done()
		watchdog(runCtx, conn, lastActivity, opt.InactivityTimeout)
	}()

	if !startupSequence(proc, d, conn) {
		cancel()
		_ = conn.Close()
		deps.Sessions.Release(d.Name, opt.SessionKeepalive)
		wg.Wait()
		return
	}

	th := throttle.New(opt.InfoThrottleMs)

	var pumpWG sync.WaitGroup
	pumpWG.Add(2)
	go func() {
		defer pumpWG.Done()
		clientToEngine(runCtx, conn, reader, proc, lastActivity, d)
	}()
	go func() {
		defer pumpWG.Done()
		engineToClient(runCtx, proc, conn, th)
	}()
	pumpWG.Wait()

	cancel()
	wg.Wait()
	deps.Sessions.Release(d.Name, opt.SessionKeepalive)
	_ = conn.Close()
	deps.Log.Info("bridge closed", map[string]any{"engine": d.Name, "addr": clientAddr})
}

// startupSequence sends "uci" plus any configured startup overrides and
// relays every line back to the client until "uciok" or the timeout
// elapses, killing the engine on timeout since a hung engine would
// otherwise block the connection forever.
func startupSequence(proc *engine.Process, d engine.Descriptor, conn net.Conn) bool {
	if err := proc.Write("uci"); err != nil {
		return false
	}
	for name, ov := range d.Overrides {
		if ov.IsPassThrough() {
			continue
		}
		_ = proc.Write("setoption name " + name + " value " + ov.Value)
	}

	timer := time.AfterFunc(uciokTimeout, func() { proc.Terminate(0) })
	defer timer.Stop()
	for {
		line, err := proc.Stdout.ReadString('\n')
		if line != "" {
			if _, werr := conn.Write([]byte(line)); werr != nil {
				return false
			}
		}
		if err != nil {
			return false
		}
		if strings.Contains(line, "uciok") {
			return true
		}
	}
}

type activityClock struct {
	mu sync.Mutex
	t  time.Time
}

func (a *activityClock) touch() {
	a.mu.Lock()
	a.t = time.Now()
	a.mu.Unlock()
}

func (a *activityClock) since() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return time.Since(a.t)
}

// watchdog closes conn once it has been idle for longer than timeout.
// timeout <= 0 disables the watchdog entirely.
func watchdog(ctx context.Context, conn net.Conn, clock *activityClock, timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if clock.since() > timeout {
				_ = conn.Close()
				return
			}
		}
	}
}

// clientToEngine rewrites setoption lines per the override policy and
// forwards everything else verbatim, touching the activity clock on
// every line read. A 60-second read deadline keeps the loop able to
// notice cancellation even with an idle client; a timeout just loops.
func clientToEngine(ctx context.Context, conn net.Conn, r *bufio.Reader, proc *engine.Process, clock *activityClock, d engine.Descriptor) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		line, err := r.ReadString('\n')
		if line == "" {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if err != nil {
				return
			}
		}
		clock.touch()
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			continue
		}
		_ = proc.Write(rewriteSetOption(trimmed, d))
		if err != nil && !isTimeout(err) {
			return
		}
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// rewriteSetOption applies the engine's per-option override policy to a
// client-supplied "setoption name X value Y" line, per
// Descriptor.ResolveOverride's precedence. Any other command passes
// through unmodified.
func rewriteSetOption(line string, d engine.Descriptor) string {
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "setoption" || fields[1] != "name" || fields[3] != "value" {
		return line
	}
	optName := fields[2]
	ov, ok := d.ResolveOverride(optName)
	if !ok || ov.IsPassThrough() {
		return line
	}
	return "setoption name " + optName + " value " + ov.Value
}

// engineToClient has no read deadline of its own: the engine's stdout
// pipe does not support one, and cancellation instead relies on the
// engine process dying (or being killed) once the bridge tears down.
func engineToClient(ctx context.Context, proc *engine.Process, conn net.Conn, th *throttle.Throttler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		line, err := proc.Stdout.ReadString('\n')
		if line != "" {
			trimmed := strings.TrimRight(line, "\r\n")
			decision := th.Process(trimmed)
			if decision.Forward {
				if _, werr := conn.Write([]byte(line)); werr != nil {
					return
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
