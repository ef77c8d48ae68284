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

package engine

import (
	"sync"
	"time"

	"github.com/vidar808/chess-uci-bridge/internal/logging"
)

// sessionState is the per-engine lifecycle state the manager tracks.
type sessionState uint8

const (
	stateAbsent sessionState = iota
	stateActive
	stateWarm
	stateTerminating
)

type session struct {
	state      sessionState
	proc       *Process
	expireTimer *time.Timer
}

// SessionManager keeps one warm-capable engine process per name alive
// across client disconnects, reattaching a new client to the still-warm
// process when one arrives before the keepalive window expires.
//
// One mutex guards the whole map; expiry is driven by a per-session timer
// whose callback takes the same lock, so a reattach racing an expiry
// either cancels the timer first or finds the session already gone -
// never both.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*session
	log      logging.Logger
}

// NewSessionManager builds an empty SessionManager.
func NewSessionManager(log logging.Logger) *SessionManager {
	return &SessionManager{sessions: make(map[string]*session), log: log}
}

// Acquire returns a running Process for d, either reattaching to a warm
// session or spawning a fresh one. The bool return reports whether the
// process was reattached (true) or newly spawned (false).
func (m *SessionManager) Acquire(d Descriptor) (*Process, bool, error) {
	m.mu.Lock()
	s, ok := m.sessions[d.Name]
	if ok && s.state == stateWarm && s.proc.Alive() {
		if s.expireTimer != nil {
			s.expireTimer.Stop()
			s.expireTimer = nil
		}
		s.state = stateActive
		m.mu.Unlock()
		m.log.Info("reattached to warm engine session", map[string]any{"engine": d.Name})
		return s.proc, true, nil
	}
	if ok && !s.proc.Alive() {
		delete(m.sessions, d.Name)
	}
	m.mu.Unlock()

	proc, err := Spawn(d)
	if err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	m.sessions[d.Name] = &session{state: stateActive, proc: proc}
	m.mu.Unlock()

	return proc, false, nil
}

// Release hands a session back after a client disconnects. When keepalive
// is zero or negative the process is terminated immediately; otherwise it
// is parked in the warm state and an expiry timer is armed.
func (m *SessionManager) Release(name string, keepalive time.Duration) {
	if keepalive <= 0 {
		m.terminate(name)
		return
	}

	m.mu.Lock()
	s, ok := m.sessions[name]
	if !ok {
		m.mu.Unlock()
		return
	}
	s.state = stateWarm
	s.expireTimer = time.AfterFunc(keepalive, func() { m.expire(name) })
	m.mu.Unlock()

	m.log.Info("engine session released, keeping warm", map[string]any{"engine": name, "keepalive": keepalive.String()})
}

func (m *SessionManager) expire(name string) {
	m.mu.Lock()
	s, ok := m.sessions[name]
	if !ok || s.state != stateWarm {
		m.mu.Unlock()
		return
	}
	s.state = stateTerminating
	delete(m.sessions, name)
	m.mu.Unlock()

	m.log.Info("session keepalive expired", map[string]any{"engine": name})
	if s.proc.Alive() {
		s.proc.Terminate(5 * time.Second)
	}
}

func (m *SessionManager) terminate(name string) {
	m.mu.Lock()
	s, ok := m.sessions[name]
	if ok {
		s.state = stateTerminating
		delete(m.sessions, name)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	if s.expireTimer != nil {
		s.expireTimer.Stop()
	}
	if s.proc.Alive() {
		s.proc.Terminate(5 * time.Second)
	}
}

// ShutdownAll terminates every tracked session, warm or active, used
// during process shutdown.
func (m *SessionManager) ShutdownAll() {
	m.mu.Lock()
	names := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		names = append(names, name)
	}
	m.mu.Unlock()

	for _, name := range names {
		m.terminate(name)
	}
}
