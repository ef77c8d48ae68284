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

// Package relayserver is the standalone rendezvous service that pairs one
// bridge's relay leg with one remote client's relay leg by session id,
// then shuttles bytes between them until either side disconnects.
package relayserver

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/vidar808/chess-uci-bridge/internal/logging"
)

const (
	dispatchTimeout = 10 * time.Second
	sweepInterval   = 5 * time.Minute
	defaultStaleAge = 1 * time.Hour
)

type legEnd struct {
	conn net.Conn
	r    *bufio.Reader
}

// record is one in-flight relay session.
type record struct {
	id           string
	server       *legEnd
	client       *legEnd
	registeredAt time.Time
	paired       chan struct{}
	pairedOnce   sync.Once
	superseded   bool
}

func (r *record) signalPaired() {
	r.pairedOnce.Do(func() { close(r.paired) })
}

// Server owns the session map and accept loop for the rendezvous service.
type Server struct {
	log         logging.Logger
	MaxSessions int
	StaleAge    time.Duration

	mu       sync.Mutex
	sessions map[string]*record
}

// New builds a Server. maxSessions <= 0 means unlimited.
func New(log logging.Logger, maxSessions int) *Server {
	return &Server{
		log:         log,
		MaxSessions: maxSessions,
		StaleAge:    defaultStaleAge,
		sessions:    make(map[string]*record),
	}
}

// Run accepts connections on addr until ctx is cancelled, and runs the
// stale-session sweeper alongside it.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.log.Info("relay server listening", map[string]any{"addr": addr})

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	go s.sweepLoop(ctx)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return nil
		}
		go s.dispatch(ctx, conn)
	}
}

// dispatch reads the session header line and routes to the server-role or
// client-role handler.
func (s *Server) dispatch(ctx context.Context, conn net.Conn) {
	r := bufio.NewReader(conn)
	_ = conn.SetReadDeadline(time.Now().Add(dispatchTimeout))
	line, err := r.ReadString('\n')
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil {
		_ = conn.Close()
		return
	}
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) != 3 || fields[0] != "SESSION" || fields[1] == "" {
		_, _ = io.WriteString(conn, "ERROR invalid session header\n")
		_ = conn.Close()
		return
	}

	id, role := fields[1], fields[2]
	leg := &legEnd{conn: conn, r: r}

	switch role {
	case "server":
		s.handleServer(ctx, id, leg)
	case "client":
		s.handleClient(ctx, id, leg)
	default:
		_, _ = io.WriteString(conn, "ERROR invalid role\n")
		_ = conn.Close()
	}
}

func (s *Server) handleServer(ctx context.Context, id string, leg *legEnd) {
	s.mu.Lock()
	if old, ok := s.sessions[id]; ok {
		old.superseded = true
		if old.server != nil {
			_ = old.server.conn.Close()
		}
		if old.client != nil {
			_ = old.client.conn.Close()
		}
		old.signalPaired()
	} else if s.MaxSessions > 0 && len(s.sessions) >= s.MaxSessions {
		s.mu.Unlock()
		_, _ = io.WriteString(leg.conn, "ERROR max sessions reached\n")
		_ = leg.conn.Close()
		return
	}

	rec := &record{id: id, server: leg, registeredAt: time.Now(), paired: make(chan struct{})}
	s.sessions[id] = rec
	s.mu.Unlock()

	if _, err := io.WriteString(leg.conn, "REGISTERED\n"); err != nil {
		s.removeIfCurrent(id, rec)
		_ = leg.conn.Close()
		return
	}

	select {
	case <-ctx.Done():
		s.removeIfCurrent(id, rec)
		_ = leg.conn.Close()
		return
	case <-rec.paired:
	}

	s.mu.Lock()
	current, ok := s.sessions[id]
	stillCurrent := ok && current == rec && !rec.superseded
	s.mu.Unlock()
	if !stillCurrent {
		_ = leg.conn.Close()
		return
	}

	if rec.client == nil {
		s.removeIfCurrent(id, rec)
		_ = leg.conn.Close()
		return
	}

	if _, err := io.WriteString(leg.conn, "PAIRED\n"); err != nil {
		s.removeIfCurrent(id, rec)
		_ = leg.conn.Close()
		_ = rec.client.conn.Close()
		return
	}

	s.pumpBoth(rec)
	s.removeIfCurrent(id, rec)
	_ = leg.conn.Close()
	_ = rec.client.conn.Close()
}

func (s *Server) handleClient(ctx context.Context, id string, leg *legEnd) {
	s.mu.Lock()
	rec, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		_, _ = io.WriteString(leg.conn, "ERROR unknown session\n")
		_ = leg.conn.Close()
		return
	}
	rec.client = leg
	s.mu.Unlock()

	if _, err := io.WriteString(leg.conn, "CONNECTED\n"); err != nil {
		_ = leg.conn.Close()
		return
	}
	rec.signalPaired()

	<-ctx.Done()
}

// pumpBoth runs the two byte-copy loops until either side closes.
func (s *Server) pumpBoth(rec *record) {
	done := make(chan struct{}, 2)
	go func() {
		_, _ = io.Copy(rec.client.conn, rec.server.r)
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(rec.server.conn, rec.client.r)
		done <- struct{}{}
	}()
	<-done
}

func (s *Server) removeIfCurrent(id string, rec *record) {
	s.mu.Lock()
	if current, ok := s.sessions[id]; ok && current == rec {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
}

func (s *Server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepStale()
		}
	}
}

func (s *Server) sweepStale() {
	threshold := s.StaleAge
	if threshold <= 0 {
		threshold = defaultStaleAge
	}

	var stale []*record
	s.mu.Lock()
	now := time.Now()
	for id, rec := range s.sessions {
		if now.Sub(rec.registeredAt) > threshold {
			stale = append(stale, rec)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, rec := range stale {
		if rec.server != nil {
			_ = rec.server.conn.Close()
		}
		if rec.client != nil {
			_ = rec.client.conn.Close()
		}
		s.log.Info("swept stale relay session", map[string]any{"session": rec.id})
	}
}
