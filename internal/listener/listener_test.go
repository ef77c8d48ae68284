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
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/vidar808/chess-uci-bridge/internal/config"
	"github.com/vidar808/chess-uci-bridge/internal/engine"
)

func testRegistry(t *testing.T, def string, names ...string) *engine.Registry {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{Engines: map[string]config.EngineConfig{}, DefaultEngine: def}
	for i, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
			t.Fatalf("writing fake engine: %v", err)
		}
		cfg.Engines[name] = config.EngineConfig{Path: path, Port: 9000 + i}
	}
	reg, err := engine.NewRegistry(cfg)
	if err != nil {
		t.Fatalf("building registry: %v", err)
	}
	return reg
}

func TestResolvePortsAssignsDistinctFreePorts(t *testing.T) {
	reg := testRegistry(t, "", "alpha", "bravo")

	// force a collision: both engines configured for the same port.
	reg.SetPort("alpha", 19220)
	reg.SetPort("bravo", 19220)

	if err := ResolvePorts(reg); err != nil {
		t.Fatalf("ResolvePorts: %v", err)
	}

	a, _ := reg.Get("alpha")
	b, _ := reg.Get("bravo")
	if a.Port == b.Port {
		t.Fatalf("expected distinct resolved ports, both got %d", a.Port)
	}
	if a.Port < 19220 || b.Port < 19220 {
		t.Fatalf("expected resolved ports at or after the requested base, got %d and %d", a.Port, b.Port)
	}
}

func TestNegotiateEngineFallsThroughToDefaultWithoutEngineList(t *testing.T) {
	reg := testRegistry(t, "alpha", "alpha", "bravo")
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan struct{})
	var name string
	var ok bool
	go func() {
		name, ok = negotiateEngine(bufio.NewReader(server), server, reg, reg.Default)
		close(done)
	}()

	if _, err := client.Write([]byte("uci\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	<-done
	if !ok || name != "alpha" {
		t.Fatalf("expected fallthrough to default engine alpha, got %q ok=%v", name, ok)
	}
}

func TestNegotiateEngineListAndSelect(t *testing.T) {
	reg := testRegistry(t, "", "alpha", "bravo")
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan struct{})
	var name string
	var ok bool
	go func() {
		name, ok = negotiateEngine(bufio.NewReader(server), server, reg, reg.Default)
		close(done)
	}()

	clientReader := bufio.NewReader(client)
	if _, err := client.Write([]byte("ENGINE_LIST\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	var lines []string
	for {
		line, err := clientReader.ReadString('\n')
		if err != nil {
			t.Fatalf("reading engine list: %v", err)
		}
		if line == "ENGINES_END\n" {
			break
		}
		lines = append(lines, line)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 ENGINE lines, got %d: %v", len(lines), lines)
	}

	if _, err := client.Write([]byte("SELECT_ENGINE bravo\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	reply, err := clientReader.ReadString('\n')
	if err != nil {
		t.Fatalf("reading selection reply: %v", err)
	}
	if reply != "ENGINE_SELECTED\n" {
		t.Fatalf("expected ENGINE_SELECTED, got %q", reply)
	}

	<-done
	if !ok || name != "bravo" {
		t.Fatalf("expected bravo selected, got %q ok=%v", name, ok)
	}
}

func TestNegotiateEngineRejectsUnknownSelection(t *testing.T) {
	reg := testRegistry(t, "", "alpha")
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan struct{})
	var ok bool
	go func() {
		_, ok = negotiateEngine(bufio.NewReader(server), server, reg, reg.Default)
		close(done)
	}()

	clientReader := bufio.NewReader(client)
	if _, err := client.Write([]byte("ENGINE_LIST\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	for {
		line, err := clientReader.ReadString('\n')
		if err != nil {
			t.Fatalf("reading engine list: %v", err)
		}
		if line == "ENGINES_END\n" {
			break
		}
	}

	if _, err := client.Write([]byte("SELECT_ENGINE ghost\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	reply, err := clientReader.ReadString('\n')
	if err != nil {
		t.Fatalf("reading error reply: %v", err)
	}
	if reply != "ENGINE_ERROR unknown engine\n" {
		t.Fatalf("expected an ENGINE_ERROR reply, got %q", reply)
	}

	<-done
	if ok {
		t.Fatal("expected negotiation to fail for an unknown engine selection")
	}
}
