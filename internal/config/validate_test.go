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

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vidar808/chess-uci-bridge/internal/bridgerr"
	"github.com/vidar808/chess-uci-bridge/internal/config"
)

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	enginePath := filepath.Join(dir, "stockfish")
	if err := os.WriteFile(enginePath, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("writing fake engine: %v", err)
	}

	return &config.Config{
		ListenAddress:  "0.0.0.0",
		MaxConnections: 10,
		Engines: map[string]config.EngineConfig{
			"stockfish": {Path: enginePath, Port: 9001},
		},
	}
}

func TestValidateAcceptsAMinimalValidConfig(t *testing.T) {
	if err := config.Validate(validConfig(t)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateRejectsMissingListenAddress(t *testing.T) {
	cfg := validConfig(t)
	cfg.ListenAddress = ""
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected an error for a missing listen_address")
	}
	if !bridgerr.HasCode(err, bridgerr.CodeConfigInvalid) {
		t.Fatalf("expected a CodeConfigInvalid bridge error, got %v", err)
	}
}

func TestValidateRejectsPortConflict(t *testing.T) {
	cfg := validConfig(t)
	enginePath := cfg.Engines["stockfish"].Path
	cfg.Engines["lc0"] = config.EngineConfig{Path: enginePath, Port: 9001}

	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "port conflict") {
		t.Fatalf("expected a port conflict error, got %v", err)
	}
}

func TestValidateRejectsNonExecutableEnginePath(t *testing.T) {
	cfg := validConfig(t)
	dir := t.TempDir()
	notExecutable := filepath.Join(dir, "notexec")
	if err := os.WriteFile(notExecutable, []byte("x"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	cfg.Engines["lc0"] = config.EngineConfig{Path: notExecutable, Port: 9100}

	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "not executable") {
		t.Fatalf("expected a not-executable error, got %v", err)
	}
}

func TestValidateRejectsInvalidTrustedAddressAndNetwork(t *testing.T) {
	cfg := validConfig(t)
	cfg.TrustedAddresses = []string{"not-an-ip"}
	cfg.TrustedNetworks = []string{"not-a-cidr"}

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "invalid IP") || !strings.Contains(err.Error(), "invalid network") {
		t.Fatalf("expected both the invalid IP and invalid network messages, got %v", err)
	}
}

func TestValidateRejectsAuthTokenMethodWithoutToken(t *testing.T) {
	cfg := validConfig(t)
	cfg.AuthMethodName = config.AuthToken

	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "requires auth_token") {
		t.Fatalf("expected an auth_token requirement error, got %v", err)
	}
}

func TestValidateRejectsUnknownDefaultEngine(t *testing.T) {
	cfg := validConfig(t)
	cfg.DefaultEngine = "ghost"

	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "default_engine") {
		t.Fatalf("expected a default_engine error, got %v", err)
	}
}

func TestValidateAggregatesMultipleViolations(t *testing.T) {
	cfg := validConfig(t)
	cfg.ListenAddress = ""
	cfg.TrustedAddresses = []string{"garbage"}

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "listen_address") || !strings.Contains(err.Error(), "invalid IP") {
		t.Fatalf("expected both violations aggregated in one error, got %v", err)
	}
}
