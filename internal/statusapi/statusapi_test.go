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

package statusapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/vidar808/chess-uci-bridge/internal/logging"
	"github.com/vidar808/chess-uci-bridge/internal/statusapi"
)

func waitForListener(t *testing.T, url string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if resp, err := http.Get(url); err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("server at %s never became reachable", url)
}

func TestHealthzAndStatusReturnRequestIDs(t *testing.T) {
	const addr = "127.0.0.1:19345"
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := logging.New(logging.Options{Level: "error"})
	errCh := make(chan error, 1)
	go func() { errCh <- statusapi.Run(ctx, addr, nil, nil, log) }()

	waitForListener(t, "http://"+addr+"/healthz")

	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding healthz body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %+v", body)
	}
	if id, _ := body["request_id"].(string); id == "" {
		t.Fatal("expected a non-empty request_id")
	}

	statResp, err := http.Get("http://" + addr + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer statResp.Body.Close()
	var statBody map[string]any
	if err := json.NewDecoder(statResp.Body).Decode(&statBody); err != nil {
		t.Fatalf("decoding status body: %v", err)
	}
	if statBody["request_id"] == "" {
		t.Fatal("expected /status to also carry a request_id")
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("expected a clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestMetricsExposesPrometheusFormat(t *testing.T) {
	const addr = "127.0.0.1:19346"
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := logging.New(logging.Options{Level: "error"})
	go func() { _ = statusapi.Run(ctx, addr, nil, nil, log) }()
	waitForListener(t, "http://"+addr+"/healthz")

	statusapi.RecordUntrustedAttempt("203.0.113.5")

	resp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	buf := make([]byte, 64*1024)
	n, _ := resp.Body.Read(buf)
	if !strings.Contains(string(buf[:n]), "chessbridge_untrusted_attempts_total") {
		t.Fatalf("expected the untrusted-attempts metric in the exposition, got %q", string(buf[:n]))
	}
}
