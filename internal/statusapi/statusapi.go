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

// Package statusapi exposes an optional local-only HTTP surface
// (/healthz, /status, /metrics) for operators and monitoring, entirely
// outside the UCI wire protocol the bridge proxies.
package statusapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vidar808/chess-uci-bridge/internal/engine"
	"github.com/vidar808/chess-uci-bridge/internal/logging"
	"github.com/vidar808/chess-uci-bridge/internal/trust"
)

var (
	untrustedAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chessbridge_untrusted_attempts_total",
		Help: "Connection attempts recorded from addresses that failed the trust check.",
	}, []string{"addr"})

	activeBridges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chessbridge_active_bridges",
		Help: "Number of client bridges currently running.",
	})
)

// RecordUntrustedAttempt increments the untrusted-attempt counter for
// addr; the bridge calls this alongside the trust filter's own
// bookkeeping.
func RecordUntrustedAttempt(addr string) {
	untrustedAttempts.WithLabelValues(addr).Inc()
}

// ActiveBridges exposes the active-bridge gauge so the bridge package can
// track concurrency without this package depending on it.
func ActiveBridges() prometheus.Gauge {
	return activeBridges
}

// requestID stamps every request with a fresh UUID so a line in the
// access log can be correlated with the JSON body returned to the caller.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("request_id", uuid.NewString())
		c.Next()
	}
}

// Run starts the gin HTTP server and blocks until ctx is cancelled.
func Run(ctx context.Context, listen string, sessions *engine.SessionManager, trustFilter *trust.Filter, log logging.Logger) error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "request_id": c.GetString("request_id")})
	})

	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"time":       time.Now().UTC().Format(time.RFC3339),
			"request_id": c.GetString("request_id"),
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{Addr: listen, Handler: r}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Error("status api server error", map[string]any{"error": err.Error()})
		}
		return err
	}
}
