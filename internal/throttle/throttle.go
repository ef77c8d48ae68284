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

// Package throttle elides same-depth `info` lines from engine output
// within a time window.
package throttle

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// Throttler holds the single-slot pending state for one bridge's engine
// output stream. Not shared across bridges.
type Throttler struct {
	mu           sync.Mutex
	intervalMs   int64
	lastForward  int64 // unix millis
	lastDepth    int
	haveDepth    bool
	pending      string
	havePending  bool
	now          func() int64
}

// New builds a Throttler with the given window in milliseconds. intervalMs
// <= 0 disables throttling entirely (rule 1).
func New(intervalMs int) *Throttler {
	return &Throttler{
		intervalMs: int64(intervalMs),
		now:        func() int64 { return time.Now().UnixMilli() },
	}
}

// Decision is the throttler's verdict for one line.
type Decision struct {
	Forward bool
	Line    string // the line to forward, when Forward is true
}

// Process applies the elision rules in order and returns whether line
// should be forwarded now.
func (t *Throttler) Process(line string) Decision {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.intervalMs <= 0 {
		return Decision{Forward: true, Line: line}
	}

	if !strings.HasPrefix(line, "info ") {
		t.havePending = false
		t.pending = ""
		return Decision{Forward: true, Line: line}
	}

	if depth, ok := extractDepth(line); ok && (!t.haveDepth || depth != t.lastDepth) {
		t.lastDepth = depth
		t.haveDepth = true
		t.lastForward = t.now()
		t.havePending = false
		t.pending = ""
		return Decision{Forward: true, Line: line}
	}

	if t.now()-t.lastForward >= t.intervalMs {
		t.lastForward = t.now()
		t.havePending = false
		t.pending = ""
		return Decision{Forward: true, Line: line}
	}

	t.pending = line
	t.havePending = true
	return Decision{Forward: false}
}

// Pending returns the single deferred line, if any (used by callers that
// want to flush it, e.g. on bridge shutdown).
func (t *Throttler) Pending() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending, t.havePending
}

// extractDepth parses the integer token immediately following the literal
// "depth" keyword. Only the first such integer is considered; UCI info
// lines may also carry "seldepth", which this deliberately ignores.
func extractDepth(line string) (int, bool) {
	fields := strings.Fields(line)
	for i, f := range fields {
		if f == "depth" && i+1 < len(fields) {
			v, err := strconv.Atoi(fields[i+1])
			if err != nil {
				return 0, false
			}
			return v, true
		}
	}
	return 0, false
}
