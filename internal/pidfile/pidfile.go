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

// Package pidfile guards one bridge process per PID file path using an
// flock-based advisory lock, and provides the --stop subcommand's
// terminate-then-kill sequence.
package pidfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/shirou/gopsutil/v3/process"
)

// Handle owns an acquired PID file lock for the process lifetime.
type Handle struct {
	path string
	lock *flock.Flock
}

// Acquire takes an exclusive lock on path, refusing if a live process
// already owns it, and removing a stale file (owner no longer running)
// before re-acquiring.
func Acquire(path string) (*Handle, error) {
	if pid, err := readPID(path); err == nil {
		if alive, _ := process.PidExists(pid); alive {
			return nil, fmt.Errorf("pid file %s: process %d is still running", path, pid)
		}
		_ = os.Remove(path)
	}

	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking pid file %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("pid file %s: already locked by another process", path)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("writing pid file %s: %w", path, err)
	}

	return &Handle{path: path, lock: lock}, nil
}

// Release unlocks and removes the PID file.
func (h *Handle) Release() error {
	_ = h.lock.Unlock()
	return os.Remove(h.path)
}

func readPID(path string) (int32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, err
	}
	return int32(pid), nil
}

// Stop reads the PID file at path and asks the owning process to shut
// down: interrupt signal, then a five-second grace period, then SIGKILL.
func Stop(path string) error {
	pid, err := readPID(path)
	if err != nil {
		return fmt.Errorf("reading pid file %s: %w", path, err)
	}

	proc, err := os.FindProcess(int(pid))
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}
	if err := proc.Signal(os.Interrupt); err != nil {
		return fmt.Errorf("signaling process %d: %w", pid, err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		alive, _ := process.PidExists(pid)
		if !alive {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return proc.Kill()
}
