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
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Process wraps one running UCI engine subprocess: its stdin writer, a
// buffered stdout reader, and the liveness/termination primitives the
// session manager and client bridge both need.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	Stdout *bufio.Reader

	mu      sync.Mutex
	done    bool
	exitErr error
}

// Spawn starts the engine binary at d.Path with its working directory set
// to d.Dir (matching the UCI convention that engines resolve book/tablebase
// paths relative to their own executable), merging stderr into stdout the
// way a UCI engine's diagnostic chatter is ordinarily inspected.
func Spawn(d Descriptor) (*Process, error) {
	cmd := exec.Command(d.Path)
	cmd.Dir = d.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("engine %q: stdin pipe: %w", d.Name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("engine %q: stdout pipe: %w", d.Name, err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("engine %q: start: %w", d.Name, err)
	}

	p := &Process{cmd: cmd, stdin: stdin, Stdout: bufio.NewReader(stdout)}
	go p.wait()
	return p, nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.done = true
	p.exitErr = err
	p.mu.Unlock()
}

// Alive reports whether the subprocess has not yet exited.
func (p *Process) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.done
}

// Write sends a single UCI command line to the engine's stdin, appending
// the trailing newline the protocol requires.
func (p *Process) Write(line string) error {
	_, err := p.stdin.Write([]byte(line + "\n"))
	return err
}

// Terminate sends "quit" (the polite UCI shutdown command), then SIGTERM,
// waiting up to grace for the process to exit before escalating to
// SIGKILL.
func (p *Process) Terminate(grace time.Duration) {
	_ = p.Write("quit")
	_ = p.cmd.Process.Signal(syscall.SIGTERM)

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if !p.Alive() {
			return
		}
		select {
		case <-ctx.Done():
			_ = p.cmd.Process.Kill()
			return
		case <-ticker.C:
		}
	}
}

// PID returns the subprocess's process id, used by ResidentMemoryBytes.
func (p *Process) PID() int32 {
	return int32(p.cmd.Process.Pid)
}

// ResidentMemoryBytes reports the subprocess's current RSS via gopsutil,
// used by the status endpoint; returns 0 if the probe fails (process
// already gone, or unsupported platform).
func (p *Process) ResidentMemoryBytes() uint64 {
	proc, err := process.NewProcess(p.PID())
	if err != nil {
		return 0
	}
	info, err := proc.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return info.RSS
}
