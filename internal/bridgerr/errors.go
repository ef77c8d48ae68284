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

// Package bridgerr provides the error taxonomy used across the bridge: a
// numeric code, an optional parent chain, and compatibility with the
// standard errors.Is/errors.As machinery.
package bridgerr

import (
	"errors"
	"fmt"
)

// Code classifies an Error by the subsystem and failure kind it came from.
type Code uint16

const (
	CodeUnknown Code = iota
	CodeConfigInvalid
	CodeTrustRejected
	CodeAuthFailed
	CodeEngineSpawnFailed
	CodeEnginePreUciTimeout
	CodeClientIOFailure
	CodeEngineIOFailure
	CodeListenerBindFailed
	CodeRelayDialFailed
	CodeFirewallFailed
	CodeUpnpFailed
	CodeRelaySessionUnknown
	CodeRelayMaxSessions
)

func (c Code) String() string {
	switch c {
	case CodeConfigInvalid:
		return "config_invalid"
	case CodeTrustRejected:
		return "trust_rejected"
	case CodeAuthFailed:
		return "auth_failed"
	case CodeEngineSpawnFailed:
		return "engine_spawn_failed"
	case CodeEnginePreUciTimeout:
		return "engine_pre_uci_timeout"
	case CodeClientIOFailure:
		return "client_io_failure"
	case CodeEngineIOFailure:
		return "engine_io_failure"
	case CodeListenerBindFailed:
		return "listener_bind_failed"
	case CodeRelayDialFailed:
		return "relay_dial_failed"
	case CodeFirewallFailed:
		return "firewall_failed"
	case CodeUpnpFailed:
		return "upnp_failed"
	case CodeRelaySessionUnknown:
		return "relay_session_unknown"
	case CodeRelayMaxSessions:
		return "relay_max_sessions"
	default:
		return "unknown"
	}
}

// Error extends the standard error with a Code and an optional parent chain.
type Error interface {
	error
	Code() Code
	Unwrap() error
}

type bridgeErr struct {
	code   Code
	msg    string
	parent error
}

func (e *bridgeErr) Error() string {
	if e.parent != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.msg, e.parent)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.msg)
}

func (e *bridgeErr) Code() Code {
	return e.code
}

func (e *bridgeErr) Unwrap() error {
	return e.parent
}

// New builds an Error with the given code, message and optional parent.
func New(code Code, msg string, parent error) Error {
	return &bridgeErr{code: code, msg: msg, parent: parent}
}

// Newf builds an Error with a formatted message.
func Newf(code Code, parent error, pattern string, args ...any) Error {
	return &bridgeErr{code: code, msg: fmt.Sprintf(pattern, args...), parent: parent}
}

// Is reports whether e is a bridgerr.Error.
func Is(e error) bool {
	var b Error
	return errors.As(e, &b)
}

// HasCode reports whether e is a bridgerr.Error carrying the given code,
// walking the parent chain.
func HasCode(e error, code Code) bool {
	for e != nil {
		var b Error
		if !errors.As(e, &b) {
			return false
		}
		if b.Code() == code {
			return true
		}
		e = errors.Unwrap(e)
	}
	return false
}
