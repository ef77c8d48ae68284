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

package pairing

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// RenderTerminal renders payload as a QR code string of half-block
// characters, which the pair subcommand prints to the terminal instead
// of writing a file.
func RenderTerminal(payload Payload) (string, error) {
	body, err := MarshalIndent(payload)
	if err != nil {
		return "", fmt.Errorf("marshal pairing payload: %w", err)
	}

	qr, err := qrcode.New(string(body), qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("encode qr code: %w", err)
	}
	return qr.ToSmallString(false), nil
}

// RenderPNG encodes payload as a QR code PNG, used when --pair is asked
// to write an image instead of a terminal rendering.
func RenderPNG(payload Payload, size int) ([]byte, error) {
	body, err := MarshalIndent(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal pairing payload: %w", err)
	}
	return qrcode.Encode(string(body), qrcode.Medium, size)
}
