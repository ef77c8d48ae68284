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

package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vidar808/chess-uci-bridge/internal/engine"
	"github.com/vidar808/chess-uci-bridge/internal/listener"
	"github.com/vidar808/chess-uci-bridge/internal/pairing"
	"github.com/vidar808/chess-uci-bridge/internal/relay"
)

// newPairCommand prints (or writes) a QR code an operator can scan with
// a remote client, without starting the bridge itself.
func newPairCommand(flags *globalFlags) *cobra.Command {
	var (
		host     string
		pngPath  string
		pngSize  int
		certPath string
	)

	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Print a pairing QR code for a remote client",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := buildPairingPayload(flags, host, certPath)
			if err != nil {
				return err
			}

			if pngPath != "" {
				png, err := pairing.RenderPNG(payload, pngSize)
				if err != nil {
					return fmt.Errorf("rendering qr png: %w", err)
				}
				if err := os.WriteFile(pngPath, png, 0o644); err != nil {
					return fmt.Errorf("writing %s: %w", pngPath, err)
				}
				color.Green("wrote %s", pngPath)
				return nil
			}

			art, err := pairing.RenderTerminal(payload)
			if err != nil {
				return fmt.Errorf("rendering qr code: %w", err)
			}
			fmt.Println(art)
			color.Cyan("scan the code above with the remote client")
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "host/IP the remote client should connect to (required)")
	cmd.Flags().StringVar(&pngPath, "png", "", "write the QR code as a PNG instead of printing it")
	cmd.Flags().IntVar(&pngSize, "png-size", 256, "PNG side length in pixels")
	cmd.Flags().StringVar(&certPath, "cert", "", "optional TLS certificate (DER) to embed a fingerprint for")
	_ = cmd.MarkFlagRequired("host")
	return cmd
}

// newConnectionFileCommand writes the full connection-file JSON document,
// the on-disk counterpart of the QR payload.
func newConnectionFileCommand(flags *globalFlags) *cobra.Command {
	var (
		host     string
		out      string
		certPath string
	)

	cmd := &cobra.Command{
		Use:   "connection-file",
		Short: "Write a connection file a remote client can import",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := buildPairingPayload(flags, host, certPath)
			if err != nil {
				return err
			}

			file := pairing.ConnectionFile{
				Payload:    payload,
				Version:    "1",
				ServerName: host,
				Security: pairing.ConnectionSecurity{
					AuthMethod:  payload.AuthMethod,
					TLS:         payload.TLS,
					Fingerprint: payload.Fingerprint,
				},
			}

			body, err := pairing.MarshalIndent(file)
			if err != nil {
				return fmt.Errorf("marshaling connection file: %w", err)
			}
			if err := os.WriteFile(out, body, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", out, err)
			}
			fmt.Printf("wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "host/IP the remote client should connect to (required)")
	cmd.Flags().StringVar(&out, "out", "connection.json", "output file path")
	cmd.Flags().StringVar(&certPath, "cert", "", "optional TLS certificate (DER) to embed a fingerprint for")
	_ = cmd.MarkFlagRequired("host")
	return cmd
}

func buildPairingPayload(flags *globalFlags, host, certPath string) (pairing.Payload, error) {
	_, cfg, err := flags.loadConfig()
	if err != nil {
		return pairing.Payload{}, err
	}

	reg, err := engine.NewRegistry(cfg)
	if err != nil {
		return pairing.Payload{}, fmt.Errorf("building engine registry: %w", err)
	}
	if err := listener.ResolvePorts(reg); err != nil {
		return pairing.Payload{}, fmt.Errorf("resolving engine ports: %w", err)
	}

	var certDER []byte
	if certPath != "" {
		certDER, err = os.ReadFile(certPath)
		if err != nil {
			return pairing.Payload{}, fmt.Errorf("reading %s: %w", certPath, err)
		}
	}

	relaySessionOf := func(name string) string {
		if cfg.RelayServerURL == "" {
			return ""
		}
		return relay.SessionID(cfg.ServerSecret, name)
	}

	return pairing.Build(cfg, reg, host, certDER, relaySessionOf), nil
}
