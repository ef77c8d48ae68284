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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vidar808/chess-uci-bridge/internal/relayserver"
)

// newRelayServerCommand runs the standalone rendezvous server that pairs
// a bridge's outbound relay leg with a remote client's relay leg, for
// operators running their own relay instead of a third party's.
func newRelayServerCommand(flags *globalFlags) *cobra.Command {
	var (
		listen      string
		maxSessions int
	)

	cmd := &cobra.Command{
		Use:   "relay-server",
		Short: "Run a relay rendezvous server",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := flags.logger()
			srv := relayserver.New(log, maxSessions)

			ctx, cancel := context.WithCancel(context.Background())
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sig
				cancel()
			}()

			if err := srv.Run(ctx, listen); err != nil {
				return fmt.Errorf("running relay server: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":9997", "address to listen on for relay legs")
	cmd.Flags().IntVar(&maxSessions, "max-sessions", 1000, "maximum concurrent registered sessions, paired or not (0 or less means unlimited)")
	return cmd
}
