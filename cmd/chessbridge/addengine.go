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

	"github.com/spf13/cobra"

	"github.com/vidar808/chess-uci-bridge/internal/config"
)

// newAddEngineCommand registers a new engine entry in the config file
// without requiring the operator to hand-edit it.
func newAddEngineCommand(flags *globalFlags) *cobra.Command {
	var (
		name string
		path string
		port int
	)

	cmd := &cobra.Command{
		Use:   "add-engine",
		Short: "Add an engine entry to the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" || path == "" {
				return fmt.Errorf("--name and --path are required")
			}

			loader, cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}

			if cfg.Engines == nil {
				cfg.Engines = map[string]config.EngineConfig{}
			}
			if _, exists := cfg.Engines[name]; exists {
				return fmt.Errorf("engine %q already exists", name)
			}
			cfg.Engines[name] = config.EngineConfig{Name: name, Path: path, Port: port}

			if err := loader.Save(cfg); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}
			fmt.Printf("added engine %q at %s (port %d)\n", name, path, port)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "engine name")
	cmd.Flags().StringVar(&path, "path", "", "path to the engine executable")
	cmd.Flags().IntVar(&port, "port", 0, "TCP port for this engine (1-65535; config validation rejects 0)")
	return cmd
}
