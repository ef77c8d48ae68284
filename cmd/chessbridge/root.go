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
	"github.com/vidar808/chess-uci-bridge/internal/logging"
)

const binaryName = "chessbridge"

// globalFlags holds the persistent flags every subcommand shares.
type globalFlags struct {
	configPath string
	logLevel   string
	logJSON    bool
	logFile    string
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	serve := newServeCommand(flags)

	root := &cobra.Command{
		Use:     binaryName,
		Short:   "Bridge local UCI chess engines to remote TCP clients",
		Version: "0.1.0",
		RunE:    serve.RunE,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", config.DefaultPath(binaryName), "path to the config file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	root.PersistentFlags().BoolVar(&flags.logJSON, "log-json", false, "emit logs as JSON instead of text")
	root.PersistentFlags().StringVar(&flags.logFile, "log-file", "", "optional additional file to append logs to")

	root.AddCommand(
		serve,
		newRelayServerCommand(flags),
		newStopCommand(flags),
		newAddEngineCommand(flags),
		newPairCommand(flags),
		newConnectionFileCommand(flags),
	)
	return root
}

func (f *globalFlags) logger() logging.Logger {
	return logging.New(logging.Options{
		Level:      f.logLevel,
		JSON:       f.logJSON,
		Color:      f.logFile == "" && !f.logJSON,
		FilePath:   f.logFile,
		EnableFile: f.logFile != "",
	})
}

func (f *globalFlags) loadConfig() (*config.Loader, *config.Config, error) {
	loader, err := config.NewLoader(f.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("building config loader: %w", err)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config %s: %w", f.configPath, err)
	}
	if err := config.EnsureServerSecret(loader, cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring server secret: %w", err)
	}
	return loader, cfg, nil
}
