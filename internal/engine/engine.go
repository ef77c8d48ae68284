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

// Package engine owns the UCI subprocess lifecycle: descriptors resolved
// from configuration, a registry of known engines, and a session manager
// that keeps warm processes alive across client disconnects.
package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vidar808/chess-uci-bridge/internal/config"
)

// Descriptor is one engine resolved from config.EngineConfig: a name, an
// executable path, the port it should bind (rewritten by
// listener.ResolvePorts when the configured one is taken), and its
// option-override policy.
type Descriptor struct {
	Name            string
	Path            string
	Dir             string
	Port            int
	Overrides       map[string]config.Override
	GlobalOverrides map[string]config.Override
}

// ResolveOverride applies the engine-local override first, falling back to
// the global override, and finally to forwarding the client's value
// unmodified when neither entry exists.
func (d Descriptor) ResolveOverride(optionName string) (config.Override, bool) {
	if o, ok := d.Overrides[optionName]; ok {
		return o, true
	}
	if o, ok := d.GlobalOverrides[optionName]; ok {
		return o, true
	}
	return config.Override{}, false
}

// Registry holds every engine descriptor known to the process, keyed by
// name, built once from a loaded Config.
type Registry struct {
	byName  map[string]Descriptor
	order   []string
	Default string
}

// NewRegistry builds a Registry from cfg. Returns an error if any engine's
// path does not resolve to an existing file (config.Validate should have
// already caught this, but the registry does not trust that it ran).
func NewRegistry(cfg *config.Config) (*Registry, error) {
	r := &Registry{byName: make(map[string]Descriptor, len(cfg.Engines)), Default: cfg.DefaultEngine}
	for name, e := range cfg.Engines {
		if _, err := os.Stat(e.Path); err != nil {
			return nil, fmt.Errorf("engine %q: %w", name, err)
		}
		r.byName[name] = Descriptor{
			Name:            name,
			Path:            e.Path,
			Dir:             filepath.Dir(e.Path),
			Port:            e.Port,
			Overrides:       e.Overrides,
			GlobalOverrides: cfg.GlobalOverrides,
		}
		r.order = append(r.order, name)
	}
	if r.Default == "" && len(r.order) == 1 {
		r.Default = r.order[0]
	}
	return r, nil
}

// Get returns the named descriptor.
func (r *Registry) Get(name string) (Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Names returns every registered engine name, in the order the config map
// was iterated at startup. That order is recorded once by NewRegistry, so
// it is stable for the lifetime of the process even though Go map
// iteration order is itself random.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// SetPort rewrites the resolved listen port for an engine, used by the
// listener set after sequential bind probing picks concrete ports.
func (r *Registry) SetPort(name string, port int) {
	d := r.byName[name]
	d.Port = port
	r.byName[name] = d
}
