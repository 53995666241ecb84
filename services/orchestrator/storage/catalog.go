// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/CompanionHaven/services/orchestrator/datatypes"
)

//go:embed companions.yaml
var defaultCatalog []byte

// catalogFile is the YAML document layout.
type catalogFile struct {
	Companions []datatypes.CompanionProfile `yaml:"companions"`
}

// ParseCatalog decodes and validates a YAML catalogue.
//
// # Outputs
//
//   - map[string]datatypes.CompanionProfile: Profiles keyed by id.
//   - error: Non-nil on invalid YAML, an invalid profile, or a duplicate id.
func ParseCatalog(data []byte) (map[string]datatypes.CompanionProfile, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalogue: %w", err)
	}

	byID := make(map[string]datatypes.CompanionProfile, len(file.Companions))
	for i := range file.Companions {
		p := file.Companions[i]
		p.ID = strings.TrimSpace(p.ID)
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("companion %d (%q): %w", i, p.ID, err)
		}
		if _, dup := byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate companion id %q", p.ID)
		}
		byID[p.ID] = p
	}
	return byID, nil
}

// =============================================================================
// Catalog
// =============================================================================

// Catalog is a CompanionStore backed by a YAML file.
//
// # Description
//
// Loads the file at construction, or the embedded default catalogue when
// no path is given. Watch keeps the catalogue in sync with the file.
// Concurrent reloads are collapsed into one read. A reload that fails to
// parse keeps the previous catalogue.
//
// # Thread Safety
//
// Safe for concurrent use.
type Catalog struct {
	path string

	mu   sync.RWMutex
	byID map[string]datatypes.CompanionProfile

	flight singleflight.Group
}

// NewCatalog loads the catalogue at path. An empty path loads the embedded
// default.
func NewCatalog(path string) (*Catalog, error) {
	c := &Catalog{path: path}
	if err := c.Reload(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// NewCatalogFromProfiles builds an in-memory catalogue. Watch and Reload are
// no-ops on it.
func NewCatalogFromProfiles(profiles ...datatypes.CompanionProfile) *Catalog {
	byID := make(map[string]datatypes.CompanionProfile, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}
	return &Catalog{path: "-", byID: byID}
}

// Get implements CompanionStore.
func (c *Catalog) Get(ctx context.Context, id string) (*datatypes.CompanionProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	p, ok := c.byID[id]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCompanionNotFound, id)
	}
	return copyProfile(p), nil
}

// List returns every profile sorted by id.
func (c *Catalog) List() []datatypes.CompanionProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]datatypes.CompanionProfile, 0, len(c.byID))
	for _, p := range c.byID {
		out = append(out, *copyProfile(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of companions.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// Reload re-reads the catalogue source.
func (c *Catalog) Reload(ctx context.Context) error {
	if c.path == "-" {
		return nil
	}
	_, err, _ := c.flight.Do("reload", func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := c.read()
		if err != nil {
			return nil, err
		}
		byID, err := ParseCatalog(data)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.byID = byID
		c.mu.Unlock()

		slog.Info("Companion catalogue loaded",
			"source", c.source(),
			"companions", len(byID))
		return nil, nil
	})
	return err
}

func (c *Catalog) read() ([]byte, error) {
	if c.path == "" {
		return defaultCatalog, nil
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read catalogue %s: %w", c.path, err)
	}
	return data, nil
}

func (c *Catalog) source() string {
	if c.path == "" {
		return "embedded"
	}
	return c.path
}

// Watch reloads the catalogue whenever its file changes, until ctx ends.
//
// # Description
//
// Watches the parent directory rather than the file, so editors that
// replace the file by rename are still seen. Returns nil immediately for
// the embedded or in-memory catalogue.
//
// # Outputs
//
//   - error: Non-nil only if the watcher cannot be started.
func (c *Catalog) Watch(ctx context.Context) error {
	if c.path == "" || c.path == "-" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create catalogue watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(c.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(c.path)

	slog.Debug("Watching companion catalogue", "path", target)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := c.Reload(ctx); err != nil {
				slog.Warn("Companion catalogue reload failed, keeping previous",
					"path", target,
					"error", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Companion catalogue watcher error", "error", err)

		case <-ctx.Done():
			return nil
		}
	}
}

func copyProfile(p datatypes.CompanionProfile) *datatypes.CompanionProfile {
	cp := p
	cp.Tags = append([]string(nil), p.Tags...)
	cp.Gallery = append([]string(nil), p.Gallery...)
	return &cp
}

var _ CompanionStore = (*Catalog)(nil)
