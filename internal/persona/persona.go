// Package persona loads per-user system-prompt additions from YAML
// files. The orchestrator appends the matching addition to the base
// system instruction before calling a provider.
package persona

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition is one persona file. UserID defaults to the file name
// (without extension) when omitted.
type Definition struct {
	UserID string `yaml:"userId"`
	Prompt string `yaml:"prompt"`
}

// Set holds the loaded personas, keyed by user id.
type Set struct {
	byUser map[string]string
}

// LoadFromDirectory reads every .yaml/.yml file in dir. A missing
// directory yields an empty set, not an error.
func LoadFromDirectory(dir string, logger *slog.Logger) (*Set, error) {
	set := &Set{byUser: make(map[string]string)}

	if dir == "" {
		return set, nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug("persona directory does not exist, skipping", "dir", dir)
		return set, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read persona dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("cannot read persona file", "path", path, "err", err)
			continue
		}

		var def Definition
		if err := yaml.Unmarshal(data, &def); err != nil {
			logger.Warn("cannot parse persona file", "path", path, "err", err)
			continue
		}
		if def.UserID == "" {
			def.UserID = strings.TrimSuffix(name, filepath.Ext(name))
		}
		if def.Prompt == "" {
			continue
		}

		logger.Info("loaded persona", "user", def.UserID, "path", path)
		set.byUser[def.UserID] = def.Prompt
	}

	return set, nil
}

// For returns the prompt addition for userID, or "" when none exists.
func (s *Set) For(userID string) string {
	if s == nil {
		return ""
	}
	return s.byUser[userID]
}
