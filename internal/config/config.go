// Package config provides configuration loading for matchd.
package config

import (
	"fmt"

	"github.com/civium/matchd/internal/logging"
	"github.com/civium/matchd/pkg/match"
	"github.com/civium/matchd/pkg/store"
)

// Config is the full matchd configuration tree.
type Config struct {
	Store   store.Config   `koanf:"store"`
	Match   match.Config   `koanf:"match"`
	Logging logging.Config `koanf:"logging"`
}

// ApplyDefaults sets default values for unset fields in every section.
func (c *Config) ApplyDefaults() {
	c.Store.ApplyDefaults()
	c.Match.ApplyDefaults()
	c.Logging.ApplyDefaults()
}

// Validate validates every section.
func (c *Config) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.Match.Validate(); err != nil {
		return fmt.Errorf("match: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}
