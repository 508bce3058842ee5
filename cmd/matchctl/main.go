// Package main implements the matchctl CLI for manual operations against a
// matchd data directory: adding and invalidating faces, running smart-match
// queries and inspecting stats.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civium/matchd/internal/config"
	"github.com/civium/matchd/internal/logging"
	"github.com/civium/matchd/pkg/match"
	"github.com/civium/matchd/pkg/store"
)

var (
	// configPath is the optional YAML config file.
	configPath string
	// version information (set via ldflags during build)
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "matchctl",
	Short: "CLI for matchd collection operations",
	Long: `matchctl operates directly on a matchd data directory.
It provides commands for adding, invalidating and restoring faces,
running smart-match queries and printing service stats.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(statsCmd)
}

// newService is the composition root: it loads config and wires the logger,
// store and match service together. Each invocation constructs the full
// stack; nothing lives in package-level service state.
func newService() (*match.Service, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}

	st, err := store.New(cfg.Store, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating store: %w", err)
	}

	svc, err := match.NewService(st, cfg.Match, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating match service: %w", err)
	}
	return svc, logger, nil
}

// parseVector parses a comma-separated float list, e.g. "0.1,0.2,0.3".
func parseVector(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	vec := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("parsing vector component %q: %w", p, err)
		}
		vec = append(vec, float32(f))
	}
	return vec, nil
}
