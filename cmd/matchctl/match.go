package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/civium/matchd/pkg/match"
	"github.com/civium/matchd/pkg/tenant"
)

var (
	matchCategory      string
	matchTenantID      int
	matchVector        string
	matchFederated     bool
	matchSearchUnknown bool
	matchAutoRegister  bool
	matchThreshold     float32
	matchTopK          int
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Run a smart-match cascade for a query vector",
	Long: `Resolve a query embedding through the known -> unknown -> auto-register
cascade and print the result as JSON.

Examples:
  # Isolated search against the tenant's own known collection
  matchctl match --category private --tenant 42 --vector "0.1,0.2,..."

  # Federated search across all public known collections, auto-registering misses
  matchctl match --category public --tenant 7 --federated --search-unknown \
    --auto-register --vector "0.1,0.2,..."`,
	RunE: runMatch,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print service stats for the data directory",
	RunE:  runStats,
}

func init() {
	matchCmd.Flags().StringVar(&matchCategory, "category", "", "tenant category: public or private")
	matchCmd.Flags().IntVar(&matchTenantID, "tenant", 0, "tenant ID")
	matchCmd.Flags().StringVar(&matchVector, "vector", "", "comma-separated embedding components")
	matchCmd.Flags().BoolVar(&matchFederated, "federated", false, "search all public known collections plus the tenant's own")
	matchCmd.Flags().BoolVar(&matchSearchUnknown, "search-unknown", false, "fall through to the tenant's unknown collection")
	matchCmd.Flags().BoolVar(&matchAutoRegister, "auto-register", false, "register the vector in the unknown collection when nothing matches")
	matchCmd.Flags().Float32Var(&matchThreshold, "threshold", -1, "similarity threshold override (default: configured value)")
	matchCmd.Flags().IntVar(&matchTopK, "top-k", 0, "top-k override (default: configured value)")
	_ = matchCmd.MarkFlagRequired("category")
	_ = matchCmd.MarkFlagRequired("tenant")
	_ = matchCmd.MarkFlagRequired("vector")
}

func runMatch(cmd *cobra.Command, args []string) error {
	vec, err := parseVector(matchVector)
	if err != nil {
		return err
	}

	svc, logger, err := newService()
	if err != nil {
		return err
	}
	defer logger.Sync()

	query := match.Query{
		Vector:        vec,
		Category:      tenant.Category(matchCategory),
		TenantID:      matchTenantID,
		Federated:     matchFederated,
		SearchUnknown: matchSearchUnknown,
		AutoRegister:  matchAutoRegister,
		TopK:          matchTopK,
	}
	if cmd.Flags().Changed("threshold") {
		query.Threshold = &matchThreshold
	}

	result, err := svc.SmartMatch(context.Background(), query)
	if err != nil {
		return err
	}
	return printJSON(cmd, result)
}

func runStats(cmd *cobra.Command, args []string) error {
	svc, logger, err := newService()
	if err != nil {
		return err
	}
	defer logger.Sync()

	return printJSON(cmd, svc.Stats())
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
