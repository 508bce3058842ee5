package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/civium/matchd/pkg/tenant"
)

var (
	faceCollection string
	faceVector     string
	facePosition   int
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a face vector to a collection",
	Long: `Add a pre-computed embedding to a collection and print the assigned position.

Examples:
  # Add a vector to a private tenant's known collection
  matchctl add --collection private/42/known --vector "0.1,0.2,0.3,..."`,
	RunE: runAdd,
}

var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "Invalidate a face position in a collection",
	Long: `Tombstone a position so it is excluded from search results.
The vector stays in the collection; positions are never reused.

Examples:
  matchctl remove --collection private/42/known --position 7`,
	RunE: runRemove,
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Revalidate a tombstoned face position",
	Long: `Remove a position's tombstone, making it visible to searches again.

Examples:
  matchctl restore --collection private/42/known --position 7`,
	RunE: runRestore,
}

func init() {
	addCmd.Flags().StringVar(&faceCollection, "collection", "", "collection path: category/id/kind")
	addCmd.Flags().StringVar(&faceVector, "vector", "", "comma-separated embedding components")
	_ = addCmd.MarkFlagRequired("collection")
	_ = addCmd.MarkFlagRequired("vector")

	for _, cmd := range []*cobra.Command{removeCmd, restoreCmd} {
		cmd.Flags().StringVar(&faceCollection, "collection", "", "collection path: category/id/kind")
		cmd.Flags().IntVar(&facePosition, "position", 0, "position to operate on")
		_ = cmd.MarkFlagRequired("collection")
		_ = cmd.MarkFlagRequired("position")
	}
}

func runAdd(cmd *cobra.Command, args []string) error {
	key, err := tenant.ParsePath(faceCollection)
	if err != nil {
		return err
	}
	vec, err := parseVector(faceVector)
	if err != nil {
		return err
	}

	svc, logger, err := newService()
	if err != nil {
		return err
	}
	defer logger.Sync()

	position, err := svc.AddFace(context.Background(), key, vec)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "added at position %d\n", position)
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	key, err := tenant.ParsePath(faceCollection)
	if err != nil {
		return err
	}

	svc, logger, err := newService()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ok, err := svc.RemoveFace(context.Background(), key, facePosition)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("position %d is out of range for %s", facePosition, key)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "position %d invalidated\n", facePosition)
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	key, err := tenant.ParsePath(faceCollection)
	if err != nil {
		return err
	}

	svc, logger, err := newService()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ok, err := svc.RestoreFace(context.Background(), key, facePosition)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("position %d is not tombstoned in %s", facePosition, key)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "position %d revalidated\n", facePosition)
	return nil
}
