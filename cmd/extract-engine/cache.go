// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/extract-engine/internal/rulecache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the rule cache snapshot",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print rule counts per document type and field",
	RunE:  runCacheStats,
}

var cacheShowCmd = &cobra.Command{
	Use:   "show [doc-type]",
	Short: "Print cached rules, optionally for one document type",
	Long: `Show prints every cached rule with its patterns and weight, ordered
the way lookups try them. Pass a document type label to restrict the output.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCacheShow,
}

func init() {
	cacheCmd.PersistentFlags().String("cache-file", "", "rule cache snapshot path (default: cache/rules.json)")
	cacheShowCmd.Flags().Bool("json", false, "output as JSON")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheShowCmd)
	rootCmd.AddCommand(cacheCmd)
}

func cacheFileFromFlags(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("cache-file")
	if path == "" {
		path = viper.GetString("cache.path")
	}
	if path == "" {
		path = "cache/rules.json"
	}
	return path
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	path := cacheFileFromFlags(cmd)
	store, err := rulecache.Load(path)
	if err != nil {
		return err
	}

	snap := store.Snapshot()
	if len(snap) == 0 {
		fmt.Printf("cache %s is empty\n", path)
		return nil
	}

	labels := make([]string, 0, len(snap))
	for label := range snap {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	fmt.Fprintf(os.Stdout, "%-20s  %-20s  %s\n", "Doc Type", "Field", "Rules")
	for _, label := range labels {
		fields := make([]string, 0, len(snap[label]))
		for field := range snap[label] {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			fmt.Fprintf(os.Stdout, "%-20s  %-20s  %d\n", label, field, len(snap[label][field]))
		}
	}
	fmt.Fprintf(os.Stdout, "\n%d rule(s) total\n", store.RuleCount())
	return nil
}

func runCacheShow(cmd *cobra.Command, args []string) error {
	path := cacheFileFromFlags(cmd)
	store, err := rulecache.Load(path)
	if err != nil {
		return err
	}

	snap := store.Snapshot()
	if len(args) == 1 {
		onlyLabel, ok := snap[args[0]]
		if !ok {
			return fmt.Errorf("no rules for document type %q in %s", args[0], path)
		}
		snap = rulecache.Snapshot{args[0]: onlyLabel}
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	labels := make([]string, 0, len(snap))
	for label := range snap {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		fmt.Printf("%s:\n", label)
		fields := make([]string, 0, len(snap[label]))
		for field := range snap[label] {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			fmt.Printf("  %s:\n", field)
			for i, rec := range snap[label][field] {
				fmt.Printf("    %d. weight %d\n", i+1, rec.Weight)
				fmt.Printf("       extract:  %s\n", rec.ExtractionPattern)
				fmt.Printf("       validate: %s\n", rec.ValidationPattern)
			}
		}
	}
	return nil
}
