// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/extract-engine/internal/results"
	"github.com/pdiddy/extract-engine/pkg/types"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Browse stored extraction runs",
}

var resultsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs, newest first",
	RunE:  runResultsList,
}

var resultsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run with its per-document results",
	Args:  cobra.ExactArgs(1),
	RunE:  runResultsShow,
}

func init() {
	resultsCmd.PersistentFlags().String("results-dir", "", "run-results database directory (default: results)")
	resultsShowCmd.Flags().Bool("json", false, "output as JSON")

	resultsCmd.AddCommand(resultsListCmd)
	resultsCmd.AddCommand(resultsShowCmd)
	rootCmd.AddCommand(resultsCmd)
}

func resultsStoreFromFlags(cmd *cobra.Command) (*results.Store, error) {
	dir, _ := cmd.Flags().GetString("results-dir")
	if dir == "" {
		dir = viper.GetString("results.dir")
	}
	return results.NewStore(types.ResultsConfig{Dir: dir})
}

func runResultsList(cmd *cobra.Command, args []string) error {
	store, err := resultsStoreFromFlags(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(context.Background())
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No stored runs.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-36s  %-20s  %-6s  %-5s  %-6s  %s\n",
		"Run ID", "Started", "Docs", "Fast", "Rules", "Accuracy")
	for _, r := range runs {
		mode := "cached"
		if !r.Cached {
			mode = "baseline"
		}
		fmt.Fprintf(os.Stdout, "%-36s  %-20s  %-6d  %-5d  %-6d  %.1f%% (%s)\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"),
			r.TotalDocuments, r.FastPathDocs, r.RulesAdded, r.MeanAccuracy, mode)
	}
	return nil
}

func runResultsShow(cmd *cobra.Command, args []string) error {
	store, err := resultsStoreFromFlags(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	run, err := store.GetRun(ctx, args[0])
	if err != nil {
		return err
	}
	docs, err := store.GetRunDocuments(ctx, run.ID)
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Run       results.RunSummary    `json:"run"`
			Documents []results.DocumentRow `json:"documents"`
		}{Run: run, Documents: docs})
	}

	mode := "cached"
	if !run.Cached {
		mode = "baseline"
	}
	fmt.Printf("run %s (%s), started %s\n", run.ID, mode,
		run.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("documents: %d (%d fast path), %d rule(s) learned\n",
		run.TotalDocuments, run.FastPathDocs, run.RulesAdded)
	fmt.Printf("calls: %d extractor, %d rule generator; tokens: %d prompt, %d completion\n",
		run.ExtractorCalls, run.GeneratorCalls,
		run.Usage.PromptTokens, run.Usage.CompletionTokens)
	if run.MeanAccuracy > 0 {
		fmt.Printf("mean accuracy: %.1f%%\n", run.MeanAccuracy)
	}

	fmt.Printf("\n%-20s  %-15s  %-5s  %-6s  %s\n", "Document", "Type", "Fast", "Rules", "Accuracy")
	for _, d := range docs {
		accuracy := "-"
		if d.Scored {
			accuracy = fmt.Sprintf("%.1f%%", d.Accuracy)
		}
		fmt.Printf("%-20s  %-15s  %-5v  %-6d  %s\n",
			d.Name, d.Label, d.FastPath, d.RulesAdded, accuracy)
	}
	return nil
}
