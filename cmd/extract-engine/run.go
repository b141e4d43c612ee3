// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/extract-engine/internal/dataset"
	"github.com/pdiddy/extract-engine/internal/learner"
	"github.com/pdiddy/extract-engine/internal/llm"
	"github.com/pdiddy/extract-engine/internal/pipeline"
	"github.com/pdiddy/extract-engine/internal/results"
	"github.com/pdiddy/extract-engine/internal/rulecache"
	"github.com/pdiddy/extract-engine/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run <dataset.json>",
	Short: "Run extraction over a dataset of documents",
	Long: `Run processes every document in a JSON dataset file. Fields resolve
through cached rules first; the LLM extractor handles cache misses in one
batched call per document, and each newly extracted value feeds the rule
learner. The cache snapshot is saved after every accepted rule.

With --no-cache the run is a baseline: every field goes to the extractor
and no rules are read, written, or learned. Run results are stored in the
results database for later comparison.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("model", "", "extraction model identifier")
	runCmd.Flags().String("rule-gen-model", "", "rule-generation model identifier (default: same as --model)")
	runCmd.Flags().String("api-key", "", "AI API key (default: .secrets/openai-api-key)")
	runCmd.Flags().String("base-url", "", "AI API base URL override")
	runCmd.Flags().Duration("timeout", 0, "per-request AI API timeout (default: 2m)")
	runCmd.Flags().Int("max-retries", 0, "retries per AI API call on HTTP 429 (default: 5)")
	runCmd.Flags().String("cache-file", "", "rule cache snapshot path (default: cache/rules.json)")
	runCmd.Flags().Bool("no-cache", false, "baseline mode: extractor only, no rule cache")
	runCmd.Flags().Int("max-attempts", 0, "rule proposals per field before giving up (default: 3)")
	runCmd.Flags().String("results-dir", "", "run-results database directory (default: results)")
	runCmd.Flags().String("report", "", "also write the run report to this YAML file")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := pipelineConfigFromFlags(cmd)

	docs, err := dataset.Load(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "loaded %d document(s) from %s\n", len(docs), args[0])

	extractor, err := llm.NewClient(cfg.Extractor)
	if err != nil {
		return err
	}

	opts := pipeline.Options{
		Extractor:    extractor,
		CacheEnabled: cfg.Cache.Enabled,
	}
	if cfg.Cache.Enabled {
		store, err := rulecache.Load(cfg.Cache.Path)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "rule cache: %d rule(s) from %s\n", store.RuleCount(), cfg.Cache.Path)

		ruleGen, err := llm.NewClient(cfg.RuleGen)
		if err != nil {
			return err
		}

		opts.Store = store
		opts.Learner = learner.New(ruleGen, cfg.Learner.MaxAttempts)
		opts.CachePath = cfg.Cache.Path
	} else {
		fmt.Fprintln(os.Stdout, "rule cache disabled: baseline run")
	}

	p, err := pipeline.New(opts)
	if err != nil {
		return err
	}

	started := time.Now()
	report, err := p.Run(ctx, docs, os.Stdout)
	if err != nil {
		return err
	}

	printRunSummary(report)

	store, err := results.NewStore(cfg.Results)
	if err != nil {
		return err
	}
	defer store.Close()

	runID, err := store.SaveRun(ctx, started, report)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "run stored as %s\n", runID)

	if reportPath, _ := cmd.Flags().GetString("report"); reportPath != "" {
		if err := report.WriteYAML(reportPath); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "report written to %s\n", reportPath)
	}
	return nil
}

func printRunSummary(report *pipeline.RunReport) {
	fmt.Fprintf(os.Stdout, "\ndocuments: %d (%d fast path)\n",
		report.TotalDocuments, report.FastPathDocs)
	fmt.Fprintf(os.Stdout, "cache: %d hit(s), %d miss(es), %d rule(s) learned\n",
		report.CacheHits, report.CacheMisses, report.RulesAdded)
	fmt.Fprintf(os.Stdout, "calls: %d extractor, %d rule generator\n",
		report.ExtractorCalls, report.GeneratorCalls)
	fmt.Fprintf(os.Stdout, "tokens: %d prompt, %d completion\n",
		report.Usage.PromptTokens, report.Usage.CompletionTokens)
	if report.MeanAccuracy > 0 {
		fmt.Fprintf(os.Stdout, "mean accuracy: %.1f%%\n", report.MeanAccuracy)
	}
}

// pipelineConfigFromFlags merges flags, config file values, and secrets into
// a PipelineConfig. Flags win over the config file; the API key falls back
// to .secrets/openai-api-key.
func pipelineConfigFromFlags(cmd *cobra.Command) types.PipelineConfig {
	model, _ := cmd.Flags().GetString("model")
	if model == "" {
		model = viper.GetString("extractor.model")
	}
	ruleGenModel, _ := cmd.Flags().GetString("rule-gen-model")
	if ruleGenModel == "" {
		ruleGenModel = viper.GetString("rule_gen.model")
	}
	if ruleGenModel == "" {
		ruleGenModel = model
	}

	apiKey, _ := cmd.Flags().GetString("api-key")
	apiKey = secretDefault("openai-api-key", apiKey)

	baseURL, _ := cmd.Flags().GetString("base-url")
	if baseURL == "" {
		baseURL = viper.GetString("extractor.base_url")
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout == 0 {
		timeout = viper.GetDuration("extractor.timeout")
	}
	maxRetries, _ := cmd.Flags().GetInt("max-retries")
	if maxRetries == 0 {
		maxRetries = viper.GetInt("extractor.max_retries")
	}

	cachePath, _ := cmd.Flags().GetString("cache-file")
	if cachePath == "" {
		cachePath = viper.GetString("cache.path")
	}
	if cachePath == "" {
		cachePath = "cache/rules.json"
	}
	noCache, _ := cmd.Flags().GetBool("no-cache")

	maxAttempts, _ := cmd.Flags().GetInt("max-attempts")
	if maxAttempts == 0 {
		maxAttempts = viper.GetInt("learner.max_attempts")
	}

	resultsDir, _ := cmd.Flags().GetString("results-dir")
	if resultsDir == "" {
		resultsDir = viper.GetString("results.dir")
	}

	ai := types.AIConfig{
		Model:      model,
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Timeout:    timeout,
		MaxRetries: maxRetries,
	}
	ruleGen := ai
	ruleGen.Model = ruleGenModel
	if key := secretDefault("rule-gen-api-key", ""); key != "" {
		ruleGen.APIKey = key
	}

	return types.PipelineConfig{
		Extractor: ai,
		RuleGen:   ruleGen,
		Cache:     types.CacheConfig{Path: cachePath, Enabled: !noCache},
		Learner:   types.LearnerConfig{MaxAttempts: maxAttempts},
		Results:   types.ResultsConfig{Dir: resultsDir},
	}
}
