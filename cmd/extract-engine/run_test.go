// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineConfigFromFlags(t *testing.T) {
	t.Cleanup(viper.Reset)

	viper.Reset()
	viper.Set("extractor.model", "gpt-5-mini")
	viper.Set("extractor.timeout", "90s")
	viper.Set("extractor.max_retries", 2)
	viper.Set("learner.max_attempts", 4)

	cmd := runCmd
	require.NoError(t, cmd.Flags().Set("api-key", "sk-test"))

	cfg := pipelineConfigFromFlags(cmd)

	assert.Equal(t, "gpt-5-mini", cfg.Extractor.Model)
	assert.Equal(t, "sk-test", cfg.Extractor.APIKey)
	assert.Equal(t, 90*time.Second, cfg.Extractor.Timeout)
	assert.Equal(t, 2, cfg.Extractor.MaxRetries)
	assert.Equal(t, 4, cfg.Learner.MaxAttempts)
	assert.Equal(t, "cache/rules.json", cfg.Cache.Path)
	assert.True(t, cfg.Cache.Enabled)

	// The rule-generation stage shares the extractor settings unless
	// overridden.
	assert.Equal(t, "gpt-5-mini", cfg.RuleGen.Model)
	assert.Equal(t, 90*time.Second, cfg.RuleGen.Timeout)
	assert.Equal(t, 2, cfg.RuleGen.MaxRetries)

	// Flags win over the config file.
	require.NoError(t, cmd.Flags().Set("timeout", "30s"))
	require.NoError(t, cmd.Flags().Set("max-retries", "7"))
	cfg = pipelineConfigFromFlags(cmd)
	assert.Equal(t, 30*time.Second, cfg.Extractor.Timeout)
	assert.Equal(t, 7, cfg.Extractor.MaxRetries)
}
