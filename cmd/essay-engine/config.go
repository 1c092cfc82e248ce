// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/essay-engine/internal/llm"
	"github.com/pdiddy/essay-engine/internal/search"
	"github.com/pdiddy/essay-engine/internal/secrets"
	"github.com/pdiddy/essay-engine/internal/session"
	"github.com/pdiddy/essay-engine/pkg/types"
)

const defaultUserAgent = "essay-engine/0.1"

// flagKeys maps CLI flag names to the config keys they override.
var flagKeys = map[string]string{
	"model":        "ai.model",
	"max-tokens":   "ai.max_tokens",
	"tracing":      "ai.tracing_enabled",
	"project":      "ai.project_name",
	"backend":      "search.backend",
	"max-queries":  "search.max_queries",
	"max-results":  "search.max_results",
	"concurrency":  "search.concurrency",
	"store":        "store.driver",
	"sessions-dir": "store.dir",
	"output-dir":   "output_dir",
}

// setDefaults registers every config key so environment variables resolve
// even when no config file exists.
func setDefaults(v *viper.Viper) {
	v.SetDefault("ai.timeout", 120*time.Second)
	v.SetDefault("ai.user_agent", defaultUserAgent)
	v.SetDefault("ai.model", "")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.max_tokens", 4096)
	v.SetDefault("ai.max_retries", 5)
	v.SetDefault("ai.tracing_enabled", false)
	v.SetDefault("ai.project_name", "essay-engine")

	v.SetDefault("search.timeout", 30*time.Second)
	v.SetDefault("search.user_agent", defaultUserAgent)
	v.SetDefault("search.backend", string(types.BackendTavily))
	v.SetDefault("search.api_key", "")
	v.SetDefault("search.email", "")
	v.SetDefault("search.max_results", search.DefaultMaxResults)
	v.SetDefault("search.max_queries", llm.DefaultMaxQueries)
	v.SetDefault("search.concurrency", 1)

	v.SetDefault("store.driver", session.DriverSQLite)
	v.SetDefault("store.dir", "sessions")

	v.SetDefault("output_dir", "output/essays")
}

// bindFlags binds the command's flags that appear in flagKeys. Called from
// RunE so commands sharing a flag name do not overwrite each other's binding.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	return nil
}

// loadConfig resolves flags, config file, environment and defaults into a
// WriterConfig, then fills API keys from secrets.
func loadConfig(cmd *cobra.Command) (types.WriterConfig, error) {
	v := viper.GetViper()
	if err := bindFlags(cmd, v); err != nil {
		return types.WriterConfig{}, err
	}

	var cfg types.WriterConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}

	cfg.AI.APIKey = secretDefault(secrets.AnthropicAPIKey, cfg.AI.APIKey)
	switch cfg.Search.Backend {
	case types.BackendSemanticScholar:
		cfg.Search.APIKey = secretDefault(secrets.SemanticScholarAPIKey, cfg.Search.APIKey)
	default:
		cfg.Search.APIKey = secretDefault(secrets.TavilyAPIKey, cfg.Search.APIKey)
	}
	return cfg, nil
}
