package types

import "time"

// HTTPConfig holds shared HTTP settings used by clients that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "essay-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// AIConfig holds settings for the Generative AI client.
type AIConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Model is the AI model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// MaxTokens caps the length of each completion (default 4096).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// MaxRetries is the number of retries on rate limiting or overload (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// TracingEnabled logs every call with its size and latency.
	TracingEnabled bool `json:"tracing_enabled" yaml:"tracing_enabled" mapstructure:"tracing_enabled"`

	// ProjectName tags traced calls.
	ProjectName string `json:"project_name,omitempty" yaml:"project_name,omitempty" mapstructure:"project_name"`
}

// SearchBackend identifies the web search provider.
type SearchBackend string

const (
	BackendTavily          SearchBackend = "tavily"
	BackendSemanticScholar SearchBackend = "semantic_scholar"
	BackendOpenAlex        SearchBackend = "openalex"
	BackendArxiv           SearchBackend = "arxiv"
)

// SearchConfig holds settings for the research stages.
type SearchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Backend selects the search provider: tavily, semantic_scholar,
	// openalex, or arxiv.
	Backend SearchBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// APIKey is the search provider key. Required for Tavily only.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// MaxResults is the number of snippets requested per query (default 2).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	// MaxQueries caps the queries used per research stage (default 3).
	MaxQueries int `json:"max_queries" yaml:"max_queries" mapstructure:"max_queries"`

	// Email is sent to OpenAlex for polite pool access.
	Email string `json:"email,omitempty" yaml:"email,omitempty" mapstructure:"email"`

	// Concurrency is the number of queries searched in parallel (default 1).
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`
}

// StoreConfig holds settings for session persistence.
type StoreConfig struct {
	// Driver selects the store: sqlite or memory.
	Driver string `json:"driver" yaml:"driver" mapstructure:"driver"`

	// Dir is the directory holding the sqlite database (default "sessions").
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`
}

// WriterConfig groups everything needed to run the essay pipeline.
type WriterConfig struct {
	AI     AIConfig     `json:"ai" yaml:"ai" mapstructure:"ai"`
	Search SearchConfig `json:"search" yaml:"search" mapstructure:"search"`
	Store  StoreConfig  `json:"store" yaml:"store" mapstructure:"store"`

	// OutputDir is where finished essays are written (default "output/essays").
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`
}
