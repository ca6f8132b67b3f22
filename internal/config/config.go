// Package config loads pipeline settings from the environment.
package config

import (
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config carries everything the binary needs to wire the pipeline.
type Config struct {
	OpenAIAPIKey  string `koanf:"openai_api_key"`
	OpenAIModel   string `koanf:"openai_model"`
	OpenAIBaseURL string `koanf:"openai_base_url"`

	SQLitePath string `koanf:"sqlite_path"`
	StorePath  string `koanf:"store_path"`

	ESAddresses string `koanf:"es_addresses"`
	ESUsername  string `koanf:"es_username"`
	ESPassword  string `koanf:"es_password"`

	SampleLimit      int `koanf:"sample_limit"`
	FetchCap         int `koanf:"fetch_cap"`
	QueryWorkers     int `koanf:"query_workers"`
	NarrativeWorkers int `koanf:"narrative_workers"`
	ContextTokens    int `koanf:"context_tokens"`
}

// Load reads the environment and applies defaults.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills the knobs the environment left unset.
func (c *Config) ApplyDefaults() {
	if c.SQLitePath == "" {
		c.SQLitePath = "data.db"
	}
	if c.StorePath == "" {
		c.StorePath = "runs.db"
	}
	if c.SampleLimit <= 0 {
		c.SampleLimit = 5
	}
	if c.FetchCap <= 0 {
		c.FetchCap = 5000
	}
	if c.QueryWorkers <= 0 {
		c.QueryWorkers = 4
	}
	if c.NarrativeWorkers <= 0 {
		c.NarrativeWorkers = 3
	}
	if c.ContextTokens <= 0 {
		c.ContextTokens = 3000
	}
}

// ESAddressList splits the comma-separated ES address setting.
func (c *Config) ESAddressList() []string {
	if c.ESAddresses == "" {
		return nil
	}
	parts := strings.Split(c.ESAddresses, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
