package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("SQLITE_PATH", "/tmp/data.db")
	t.Setenv("QUERY_WORKERS", "8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.OpenAIAPIKey)
	assert.Equal(t, "/tmp/data.db", cfg.SQLitePath)
	assert.Equal(t, 8, cfg.QueryWorkers)

	// defaults
	assert.Equal(t, "runs.db", cfg.StorePath)
	assert.Equal(t, 5, cfg.SampleLimit)
	assert.Equal(t, 5000, cfg.FetchCap)
	assert.Equal(t, 3, cfg.NarrativeWorkers)
	assert.Equal(t, 3000, cfg.ContextTokens)
}

func TestESAddressList(t *testing.T) {
	cfg := &Config{ESAddresses: "http://es1:9200, http://es2:9200"}
	assert.Equal(t, []string{"http://es1:9200", "http://es2:9200"}, cfg.ESAddressList())

	empty := &Config{}
	assert.Nil(t, empty.ESAddressList())
}
