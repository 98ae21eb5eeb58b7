package config

import (
	"strings"
	"testing"
)

func baseConfig() *Config {
	return &Config{
		LLM:      LLMConfig{Provider: "openai", OpenAIKey: "sk-test"},
		VectorDB: VectorDBConfig{Type: "local"},
		Chunker:  ChunkerConfig{Size: 1000, Overlap: 200},
	}
}

func TestValidateOK(t *testing.T) {
	if err := baseConfig().Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidateMissingOpenAIKey(t *testing.T) {
	cfg := baseConfig()
	cfg.LLM.OpenAIKey = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Errorf("Validate() = %v, want missing OPENAI_API_KEY", err)
	}
}

func TestValidateAnthropicNeedsBothKeys(t *testing.T) {
	cfg := baseConfig()
	cfg.LLM.Provider = "anthropic"
	cfg.LLM.OpenAIKey = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() passed without any anthropic keys")
	}
	// The chat key and the embedding key are both required.
	for _, want := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() = %v, want %s reported", err, want)
		}
	}
}

func TestValidateUnknownProvider(t *testing.T) {
	cfg := baseConfig()
	cfg.LLM.Provider = "bard"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown provider accepted")
	}
}

func TestValidatePgNeedsDatabaseURL(t *testing.T) {
	cfg := baseConfig()
	cfg.VectorDB.Type = "pg"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("Validate() = %v, want missing DATABASE_URL", err)
	}
}

func TestValidateChunkOverlap(t *testing.T) {
	cfg := baseConfig()
	cfg.Chunker.Overlap = cfg.Chunker.Size
	if err := cfg.Validate(); err == nil {
		t.Error("overlap equal to size accepted")
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Agent.Model != "gpt-4o-mini" {
		t.Errorf("Agent.Model = %q", cfg.Agent.Model)
	}
	if cfg.VectorDB.Type != "local" {
		t.Errorf("VectorDB.Type = %q", cfg.VectorDB.Type)
	}
	if cfg.VectorDB.Dimension != 1536 {
		t.Errorf("Dimension = %d", cfg.VectorDB.Dimension)
	}
}

func TestLoadRejectsBadInt(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-port")
	if _, err := Load(); err == nil {
		t.Error("malformed SERVER_PORT accepted")
	}
}

func TestAPIKeySelection(t *testing.T) {
	llm := LLMConfig{Provider: "anthropic", OpenAIKey: "o", AnthropicKey: "a"}
	if got := llm.APIKey(); got != "a" {
		t.Errorf("APIKey() = %q, want anthropic key", got)
	}
	llm.Provider = "openai"
	if got := llm.APIKey(); got != "o" {
		t.Errorf("APIKey() = %q, want openai key", got)
	}
}
