package shared

import (
	"testing"

	"github.com/reviewhub/reviewhub/internal/config"
	"github.com/reviewhub/reviewhub/internal/model"
	"github.com/reviewhub/reviewhub/pkg/logger"
)

func init() {
	logger.Init(logger.Config{
		Level:  "error",
		Format: "text",
	})
}

func TestInitAdapters_EmptyConfig(t *testing.T) {
	adapters := InitAdapters(&config.Config{})
	if len(adapters) != 0 {
		t.Errorf("len(adapters) = %d, want 0", len(adapters))
	}
}

func TestInitAdapters_AllPlatforms(t *testing.T) {
	cfg := &config.Config{
		Platforms: []config.PlatformConfig{
			{Type: model.PlatformGitHub, Token: "gh-token", WebhookSecret: "s1"},
			{Type: model.PlatformGitea, URL: "https://gitea.example.com", Token: "gt-token"},
			{Type: model.PlatformGitLab, URL: "https://gitlab.example.com", Token: "gl-token"},
		},
	}

	adapters := InitAdapters(cfg)
	if len(adapters) != 3 {
		t.Fatalf("len(adapters) = %d, want 3", len(adapters))
	}
	for _, name := range []string{model.PlatformGitHub, model.PlatformGitea, model.PlatformGitLab} {
		adapter, ok := adapters[name]
		if !ok {
			t.Errorf("adapter %s missing", name)
			continue
		}
		if adapter.Name() != name {
			t.Errorf("adapter.Name() = %s, want %s", adapter.Name(), name)
		}
	}
}

func TestInitAdapters_UnknownPlatformSkipped(t *testing.T) {
	cfg := &config.Config{
		Platforms: []config.PlatformConfig{
			{Type: "bitbucket", Token: "token"},
			{Type: model.PlatformGitHub, Token: "gh-token"},
		},
	}

	adapters := InitAdapters(cfg)
	if len(adapters) != 1 {
		t.Fatalf("len(adapters) = %d, want 1", len(adapters))
	}
	if _, ok := adapters["bitbucket"]; ok {
		t.Error("unknown platform should be skipped")
	}
}

func TestInitLLMClient_Mock(t *testing.T) {
	cfg := &config.Config{
		LLM: config.LLMConfig{
			Provider:  "mock",
			Model:     "mock-model",
			MaxTokens: 2048,
			Timeout:   30,
		},
	}

	client, err := InitLLMClient(cfg)
	if err != nil {
		t.Fatalf("InitLLMClient() error = %v", err)
	}
	if client.Name() != "mock" {
		t.Errorf("client.Name() = %s, want mock", client.Name())
	}
	cc := client.GetConfig()
	if cc.DefaultModel != "mock-model" {
		t.Errorf("DefaultModel = %s, want mock-model", cc.DefaultModel)
	}
	if cc.MaxTokens != 2048 {
		t.Errorf("MaxTokens = %d, want 2048", cc.MaxTokens)
	}
}

func TestInitLLMClient_UnknownProvider(t *testing.T) {
	cfg := &config.Config{
		LLM: config.LLMConfig{Provider: "nonexistent"},
	}

	if _, err := InitLLMClient(cfg); err == nil {
		t.Error("InitLLMClient() accepted an unregistered provider")
	}
}
