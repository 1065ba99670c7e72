package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/minghe/poetry-annotator/internal/util"
)

const testYAML = `
default_dataset: tang
max_model_pipelines: 3
log_dir: out/logs
taxonomy_file: configs/tax.yaml

datasets:
  tang:
    dir: data/tang
  song:
    dir: data/song

models:
  deepseek-v3:
    model: deepseek-chat
    base_url: https://api.deepseek.com/v1
    api_key_env: DEEPSEEK_API_KEY
    temperature: 0.3
    max_workers: 4
    max_retries: 5
    timeout: 90s
    rate_capacity: 10
    rate_refill_per_sec: 2
  qwen-max:
    model: qwen-max
    api_key_env: QWEN_API_KEY
`

func loadTestConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(testYAML)); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	return cfg
}

func TestLoad(t *testing.T) {
	cfg := loadTestConfig(t)

	if cfg.DefaultDataset != "tang" || cfg.MaxModelPipelines != 3 {
		t.Errorf("unexpected config: %+v", cfg)
	}

	m, err := cfg.Model("deepseek-v3")
	if err != nil {
		t.Fatal(err)
	}
	if m.Identifier != "deepseek-v3" {
		t.Errorf("identifier not filled from map key: %q", m.Identifier)
	}
	if m.Model != "deepseek-chat" || m.Timeout != 90*time.Second || m.RateRefillSec != 2 {
		t.Errorf("unexpected model config: %+v", m)
	}
}

func TestDatasetPaths(t *testing.T) {
	cfg := loadTestConfig(t)

	paths, err := cfg.Dataset("")
	if err != nil {
		t.Fatal(err)
	}
	if paths.Raw != "data/tang/tang-raw.db" {
		t.Errorf("unexpected raw path: %s", paths.Raw)
	}
	if paths.Annotation != "data/tang/tang-annotations.db" {
		t.Errorf("unexpected annotation path: %s", paths.Annotation)
	}
	if paths.Taxonomy != "data/tang/taxonomy.db" {
		t.Errorf("unexpected taxonomy path: %s", paths.Taxonomy)
	}

	if _, err := cfg.Dataset("yuan"); !errors.Is(err, util.ErrDatasetNotFound) {
		t.Errorf("expected ErrDatasetNotFound, got %v", err)
	}
}

func TestUnknownModel(t *testing.T) {
	cfg := loadTestConfig(t)
	if _, err := cfg.Model("gpt-99"); !errors.Is(err, util.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestMismatchedIdentifierRejected(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	err := v.ReadConfig(strings.NewReader(`
models:
  model-a:
    identifier: model-b
`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Load(v); !errors.Is(err, util.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}
