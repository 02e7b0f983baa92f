package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configFile
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LLMProviders["openrouter"].APIKey != "${OPENROUTER_API_KEY}" {
		t.Error("expected openrouter API key placeholder")
	}
	if cfg.Scan.MaxConcurrency != 5 || cfg.Scan.CostCeiling != 400 || cfg.Scan.SourceVideoCap != 10 {
		t.Errorf("unexpected scan defaults: %+v", cfg.Scan)
	}
	if cfg.Storage.Backend != "fs" {
		t.Errorf("expected fs storage, got %s", cfg.Storage.Backend)
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "secret123")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		configFile := writeConfig(t, `
storage:
  backend: sqlite
scan:
  cost_ceiling: 1000
llm_providers:
  local:
    type: mock
    enabled: true
`)

		mgr, err := NewManager(configFile, "")
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Storage.Backend != "sqlite" {
			t.Errorf("expected sqlite, got %s", cfg.Storage.Backend)
		}
		if cfg.Scan.CostCeiling != 1000 {
			t.Errorf("expected ceiling 1000, got %v", cfg.Scan.CostCeiling)
		}
		if cfg.Scan.MaxConcurrency != 5 {
			t.Errorf("sibling default lost: max_concurrency = %d", cfg.Scan.MaxConcurrency)
		}
		if p, ok := cfg.GetLLMProvider("local"); !ok || p.Type != "mock" {
			t.Errorf("expected local mock provider, got %+v", p)
		}
		if mgr.ConfigFile() != configFile {
			t.Errorf("ConfigFile() = %s, want %s", mgr.ConfigFile(), configFile)
		}
	})

	t.Run("defaults without a config file", func(t *testing.T) {
		t.Chdir(t.TempDir())
		mgr, err := NewManager("", t.TempDir())
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		if diff := cmp.Diff(DefaultConfig(), mgr.Get()); diff != "" {
			t.Errorf("config mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("HOOKLINE_SERVER_PORT", "9999")
		mgr, err := NewManager(writeConfig(t, "log_level: debug\n"), "")
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		if got := mgr.Get().Server.Port; got != "9999" {
			t.Errorf("expected port 9999, got %s", got)
		}
	})

	t.Run("dotenv in home directory", func(t *testing.T) {
		home := t.TempDir()
		if err := os.WriteFile(filepath.Join(home, ".env"), []byte("HOOKLINE_TEST_DOTENV=from-file\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		t.Setenv("HOOKLINE_TEST_DOTENV", "")
		os.Unsetenv("HOOKLINE_TEST_DOTENV")

		if _, err := NewManager(writeConfig(t, "log_level: info\n"), home); err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		if got := os.Getenv("HOOKLINE_TEST_DOTENV"); got != "from-file" {
			t.Errorf("expected from-file, got %q", got)
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		if _, err := NewManager(writeConfig(t, "storage: [unclosed\n"), ""); err == nil {
			t.Error("expected error for invalid config file")
		}
	})
}

func TestToProviderRegistryConfig(t *testing.T) {
	t.Setenv("TEST_OPENROUTER_KEY", "or-key-123")

	cfg := &Config{
		LLMProviders: map[string]LLMProviderCfg{
			"openrouter": {Type: "openrouter", APIKey: "${TEST_OPENROUTER_KEY}", RateLimit: 2, TimeoutSeconds: 30, Enabled: true},
			"literal":    {Type: "openai", APIKey: "direct-key"},
		},
	}

	got := cfg.ToProviderRegistryConfig().LLMProviders
	if got["openrouter"].APIKey != "or-key-123" {
		t.Errorf("expected or-key-123, got %s", got["openrouter"].APIKey)
	}
	if got["openrouter"].Timeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", got["openrouter"].Timeout)
	}
	if got["literal"].APIKey != "direct-key" || got["literal"].Enabled {
		t.Errorf("unexpected literal provider: %+v", got["literal"])
	}
}

func TestConfig_ScanAndSocial(t *testing.T) {
	t.Setenv("TEST_RAPIDAPI_KEY", "rk")
	cfg := DefaultConfig()
	cfg.Social.APIKey = "${TEST_RAPIDAPI_KEY}"

	sc := cfg.SocialClientConfig()
	if sc.APIKey != "rk" || sc.Timeout != 15*time.Second || sc.PageSize != 30 {
		t.Errorf("unexpected social config: %+v", sc)
	}
	mc := cfg.ScanConfig()
	if mc.CallTimeout != 15*time.Second || mc.CostCeiling != 400 {
		t.Errorf("unexpected scan config: %+v", mc)
	}
}

func TestConfig_HooksConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Defaults.LLMProvider = "openai"
	cfg.Defaults.Model = "gpt-4o"

	hc := cfg.HooksConfig()
	if hc.Provider != "openai" || hc.Model != "gpt-4o" || hc.HookCount != 10 {
		t.Errorf("unexpected hooks config: %+v", hc)
	}
	if hc.Timeout != 120*time.Second {
		t.Errorf("timeout = %v, want the provider's 120s", hc.Timeout)
	}

	cfg.Defaults.LLMProvider = "missing"
	if hc := cfg.HooksConfig(); hc.Timeout != 0 {
		t.Errorf("unknown provider timeout = %v, want 0", hc.Timeout)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	mgr, err := NewManager(path, "")
	if err != nil {
		t.Fatalf("failed to load written config: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), mgr.Get()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_OnChange_Multiple(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "log_level: info\n"), "")
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	// Register multiple callbacks
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "log_level: info\n"), "")
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	// Call Get concurrently with reloads to verify no race conditions
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				_ = mgr.Get().LogLevel
			}
			done <- struct{}{}
		}()
	}
	mgr.reload()

	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	configFile := writeConfig(t, "log_level: info\n")

	mgr, err := NewManager(configFile, "")
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	if got := mgr.Get().LogLevel; got != "info" {
		t.Errorf("initial value mismatch: expected info, got %s", got)
	}

	var callbackCount atomic.Int32
	var lastValue atomic.Value

	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastValue.Store(cfg.LogLevel)
	})

	mgr.WatchConfig()

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(configFile, []byte("log_level: debug\n"), 0o644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v, _ := lastValue.Load().(string); v == "debug" {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Fatal("callback was not invoked after config file change")
	}
	if got := mgr.Get().LogLevel; got != "debug" {
		t.Errorf("config not updated: expected debug, got %s", got)
	}
}
