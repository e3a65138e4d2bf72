package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("database:\n  driver: sqlite\n  dsn: test.db\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Scheduler.Interval != 15*time.Minute {
		t.Fatalf("默认采样间隔应为 15m, 实际 %s", cfg.Scheduler.Interval)
	}
	if cfg.Probe.Timeout != 30*time.Second || cfg.Probe.SettleDelay != 2*time.Second {
		t.Fatalf("probe 默认超时不正确: %+v", cfg.Probe)
	}
	if cfg.Probe.ExcerptLimit != 1000 {
		t.Fatalf("excerpt limit 默认应为 1000, 实际 %d", cfg.Probe.ExcerptLimit)
	}
	if cfg.Classifier.MinSamples != 5 {
		t.Fatalf("min_samples 默认应为 5, 实际 %d", cfg.Classifier.MinSamples)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("driver 应来自文件, 实际 %s", cfg.Database.Driver)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HOURSWATCH_SCHEDULER_INTERVAL", "5m")
	t.Setenv("HOURSWATCH_PROBE_ENGINE", "chrome")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("app:\n  name: test\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Scheduler.Interval != 5*time.Minute {
		t.Fatalf("环境变量应覆盖 interval, 实际 %s", cfg.Scheduler.Interval)
	}
	if cfg.Probe.Engine != "chrome" {
		t.Fatalf("环境变量应覆盖 engine, 实际 %s", cfg.Probe.Engine)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database:   DatabaseConfig{Driver: "postgres"},
			Scheduler:  SchedulerConfig{Interval: time.Minute},
			Probe:      ProbeConfig{Engine: "http", Timeout: 30 * time.Second, SettleDelay: 2 * time.Second},
			Classifier: ClassifierConfig{MinSamples: 5},
			API:        APIConfig{MaxCalendarDays: 10},
			Export:     ExportConfig{MaxDataPoints: 10},
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("合法配置不应报错: %v", err)
	}

	cases := map[string]func(c *Config){
		"driver":       func(c *Config) { c.Database.Driver = "mysql" },
		"interval":     func(c *Config) { c.Scheduler.Interval = 0 },
		"engine":       func(c *Config) { c.Probe.Engine = "curl" },
		"settle":       func(c *Config) { c.Probe.SettleDelay = time.Minute },
		"min_samples":  func(c *Config) { c.Classifier.MinSamples = 0 },
		"telegram":     func(c *Config) { c.Alerting.Telegram.Enabled = true },
		"email":        func(c *Config) { c.Alerting.Email.Enabled = true },
		"max_calendar": func(c *Config) { c.API.MaxCalendarDays = 0 },
	}
	for name, mutate := range cases {
		cfg := valid()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: 非法配置应报错", name)
		}
	}
}
