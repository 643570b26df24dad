package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("无配置文件时应回落到默认值: %v", err)
	}

	if cfg.Database.Backend != "sqlite" {
		t.Fatalf("默认后端应为 sqlite, 实际 %s", cfg.Database.Backend)
	}
	if cfg.Scheduler.At != "09:00" {
		t.Fatalf("默认检查时间应为 09:00, 实际 %s", cfg.Scheduler.At)
	}
	if cfg.Sources.RequestTimeout != 5*time.Second {
		t.Fatalf("默认请求超时应为 5s, 实际 %s", cfg.Sources.RequestTimeout)
	}
	if cfg.Monitor.PassTimeout != 30*time.Second {
		t.Fatalf("默认 pass 超时应为 30s, 实际 %s", cfg.Monitor.PassTimeout)
	}
	if cfg.Alerting.Enabled {
		t.Fatal("告警默认应关闭")
	}
	if cfg.Sources.Crypto.CoinIDs["BTC-USD"] != "bitcoin" {
		t.Fatalf("默认 coin 映射缺失: %v", cfg.Sources.Crypto.CoinIDs)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
database:
  backend: postgres
  dsn: postgres://localhost/monitor
scheduler:
  at: "16:30"
sources:
  request_timeout: 2s
alerting:
  enabled: true
  recipient: ops@example.com
  smtp:
    host: mail.example.com
    username: monitor
    password: secret
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("解析配置失败: %v", err)
	}

	if cfg.Database.Backend != "postgres" {
		t.Fatalf("backend 应为 postgres, 实际 %s", cfg.Database.Backend)
	}
	if cfg.Scheduler.At != "16:30" {
		t.Fatalf("scheduler.at 应为 16:30, 实际 %s", cfg.Scheduler.At)
	}
	if cfg.Sources.RequestTimeout != 2*time.Second {
		t.Fatalf("request_timeout 应为 2s, 实际 %s", cfg.Sources.RequestTimeout)
	}
	if cfg.Alerting.SMTP.Host != "mail.example.com" {
		t.Fatalf("smtp.host 不正确: %s", cfg.Alerting.SMTP.Host)
	}
	// 未覆盖的键应保留默认值。
	if cfg.Alerting.SMTP.Port != 587 {
		t.Fatalf("smtp.port 应保留默认 587, 实际 %d", cfg.Alerting.SMTP.Port)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("加载默认配置失败: %v", err)
		}
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Database.Backend = "mysql" }},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }},
		{"postgres without dsn", func(c *Config) { c.Database.Backend = "postgres" }},
		{"bad schedule time", func(c *Config) { c.Scheduler.At = "9am" }},
		{"zero request timeout", func(c *Config) { c.Sources.RequestTimeout = 0 }},
		{"zero pass timeout", func(c *Config) { c.Monitor.PassTimeout = 0 }},
		{"alerting without recipient", func(c *Config) {
			c.Alerting.Enabled = true
			c.Alerting.SMTP.Username = "monitor"
		}},
		{"alerting without username", func(c *Config) {
			c.Alerting.Enabled = true
			c.Alerting.Recipient = "ops@example.com"
		}},
	}
	for _, tc := range cases {
		cfg := base()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: 应校验失败", tc.name)
		}
	}
}

func TestValidateIntervalSkipsAt(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("加载默认配置失败: %v", err)
	}
	cfg.Scheduler.Interval = time.Minute
	cfg.Scheduler.At = "not-a-time"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("interval 模式不应校验 At: %v", err)
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 1000}}
	if got := cfg.ResolveMaxPoints(0); got != 1000 {
		t.Fatalf("无覆盖时应取配置值, 实际 %d", got)
	}
	if got := cfg.ResolveMaxPoints(50); got != 50 {
		t.Fatalf("覆盖值应优先, 实际 %d", got)
	}
}
