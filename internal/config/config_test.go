package config

import (
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(testConfigPath(t, "valid.toml"))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.CacheTTL.DurationValue() != 4*time.Hour {
		t.Fatalf("CacheTTL 14400 秒应解析为 4h，得到 %s", cfg.Global.CacheTTL.DurationValue())
	}
	if cfg.Global.UpstreamTimeout.DurationValue() != 30*time.Second {
		t.Fatalf("UpstreamTimeout 应填充默认值")
	}
	if cfg.Global.UpstreamMaxBodyBytes != DefaultMaxBodyBytes {
		t.Fatalf("UpstreamMaxBodyBytes 应填充默认值，得到 %d", cfg.Global.UpstreamMaxBodyBytes)
	}
	if !cfg.Global.EnableDiagnostics {
		t.Fatalf("EnableDiagnostics 默认应开启")
	}
	if cfg.Mirror.RefreshPath != "/refresh-map" || cfg.Mirror.PackagesPath != "/packages.json" {
		t.Fatalf("保留路径应使用默认值: %+v", cfg.Mirror)
	}
	if cfg.Mirror.ArchiveSuffix != ".zip" {
		t.Fatalf("ArchiveSuffix 默认应为 .zip")
	}
}

func TestLoadTrimsRepoBaseSlash(t *testing.T) {
	cfg, err := Load(testConfigPath(t, "valid.toml"))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	want := "https://raw.githubusercontent.com/ErisPulse/ErisPulse-ModuleRepo/main/map.json"
	if got := cfg.Mirror.MapURL(); got != want {
		t.Fatalf("MapURL 期望 %s，得到 %s", want, got)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	if _, err := Load(testConfigPath(t, "invalid.toml")); err == nil {
		t.Fatalf("不合法的配置应返回错误")
	}
}

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Global.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ListenPort 超出范围应当报错")
	}
}

func TestValidateCacheBackend(t *testing.T) {
	testCases := []struct {
		name      string
		mutate    func(*Config)
		shouldErr bool
	}{
		{"disk ok", func(c *Config) {}, false},
		{"redis ok", func(c *Config) { c.Global.CacheBackend = CacheBackendRedis }, false},
		{"redis without addr", func(c *Config) {
			c.Global.CacheBackend = CacheBackendRedis
			c.Global.RedisAddr = ""
		}, true},
		{"disk without storage", func(c *Config) { c.Global.StoragePath = "" }, true},
		{"unsupported backend", func(c *Config) { c.Global.CacheBackend = "memcached" }, true},
		{"zero ttl", func(c *Config) { c.Global.CacheTTL = 0 }, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.shouldErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateReservedPaths(t *testing.T) {
	testCases := []struct {
		name string
		path string
	}{
		{"empty", ""},
		{"relative", "refresh"},
		{"root", "/"},
		{"diagnostics", "/-/refresh"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Mirror.RefreshPath = tc.path
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("RefreshPath %q 应被拒绝", tc.path)
			}
			if _, ok := err.(FieldError); !ok {
				t.Fatalf("期望 FieldError，得到 %T", err)
			}
		})
	}
}

func TestValidateRejectsCollidingPaths(t *testing.T) {
	cfg := validConfig()
	cfg.Mirror.RefreshPath = cfg.Mirror.PackagesPath
	if err := cfg.Validate(); err == nil {
		t.Fatalf("RefreshPath 与 PackagesPath 相同时应报错")
	}
}

func TestValidateArchiveSuffix(t *testing.T) {
	cfg := validConfig()
	cfg.Mirror.ArchiveSuffix = "zip"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("缺少 . 的扩展名应报错")
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenPort:      8080,
			CacheBackend:    CacheBackendDisk,
			StoragePath:     "./data",
			RedisAddr:       "127.0.0.1:6379",
			CacheTTL:        Duration(4 * time.Hour),
			UpstreamTimeout: Duration(time.Second),
		},
		Mirror: MirrorConfig{
			RedirectURL:   "https://www.erisdev.com",
			RepoBase:      "https://raw.githubusercontent.com/ErisPulse/ErisPulse-ModuleRepo/main",
			PackagesURL:   "https://raw.githubusercontent.com/ErisPulse/ErisPulse/main/packages.json",
			PackagesPath:  "/packages.json",
			RefreshPath:   "/refresh-map",
			MapPath:       "/map.json",
			ArchiveSuffix: ".zip",
		},
	}
}
