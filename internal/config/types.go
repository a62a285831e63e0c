package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"4h" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// DefaultMaxBodyBytes 是上游响应体默认的缓冲上限（256 MiB）。
const DefaultMaxBodyBytes int64 = 256 << 20

// 支持的缓存后端。
const (
	CacheBackendDisk  = "disk"
	CacheBackendRedis = "redis"
)

// GlobalConfig 描述进程级运行参数：监听、日志、缓存后端与上游超时。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	CacheBackend    string   `mapstructure:"CacheBackend"`
	StoragePath     string   `mapstructure:"StoragePath"`
	RedisAddr       string   `mapstructure:"RedisAddr"`
	RedisPassword   string   `mapstructure:"RedisPassword"`
	RedisDB         int      `mapstructure:"RedisDB"`
	CacheTTL        Duration `mapstructure:"CacheTTL"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`

	// UpstreamMaxBodyBytes 限制单个上游响应体的缓冲上限（字节）。
	UpstreamMaxBodyBytes int64 `mapstructure:"UpstreamMaxBodyBytes"`
	EnableDiagnostics    bool  `mapstructure:"EnableDiagnostics"`
}

// MirrorConfig 描述镜像上游与保留路径，默认值对应 ErisPulse 模块仓库。
type MirrorConfig struct {
	RedirectURL   string `mapstructure:"RedirectURL"`
	RepoBase      string `mapstructure:"RepoBase"`
	PackagesURL   string `mapstructure:"PackagesURL"`
	PackagesPath  string `mapstructure:"PackagesPath"`
	RefreshPath   string `mapstructure:"RefreshPath"`
	MapPath       string `mapstructure:"MapPath"`
	ArchiveSuffix string `mapstructure:"ArchiveSuffix"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Mirror MirrorConfig `mapstructure:"Mirror"`
}

// MapURL 返回 map.json 在上游的规范地址，同时也是它的缓存键。
func (m MirrorConfig) MapURL() string {
	return m.RepoBase + m.MapPath
}

// CacheSummary 输出 `disk:/path` 或 `redis:host:port`，供启动日志使用。
func (g GlobalConfig) CacheSummary() string {
	if g.CacheBackend == CacheBackendRedis {
		return fmt.Sprintf("%s:%s/%d", g.CacheBackend, g.RedisAddr, g.RedisDB)
	}
	return fmt.Sprintf("%s:%s", g.CacheBackend, g.StoragePath)
}
