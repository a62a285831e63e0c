package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// DefaultPath 是未显式指定配置文件时尝试读取的路径。
const DefaultPath = "config.toml"

// EnvPrefix 是所有环境变量覆盖项的前缀，例如 REPO_MIRROR_LISTENPORT。
const EnvPrefix = "REPO_MIRROR"

// Load 读取并解析 TOML 配置文件，同时注入默认值、环境变量覆盖与校验逻辑。
// path 为空时尝试 DefaultPath，文件不存在则只使用默认值。
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil || explicit {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyMirrorDefaults(&cfg.Mirror)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Global.CacheBackend == CacheBackendDisk {
		absStorage, err := filepath.Abs(cfg.Global.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("无法解析缓存目录: %w", err)
		}
		cfg.Global.StoragePath = absStorage
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 8080)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("CacheBackend", CacheBackendDisk)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("RedisAddr", "127.0.0.1:6379")
	v.SetDefault("RedisPassword", "")
	v.SetDefault("RedisDB", 0)
	v.SetDefault("CacheTTL", "4h")
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("UpstreamMaxBodyBytes", DefaultMaxBodyBytes)
	v.SetDefault("EnableDiagnostics", true)

	v.SetDefault("Mirror.RedirectURL", "https://www.erisdev.com")
	v.SetDefault("Mirror.RepoBase", "https://raw.githubusercontent.com/ErisPulse/ErisPulse-ModuleRepo/main")
	v.SetDefault("Mirror.PackagesURL", "https://raw.githubusercontent.com/ErisPulse/ErisPulse/main/packages.json")
	v.SetDefault("Mirror.PackagesPath", "/packages.json")
	v.SetDefault("Mirror.RefreshPath", "/refresh-map")
	v.SetDefault("Mirror.MapPath", "/map.json")
	v.SetDefault("Mirror.ArchiveSuffix", ".zip")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 8080
	}
	g.CacheBackend = strings.ToLower(strings.TrimSpace(g.CacheBackend))
	if g.CacheBackend == "" {
		g.CacheBackend = CacheBackendDisk
	}
	if g.CacheTTL.DurationValue() == 0 {
		g.CacheTTL = Duration(4 * time.Hour)
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	if g.UpstreamMaxBodyBytes == 0 {
		g.UpstreamMaxBodyBytes = DefaultMaxBodyBytes
	}
}

func applyMirrorDefaults(m *MirrorConfig) {
	m.RepoBase = strings.TrimRight(strings.TrimSpace(m.RepoBase), "/")
	m.RedirectURL = strings.TrimSpace(m.RedirectURL)
	m.PackagesURL = strings.TrimSpace(m.PackagesURL)
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
