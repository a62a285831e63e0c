package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// DiagnosticsPrefix 为诊断接口保留的路径前缀，镜像路径不得占用。
const DiagnosticsPrefix = "/-/"

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	switch g.CacheBackend {
	case CacheBackendDisk:
		if g.StoragePath == "" {
			return newFieldError("Global.StoragePath", "disk 后端不能为空")
		}
	case CacheBackendRedis:
		if strings.TrimSpace(g.RedisAddr) == "" {
			return newFieldError("Global.RedisAddr", "redis 后端不能为空")
		}
		if g.RedisDB < 0 {
			return newFieldError("Global.RedisDB", "不能为负数")
		}
	default:
		return newFieldError("Global.CacheBackend", "仅支持 disk|redis")
	}
	if g.CacheTTL.DurationValue() <= 0 {
		return newFieldError("Global.CacheTTL", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.UpstreamMaxBodyBytes < 0 {
		return newFieldError("Global.UpstreamMaxBodyBytes", "不能为负数")
	}

	m := c.Mirror
	if err := validateUpstream(m.RedirectURL); err != nil {
		return fmt.Errorf("%s: %w", mirrorField("RedirectURL"), err)
	}
	if err := validateUpstream(m.RepoBase); err != nil {
		return fmt.Errorf("%s: %w", mirrorField("RepoBase"), err)
	}
	if err := validateUpstream(m.PackagesURL); err != nil {
		return fmt.Errorf("%s: %w", mirrorField("PackagesURL"), err)
	}

	reserved := map[string]string{
		"PackagesPath": m.PackagesPath,
		"RefreshPath":  m.RefreshPath,
		"MapPath":      m.MapPath,
	}
	for _, name := range []string{"PackagesPath", "RefreshPath", "MapPath"} {
		if err := validatePath(reserved[name]); err != nil {
			return newFieldError(mirrorField(name), err.Error())
		}
	}
	if m.PackagesPath == m.RefreshPath {
		return newFieldError(mirrorField("RefreshPath"), "不能与 PackagesPath 相同")
	}

	if !strings.HasPrefix(m.ArchiveSuffix, ".") || len(m.ArchiveSuffix) < 2 {
		return newFieldError(mirrorField("ArchiveSuffix"), "必须是以 . 开头的扩展名")
	}

	return nil
}

func validatePath(p string) error {
	if p == "" {
		return errors.New("不能为空")
	}
	if !strings.HasPrefix(p, "/") {
		return errors.New("必须以 / 开头")
	}
	if p == "/" {
		return errors.New("不能占用根路径")
	}
	if strings.HasPrefix(p, DiagnosticsPrefix) {
		return fmt.Errorf("不能位于诊断前缀 %s 下", DiagnosticsPrefix)
	}
	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("缺少 Host: %s", raw)
	}
	return nil
}
