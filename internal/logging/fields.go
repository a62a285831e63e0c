package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供分支/路径/上游/命中状态字段，供代理请求日志复用。
func RequestFields(branch, path, upstream string, status int, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"branch":          branch,
		"path":            path,
		"upstream":        upstream,
		"upstream_status": status,
		"cache_hit":       cacheHit,
	}
}
