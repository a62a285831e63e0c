package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/erispulse/repo-mirror/internal/config"
)

func TestConfigureDefaultsToStdout(t *testing.T) {
	logger, err := InitLogger(config.GlobalConfig{LogLevel: "info"})
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	if logger.Out != os.Stdout {
		t.Fatalf("未指定文件时应输出到 stdout")
	}
}

func TestInitLoggerFallbackWhenDirUnusable(t *testing.T) {
	// 父路径是普通文件，MkdirAll 对任何用户（包括 root）都会失败。
	blocked := filepath.Join(t.TempDir(), "blocked")
	if err := os.WriteFile(blocked, []byte("not a dir"), 0o600); err != nil {
		t.Fatalf("创建文件失败: %v", err)
	}

	cfg := config.GlobalConfig{
		LogLevel:    "info",
		LogFilePath: filepath.Join(blocked, "sub", "repo-mirror.log"),
	}
	logger, err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("初始化不应失败: %v", err)
	}
	if logger.Out != os.Stdout {
		t.Fatalf("fallback 时应退回 stdout")
	}
}

func TestConfigureCreatesRotatingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "repo-mirror.log")
	cfg := config.GlobalConfig{LogLevel: "debug", LogFilePath: path}
	logger, err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	logger.Info("test")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("预期创建日志文件: %v", err)
	}
}

func TestServiceHookAddsFields(t *testing.T) {
	logger := NewDiscardLogger()
	buf := &bytes.Buffer{}
	logger.SetOutput(buf)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.AddHook(serviceHook{version: "1.2.3"})

	logger.WithField("action", "test").Info("hello")

	out := buf.String()
	if !strings.Contains(out, `"service":"repo-mirror"`) {
		t.Fatalf("日志应包含 service 字段: %s", out)
	}
	if !strings.Contains(out, `"version":"1.2.3"`) {
		t.Fatalf("日志应包含 version 字段: %s", out)
	}
}

func TestRequestFields(t *testing.T) {
	fields := RequestFields("mirror", "/map.json", "https://example.com/map.json", 200, true)
	if fields["branch"] != "mirror" || fields["upstream_status"] != 200 || fields["cache_hit"] != true {
		t.Fatalf("字段不符合预期: %v", fields)
	}
}
