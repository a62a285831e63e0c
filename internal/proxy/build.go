package proxy

import (
	"github.com/sirupsen/logrus"

	"github.com/erispulse/repo-mirror/internal/cache"
	"github.com/erispulse/repo-mirror/internal/config"
	"github.com/erispulse/repo-mirror/internal/mirror"
	"github.com/erispulse/repo-mirror/internal/upstream"
)

// DirectiveFor 返回所有上游请求共用的缓存指令。
func DirectiveFor(cfg *config.Config) upstream.Directive {
	return upstream.Directive{
		CacheEverything: true,
		TTL:             cfg.Global.CacheTTL.DurationValue(),
	}
}

// NewFromConfig 按配置组装 Classifier / Resolver / Invalidator 并返回 Handler。
// store 必须与 fetcher 写入的缓存是同一个，刷新时才能删除正确的条目。
func NewFromConfig(cfg *config.Config, fetcher mirror.Fetcher, store cache.Store, logger *logrus.Logger) (*Handler, error) {
	m := cfg.Mirror
	directive := DirectiveFor(cfg)

	return NewHandler(Options{
		Logger:      logger,
		Fetcher:     fetcher,
		Resolver:    mirror.NewResolver(fetcher, m.RepoBase, m.ArchiveSuffix, directive),
		Invalidator: mirror.NewInvalidator(store, fetcher, m.MapURL(), directive, logger),
		Classifier:  mirror.NewClassifier(m.MapPath, m.PackagesPath),
		Routes: Routes{
			RedirectURL:  m.RedirectURL,
			RefreshPath:  m.RefreshPath,
			PackagesPath: m.PackagesPath,
			PackagesURL:  m.PackagesURL,
		},
		Directive: directive,
	})
}
