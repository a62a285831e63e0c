package mirror

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/erispulse/repo-mirror/internal/cache"
	"github.com/erispulse/repo-mirror/internal/upstream"
)

// RefreshMessage 是刷新接口固定返回的确认文案。
const RefreshMessage = "GitHub map.json cache refreshed"

// RefreshReport 记录一次刷新中删除与重新预热各自的结果。
type RefreshReport struct {
	Deleted        bool
	Reprimed       bool
	DeleteErr      error
	FetchErr       error
	UpstreamStatus int
}

// Result 返回 ok / delete_failed / reprime_failed，用于日志与指标标签。
func (r RefreshReport) Result() string {
	switch {
	case !r.Deleted:
		return "delete_failed"
	case !r.Reprimed:
		return "reprime_failed"
	default:
		return "ok"
	}
}

// Invalidator 删除 map.json 的缓存条目并立即重新拉取以预热。
type Invalidator struct {
	store     cache.Store
	fetcher   Fetcher
	mapURL    string
	directive upstream.Directive
	logger    *logrus.Logger
}

// NewInvalidator 构建 Invalidator。store 为空时仅执行重新拉取。
func NewInvalidator(store cache.Store, fetcher Fetcher, mapURL string, directive upstream.Directive, logger *logrus.Logger) *Invalidator {
	return &Invalidator{
		store:     store,
		fetcher:   fetcher,
		mapURL:    mapURL,
		directive: directive,
		logger:    logger,
	}
}

// MapURL 返回被刷新的规范地址（也是缓存键）。
func (i *Invalidator) MapURL() string {
	return i.mapURL
}

// Refresh 执行删除 + 重新预热，并始终返回固定的 200 确认响应；
// 中间步骤的失败只体现在 RefreshReport、日志与指标里。
func (i *Invalidator) Refresh(ctx context.Context) (*upstream.Response, RefreshReport) {
	var report RefreshReport

	if i.store != nil {
		if err := i.store.Delete(ctx, i.mapURL); err != nil {
			report.DeleteErr = err
		} else {
			report.Deleted = true
		}
	} else {
		report.Deleted = true
	}

	if report.Deleted {
		resp, err := i.fetcher.Fetch(ctx, i.mapURL, i.directive)
		switch {
		case err != nil:
			report.FetchErr = err
		default:
			report.UpstreamStatus = resp.StatusCode
			report.Reprimed = resp.StatusCode >= 200 && resp.StatusCode < 300
		}
	}

	RefreshTotal.WithLabelValues(report.Result()).Inc()
	i.log(report)
	return acknowledgement(), report
}

func (i *Invalidator) log(report RefreshReport) {
	if i.logger == nil {
		return
	}
	fields := logrus.Fields{
		"action":          "refresh_map",
		"upstream":        i.mapURL,
		"result":          report.Result(),
		"upstream_status": report.UpstreamStatus,
	}
	entry := i.logger.WithFields(fields)
	switch {
	case report.DeleteErr != nil:
		entry.WithError(report.DeleteErr).Warn("refresh_delete_failed")
	case report.FetchErr != nil:
		entry.WithError(report.FetchErr).Warn("refresh_reprime_failed")
	case !report.Reprimed:
		entry.Warn("refresh_reprime_failed")
	default:
		entry.Info("refresh_complete")
	}
}

func acknowledgement() *upstream.Response {
	body, _ := json.Marshal(struct {
		Message string `json:"message"`
	}{Message: RefreshMessage})

	header := http.Header{}
	header.Set("Content-Type", ContentTypeJSON)
	header.Set("Cache-Control", "no-store")
	return &upstream.Response{
		StatusCode: http.StatusOK,
		Header:     header,
		Body:       body,
	}
}
