// Package mirror maps inbound paths onto the upstream module repository.
// It holds the three pieces of mirror behavior that sit between the HTTP
// router and the upstream fetcher: deciding which paths are JSON, resolving
// a path with the archive-suffix fallback, and refreshing the map.json entry.
package mirror

import "strings"

// ContentTypeJSON 是 JSON 类路径强制使用的 Content-Type。
const ContentTypeJSON = "application/json"

// Classifier 判断路径是否应按 JSON 返回。
type Classifier struct {
	mapPath      string
	packagesPath string
}

// NewClassifier 使用 map.json 与 packages.json 的保留路径构建分类器。
func NewClassifier(mapPath, packagesPath string) Classifier {
	return Classifier{mapPath: mapPath, packagesPath: packagesPath}
}

// IsJSON 对以 .json 结尾的路径、map.json 及其双斜杠变体、packages 路径返回 true。
func (c Classifier) IsJSON(path string) bool {
	switch {
	case strings.HasSuffix(path, ".json"):
		return true
	case path == c.mapPath, path == "/"+c.mapPath:
		return true
	case path == c.packagesPath:
		return true
	}
	return false
}
