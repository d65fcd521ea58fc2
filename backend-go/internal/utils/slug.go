package utils

import (
	"regexp"
	"strings"
)

var (
	slugInvalidChars = regexp.MustCompile(`[^a-z0-9]+`)
	slugPattern      = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)
)

// Slugify 从名称派生 slug: 小写、非字母数字折叠为 "-"、去掉首尾 "-"
// 如 "Finance Reports 2024" -> "finance-reports-2024"
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugInvalidChars.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	return s
}

// IsValidSlug 校验自定义 slug
// slug 会用于索引名和 Pipeline 名，只允许小写字母数字和中划线
func IsValidSlug(slug string) bool {
	if slug == "" || len(slug) > 100 {
		return false
	}
	return slugPattern.MatchString(slug)
}
