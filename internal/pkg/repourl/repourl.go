// Package repourl 仓库地址的规范化与解析，规范化结果是去重和缓存的唯一键。
package repourl

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/qs3c/devhance_server/internal/pkg/apperr"
)

var hosts = map[string]bool{
	"github.com":     true,
	"www.github.com": true,
}

const canonicalBase = "https://github.com/"

// Repo 已解析的仓库坐标
type Repo struct {
	URL   string // 规范形式 https://github.com/<owner>/<name>，全小写
	Owner string
	Name  string
}

// FullName owner/name
func (r Repo) FullName() string {
	return r.Owner + "/" + r.Name
}

// Normalize 去掉末尾的 "/" 与 ".git"，二者任意顺序叠加时结果一致
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	for {
		trimmed := strings.TrimSuffix(strings.TrimSuffix(s, "/"), ".git")
		if trimmed == s {
			return s
		}
		s = trimmed
	}
}

// Parse 校验为 GitHub 仓库地址并给出去重用的规范地址
func Parse(raw string) (Repo, error) {
	normalized := Normalize(raw)
	if normalized == "" {
		return Repo{}, apperr.Validation("repo_url", "repository URL is required")
	}

	u, err := url.Parse(normalized)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") {
		return Repo{}, apperr.Validation("repo_url", "must be an http(s) URL")
	}
	if !hosts[strings.ToLower(u.Host)] {
		return Repo{}, apperr.Validation("repo_url", fmt.Sprintf("unsupported host %q", u.Host))
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return Repo{}, apperr.Validation("repo_url", "must not contain a query or fragment")
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Repo{}, apperr.Validation("repo_url", "must point at owner/repository")
	}

	// GitHub 的 owner 与仓库名不区分大小写，scheme 和 www 前缀也不影响指向
	canonical := canonicalBase + strings.ToLower(parts[0]) + "/" + strings.ToLower(parts[1])
	return Repo{URL: canonical, Owner: parts[0], Name: parts[1]}, nil
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Slug 仓库名小写、非字母数字折叠为 "-"，再拼接时间尾数。
// 唯一性最终由存储层约束保证。
func Slug(repoName string, now time.Time) string {
	base := strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(repoName), "-"), "-")
	if base == "" {
		base = "project"
	}
	return fmt.Sprintf("%s-%04d", base, now.UnixMilli()%10000)
}
