package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/qs3c/devhance_server/internal/pkg/githubapi"
	"github.com/qs3c/devhance_server/internal/pkg/logger"
	"github.com/qs3c/devhance_server/internal/pkg/repourl"
)

const unknown = "Unknown"

// MetadataSource 仓库托管平台的只读接口
type MetadataSource interface {
	GetRepo(ctx context.Context, owner, name string) (*githubapi.Repository, error)
	GetLanguages(ctx context.Context, owner, name string) (map[string]int64, error)
	GetUser(ctx context.Context, login string) (*githubapi.User, error)
	GetCommitStats(ctx context.Context, owner, name string) (*githubapi.CommitStats, error)
}

// OwnerProfile 仓库所有者公开资料
type OwnerProfile struct {
	Login       string `json:"login"`
	Name        string `json:"name,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Bio         string `json:"bio,omitempty"`
	Company     string `json:"company,omitempty"`
	Location    string `json:"location,omitempty"`
	Blog        string `json:"blog,omitempty"`
	PublicRepos int    `json:"publicRepos"`
	Followers   int    `json:"followers"`
}

// RepoMetadata 用于 prompt 的仓库元数据，同时作为 metrics 保存
type RepoMetadata struct {
	Owner           string           `json:"owner"`
	Name            string           `json:"name"`
	FullName        string           `json:"fullName"`
	Description     string           `json:"description"`
	Stars           int              `json:"stars"`
	PrimaryLanguage string           `json:"primaryLanguage"`
	Languages       map[string]int64 `json:"languages,omitempty"`
	DefaultBranch   string           `json:"defaultBranch,omitempty"`
	TotalCommits    int              `json:"totalCommits"`
	ActivePeriod    string           `json:"activePeriod"`
	OwnerProfile    OwnerProfile     `json:"ownerProfile"`
}

// MetadataResolver 汇总仓库元数据，任一上游失败都降级为占位值而不是报错
type MetadataResolver struct {
	source MetadataSource
	log    logger.Logger
}

func NewMetadataResolver(source MetadataSource, log logger.Logger) *MetadataResolver {
	if log == nil {
		log = logger.Nop()
	}
	return &MetadataResolver{source: source, log: log}
}

// fallbackMetadata 上游不可用时的保守占位
func fallbackMetadata(repo repourl.Repo) *RepoMetadata {
	return &RepoMetadata{
		Owner:           repo.Owner,
		Name:            repo.Name,
		FullName:        repo.FullName(),
		PrimaryLanguage: unknown,
		ActivePeriod:    unknown,
		OwnerProfile:    OwnerProfile{Login: repo.Owner},
	}
}

// Resolve 解析 URL 后获取元数据，只有 URL 非法时返回 error
func (r *MetadataResolver) Resolve(ctx context.Context, rawURL string) (Resolved[*RepoMetadata], error) {
	repo, err := repourl.Parse(rawURL)
	if err != nil {
		return Resolved[*RepoMetadata]{}, err
	}
	return r.ResolveRepo(ctx, repo), nil
}

func (r *MetadataResolver) ResolveRepo(ctx context.Context, repo repourl.Repo) Resolved[*RepoMetadata] {
	meta := fallbackMetadata(repo)

	info, err := r.source.GetRepo(ctx, repo.Owner, repo.Name)
	if err != nil {
		r.log.Warn(ctx, "repository metadata unavailable", "repo", repo.FullName(), "error", err)
		return degraded(meta, "repository metadata unavailable")
	}

	meta.Description = info.Description
	meta.Stars = info.StargazersCount
	meta.DefaultBranch = info.DefaultBranch
	if info.Language != "" {
		meta.PrimaryLanguage = info.Language
	}

	var (
		g        errgroup.Group
		langs    map[string]int64
		stats    *githubapi.CommitStats
		profile  *githubapi.User
		langErr  error
		statErr  error
		ownerErr error
	)
	g.Go(func() error {
		langs, langErr = r.source.GetLanguages(ctx, repo.Owner, repo.Name)
		return nil
	})
	g.Go(func() error {
		stats, statErr = r.source.GetCommitStats(ctx, repo.Owner, repo.Name)
		return nil
	})
	g.Go(func() error {
		profile, ownerErr = r.source.GetUser(ctx, repo.Owner)
		return nil
	})
	_ = g.Wait()

	var reasons []string
	if langErr != nil {
		reasons = append(reasons, "languages")
	} else {
		meta.Languages = langs
		if meta.PrimaryLanguage == unknown {
			meta.PrimaryLanguage = topLanguage(langs)
		}
	}

	if statErr != nil {
		reasons = append(reasons, "commit history")
	} else {
		meta.TotalCommits = stats.Total
		meta.ActivePeriod = activePeriod(stats.First, stats.Latest)
	}

	if ownerErr != nil {
		reasons = append(reasons, "owner profile")
	} else {
		meta.OwnerProfile = OwnerProfile{
			Login:       profile.Login,
			Name:        profile.Name,
			AvatarURL:   profile.AvatarURL,
			Bio:         profile.Bio,
			Company:     profile.Company,
			Location:    profile.Location,
			Blog:        profile.Blog,
			PublicRepos: profile.PublicRepos,
			Followers:   profile.Followers,
		}
	}

	if len(reasons) > 0 {
		r.log.Warn(ctx, "repository metadata partially unavailable",
			"repo", repo.FullName(), "missing", strings.Join(reasons, ","),
			"languages_error", errString(langErr), "commits_error", errString(statErr), "owner_error", errString(ownerErr))
		return degraded(meta, fmt.Sprintf("%s unavailable", strings.Join(reasons, ", ")))
	}
	return ok(meta)
}

// topLanguage 按字节数取最多的语言
func topLanguage(langs map[string]int64) string {
	names := make([]string, 0, len(langs))
	for name := range langs {
		names = append(names, name)
	}
	if len(names) == 0 {
		return unknown
	}
	sort.Slice(names, func(i, j int) bool {
		if langs[names[i]] != langs[names[j]] {
			return langs[names[i]] > langs[names[j]]
		}
		return names[i] < names[j]
	})
	return names[0]
}

// activePeriod 形如 "Jan 2021 - Jun 2024"
func activePeriod(first, latest time.Time) string {
	if first.IsZero() || latest.IsZero() {
		return unknown
	}
	const layout = "Jan 2006"
	return first.UTC().Format(layout) + " - " + latest.UTC().Format(layout)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
