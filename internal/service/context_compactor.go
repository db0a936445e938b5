package service

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/qs3c/devhance_server/internal/pkg/githubapi"
	"github.com/qs3c/devhance_server/internal/pkg/logger"
)

// TreeSource 读取仓库目录树与文件内容
type TreeSource interface {
	GetTree(ctx context.Context, owner, name, branch string) (*githubapi.Tree, error)
	GetFileContent(ctx context.Context, owner, name, filePath, ref string) (string, error)
}

const (
	truncationMarker = "\n... [truncated]"
	maxPathRunes     = 200
	maxNameRunes     = 200
	maxBranchRunes   = 100
	maxKeyFolders    = 12

	// 摘要行与每个文件块标题的最大开销，用于计算输出上限
	summaryOverhead = 512
	fileOverhead    = 256
)

var manifestFiles = map[string]bool{
	"package.json":        true,
	"go.mod":              true,
	"cargo.toml":          true,
	"pyproject.toml":      true,
	"requirements.txt":    true,
	"setup.py":            true,
	"pom.xml":             true,
	"build.gradle":        true,
	"build.gradle.kts":    true,
	"gemfile":             true,
	"composer.json":       true,
	"dockerfile":          true,
	"docker-compose.yml":  true,
	"docker-compose.yaml": true,
	"makefile":            true,
}

var sourceDirs = map[string]bool{
	"src":        true,
	"app":        true,
	"lib":        true,
	"components": true,
	"pkg":        true,
	"internal":   true,
}

type CompactorOptions struct {
	PrimaryBranch  string
	FallbackBranch string
	MaxFiles       int
	PerFileChars   int
	Concurrency    int
}

// RepoDigest 压缩后的仓库上下文
type RepoDigest struct {
	Text       string
	Branch     string
	TotalFiles int
	Files      []string
	KeyFolders []string
}

// ContextCompactor 从目录树中挑选少量高价值文件，拼成有长度上限的文本
type ContextCompactor struct {
	source TreeSource
	opts   CompactorOptions
	log    logger.Logger
}

func NewContextCompactor(source TreeSource, opts CompactorOptions, log logger.Logger) *ContextCompactor {
	if log == nil {
		log = logger.Nop()
	}
	if opts.PrimaryBranch == "" {
		opts.PrimaryBranch = "main"
	}
	if opts.FallbackBranch == "" {
		opts.FallbackBranch = "master"
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = 20
	}
	if opts.PerFileChars <= 0 {
		opts.PerFileChars = 2000
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &ContextCompactor{source: source, opts: opts, log: log}
}

// MaxOutputLen 输出文本的字符数上限
func MaxOutputLen(maxFiles, perFileChars int) int {
	return summaryOverhead + maxFiles*(fileOverhead+perFileChars)
}

// MaxOutputLen 当前配置下的字符数上限
func (c *ContextCompactor) MaxOutputLen() int {
	return MaxOutputLen(c.opts.MaxFiles, c.opts.PerFileChars)
}

// Compact 生成仓库上下文。目录树两个分支都取不到时返回空文本并标记降级，空上下文对调用方合法。
// branch 为空时使用配置的主分支。
func (c *ContextCompactor) Compact(ctx context.Context, owner, name, branch string) Resolved[*RepoDigest] {
	primary, fallback := c.branches(branch)

	tree, err := c.source.GetTree(ctx, owner, name, primary)
	used := primary
	if err != nil {
		c.log.Warn(ctx, "tree unavailable on primary branch", "repo", owner+"/"+name, "branch", primary, "error", err)
		tree, err = c.source.GetTree(ctx, owner, name, fallback)
		used = fallback
	}
	if err != nil {
		c.log.Warn(ctx, "tree unavailable, continuing with empty context", "repo", owner+"/"+name, "error", err)
		return degraded(&RepoDigest{}, "repository tree unavailable")
	}

	blobs := 0
	for _, e := range tree.Entries {
		if e.Type == "blob" {
			blobs++
		}
	}

	selected := selectFiles(tree.Entries, c.opts.MaxFiles)
	contents := c.fetch(ctx, owner, name, used, selected)

	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s (%d files in tree)\nBranch: %s\n",
		clip(owner+"/"+name, maxNameRunes), blobs, clip(used, maxBranchRunes))

	digest := &RepoDigest{
		Branch:     used,
		TotalFiles: blobs,
		KeyFolders: keyFolders(tree.Entries),
	}
	for i, p := range selected {
		if contents[i] == nil {
			continue
		}
		fmt.Fprintf(&b, "\n--- FILE: %s ---\n%s\n", clip(p, maxPathRunes), truncateRunes(*contents[i], c.opts.PerFileChars))
		digest.Files = append(digest.Files, p)
	}
	digest.Text = b.String()

	if tree.Truncated {
		c.log.Info(ctx, "tree listing truncated upstream", "repo", owner+"/"+name)
	}
	return ok(digest)
}

func (c *ContextCompactor) branches(branch string) (primary, fallback string) {
	primary = branch
	if primary == "" {
		primary = c.opts.PrimaryBranch
	}
	fallback = c.opts.FallbackBranch
	if fallback == primary {
		fallback = c.opts.PrimaryBranch
	}
	return primary, fallback
}

// fetch 并发读取文件，保持顺序，失败的文件为 nil
func (c *ContextCompactor) fetch(ctx context.Context, owner, name, ref string, paths []string) []*string {
	out := make([]*string, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for i, p := range paths {
		g.Go(func() error {
			content, err := c.source.GetFileContent(gctx, owner, name, p, ref)
			if err != nil {
				c.log.Warn(ctx, "skip unreadable file", "path", p, "error", err)
				return nil
			}
			out[i] = &content
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// filePriority README > 依赖清单 > 源码目录下的直接文件 > cmd/*/main.go，其余不选
func filePriority(p string) (int, bool) {
	base := strings.ToLower(path.Base(p))
	depth := strings.Count(p, "/")

	if depth == 0 && strings.HasPrefix(base, "readme") {
		return 0, true
	}
	if depth == 0 && manifestFiles[base] {
		return 1, true
	}
	if depth == 1 && sourceDirs[strings.ToLower(strings.SplitN(p, "/", 2)[0])] {
		return 2, true
	}
	if depth == 2 && strings.HasPrefix(p, "cmd/") && base == "main.go" {
		return 3, true
	}
	return 0, false
}

func selectFiles(entries []githubapi.TreeEntry, max int) []string {
	type candidate struct {
		path     string
		priority int
		order    int
	}
	var cands []candidate
	for i, e := range entries {
		if e.Type != "blob" {
			continue
		}
		if prio, ok := filePriority(e.Path); ok {
			cands = append(cands, candidate{path: e.Path, priority: prio, order: i})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].priority != cands[j].priority {
			return cands[i].priority < cands[j].priority
		}
		return cands[i].order < cands[j].order
	})

	if len(cands) > max {
		cands = cands[:max]
	}
	paths := make([]string, len(cands))
	for i, c := range cands {
		paths[i] = c.path
	}
	return paths
}

// keyFolders 顶层目录，按名称排序
func keyFolders(entries []githubapi.TreeEntry) []string {
	seen := make(map[string]bool)
	for _, e := range entries {
		if e.Type == "tree" && !strings.Contains(e.Path, "/") {
			seen[e.Path] = true
			continue
		}
		if i := strings.Index(e.Path, "/"); i > 0 {
			seen[e.Path[:i]] = true
		}
	}
	folders := make([]string, 0, len(seen))
	for f := range seen {
		if strings.HasPrefix(f, ".") {
			continue
		}
		folders = append(folders, f)
	}
	sort.Strings(folders)
	if len(folders) > maxKeyFolders {
		folders = folders[:maxKeyFolders]
	}
	return folders
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + truncationMarker
}

func clip(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
