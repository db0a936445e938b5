// Package githubapi 只读访问 GitHub REST API，供元数据解析与上下文压缩使用。
package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const maxFileBytes = 1 << 20

// StatusError 上游返回非 2xx
type StatusError struct {
	StatusCode int
	Path       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("github api %s: status %d", e.Path, e.StatusCode)
}

type Owner struct {
	Login string `json:"login"`
}

type Repository struct {
	Name            string    `json:"name"`
	FullName        string    `json:"full_name"`
	Description     string    `json:"description"`
	StargazersCount int       `json:"stargazers_count"`
	Language        string    `json:"language"`
	DefaultBranch   string    `json:"default_branch"`
	HTMLURL         string    `json:"html_url"`
	Owner           Owner     `json:"owner"`
	CreatedAt       time.Time `json:"created_at"`
	PushedAt        time.Time `json:"pushed_at"`
}

type User struct {
	Login       string `json:"login"`
	Name        string `json:"name"`
	AvatarURL   string `json:"avatar_url"`
	HTMLURL     string `json:"html_url"`
	Bio         string `json:"bio"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	Blog        string `json:"blog"`
	PublicRepos int    `json:"public_repos"`
	Followers   int    `json:"followers"`
}

type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"` // blob, tree, commit
	Size int64  `json:"size"`
}

type Tree struct {
	SHA       string      `json:"sha"`
	Entries   []TreeEntry `json:"tree"`
	Truncated bool        `json:"truncated"`
}

type commitItem struct {
	SHA    string `json:"sha"`
	Commit struct {
		Author struct {
			Date time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

// CommitStats 提交数近似值以及首末提交时间
type CommitStats struct {
	Total  int
	First  time.Time
	Latest time.Time
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient token 为空时匿名访问（限流更严格）
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	httpClient := &http.Client{}
	if token != "" {
		httpClient = oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}
	httpClient.Timeout = timeout

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func repoPath(owner, name string) string {
	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(name)
}

func (c *Client) do(ctx context.Context, path string, query url.Values, accept string) (*http.Response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if accept == "" {
		accept = "application/vnd.github+json"
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github api %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Path: path}
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) (http.Header, error) {
	resp, err := c.do(ctx, path, query, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, fmt.Errorf("github api %s: decode: %w", path, err)
	}
	return resp.Header, nil
}

// GetRepo 仓库基础信息
func (c *Client) GetRepo(ctx context.Context, owner, name string) (*Repository, error) {
	var repo Repository
	if _, err := c.getJSON(ctx, repoPath(owner, name), nil, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

// GetLanguages 语言 -> 字节数
func (c *Client) GetLanguages(ctx context.Context, owner, name string) (map[string]int64, error) {
	langs := map[string]int64{}
	if _, err := c.getJSON(ctx, repoPath(owner, name)+"/languages", nil, &langs); err != nil {
		return nil, err
	}
	return langs, nil
}

// GetUser 用户公开资料
func (c *Client) GetUser(ctx context.Context, login string) (*User, error) {
	var user User
	if _, err := c.getJSON(ctx, "/users/"+url.PathEscape(login), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetCommitStats 以 per_page=1 探测总提交数：Link 头中 rel="last" 的页码即提交数。
// 最老提交时间需要再请求最后一页，失败时只留空不报错。
func (c *Client) GetCommitStats(ctx context.Context, owner, name string) (*CommitStats, error) {
	path := repoPath(owner, name) + "/commits"

	var first []commitItem
	header, err := c.getJSON(ctx, path, url.Values{"per_page": {"1"}}, &first)
	if err != nil {
		return nil, err
	}

	stats := &CommitStats{Total: len(first)}
	if len(first) > 0 {
		stats.Latest = first[0].Commit.Author.Date
		stats.First = stats.Latest
	}

	lastPage, ok := LastPage(header.Get("Link"))
	if !ok || lastPage <= 1 {
		return stats, nil
	}
	stats.Total = lastPage

	var last []commitItem
	query := url.Values{"per_page": {"1"}, "page": {fmt.Sprint(lastPage)}}
	if _, err := c.getJSON(ctx, path, query, &last); err == nil && len(last) > 0 {
		stats.First = last[0].Commit.Author.Date
	} else {
		stats.First = time.Time{}
	}
	return stats, nil
}

// GetTree 递归文件树
func (c *Client) GetTree(ctx context.Context, owner, name, branch string) (*Tree, error) {
	var tree Tree
	path := repoPath(owner, name) + "/git/trees/" + url.PathEscape(branch)
	if _, err := c.getJSON(ctx, path, url.Values{"recursive": {"1"}}, &tree); err != nil {
		return nil, err
	}
	return &tree, nil
}

// GetFileContent 原始文件内容
func (c *Client) GetFileContent(ctx context.Context, owner, name, filePath, ref string) (string, error) {
	segments := strings.Split(filePath, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	path := repoPath(owner, name) + "/contents/" + strings.Join(segments, "/")

	var query url.Values
	if ref != "" {
		query = url.Values{"ref": {ref}}
	}

	resp, err := c.do(ctx, path, query, "application/vnd.github.raw")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFileBytes))
	if err != nil {
		return "", fmt.Errorf("github api %s: read: %w", path, err)
	}
	return string(data), nil
}
