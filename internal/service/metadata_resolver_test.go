package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/devhance_server/internal/pkg/apperr"
	"github.com/qs3c/devhance_server/internal/pkg/githubapi"
)

// newGithubServer 模拟 GitHub REST API，commitsStatus 非 200 时提交接口返回该状态码
func newGithubServer(t *testing.T, commitsStatus int) *githubapi.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name":"widget","full_name":"acme/widget","description":"A widget",
			"stargazers_count":42,"language":"","default_branch":"main","owner":{"login":"acme"}}`)
	})
	mux.HandleFunc("/repos/acme/widget/languages", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"TypeScript": 5000, "Go": 1200}`)
	})
	mux.HandleFunc("/users/acme", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"login":"acme","name":"Acme Inc","public_repos":3,"followers":9}`)
	})
	mux.HandleFunc("/repos/acme/widget/commits", func(w http.ResponseWriter, r *http.Request) {
		if commitsStatus != http.StatusOK {
			w.WriteHeader(commitsStatus)
			return
		}
		if r.URL.Query().Get("page") == "120" {
			fmt.Fprint(w, `[{"sha":"a","commit":{"author":{"date":"2021-01-15T10:00:00Z"}}}]`)
			return
		}
		w.Header().Set("Link", `<https://api.github.com/repositories/1/commits?per_page=1&page=2>; rel="next", `+
			`<https://api.github.com/repositories/1/commits?per_page=1&page=120>; rel="last"`)
		fmt.Fprint(w, `[{"sha":"z","commit":{"author":{"date":"2024-06-02T10:00:00Z"}}}]`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return githubapi.NewClient(server.URL, "", 5*time.Second)
}

func TestMetadataResolver_Resolve(t *testing.T) {
	r := NewMetadataResolver(newGithubServer(t, http.StatusOK), nil)

	res, err := r.Resolve(context.Background(), "https://github.com/acme/widget.git")
	require.NoError(t, err)
	require.False(t, res.Degraded, res.Reason)

	meta := res.Value
	assert.Equal(t, "acme/widget", meta.FullName)
	assert.Equal(t, 42, meta.Stars)
	// 仓库未标注语言时取字节数最多的语言
	assert.Equal(t, "TypeScript", meta.PrimaryLanguage)
	assert.Equal(t, 120, meta.TotalCommits)
	assert.Equal(t, "Jan 2021 - Jun 2024", meta.ActivePeriod)
	assert.Equal(t, "Acme Inc", meta.OwnerProfile.Name)
	assert.Equal(t, 9, meta.OwnerProfile.Followers)
}

func TestMetadataResolver_CommitHistoryUnavailable(t *testing.T) {
	r := NewMetadataResolver(newGithubServer(t, http.StatusInternalServerError), nil)

	res, err := r.Resolve(context.Background(), "https://github.com/acme/widget")
	require.NoError(t, err)

	assert.True(t, res.Degraded)
	assert.Equal(t, 0, res.Value.TotalCommits)
	assert.Equal(t, "Unknown", res.Value.ActivePeriod)
	// 其余字段不受影响
	assert.Equal(t, 42, res.Value.Stars)
	assert.Equal(t, "Acme Inc", res.Value.OwnerProfile.Name)
}

func TestMetadataResolver_RepoUnavailable(t *testing.T) {
	gh := newFakeGithub()
	gh.repoErr = errUpstream
	r := NewMetadataResolver(gh, nil)

	res, err := r.Resolve(context.Background(), "https://github.com/acme/widget")
	require.NoError(t, err)

	assert.True(t, res.Degraded)
	assert.Equal(t, &RepoMetadata{
		Owner:           "acme",
		Name:            "widget",
		FullName:        "acme/widget",
		PrimaryLanguage: "Unknown",
		ActivePeriod:    "Unknown",
		OwnerProfile:    OwnerProfile{Login: "acme"},
	}, res.Value)
}

func TestMetadataResolver_OwnerUnavailable(t *testing.T) {
	gh := newFakeGithub()
	gh.userErr = errUpstream
	r := NewMetadataResolver(gh, nil)

	res, err := r.Resolve(context.Background(), "https://github.com/acme/widget")
	require.NoError(t, err)

	assert.True(t, res.Degraded)
	assert.Contains(t, res.Reason, "owner profile")
	assert.Equal(t, OwnerProfile{Login: "acme"}, res.Value.OwnerProfile)
	assert.Equal(t, "Go", res.Value.PrimaryLanguage)
}

func TestMetadataResolver_InvalidURL(t *testing.T) {
	r := NewMetadataResolver(newFakeGithub(), nil)

	_, err := r.Resolve(context.Background(), "https://gitlab.com/acme/widget")
	var vErr *apperr.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestActivePeriod(t *testing.T) {
	first := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	latest := time.Date(2024, 11, 30, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "Mar 2023 - Nov 2024", activePeriod(first, latest))
	assert.Equal(t, "Unknown", activePeriod(time.Time{}, latest))
}

func TestTopLanguage(t *testing.T) {
	assert.Equal(t, "Unknown", topLanguage(nil))
	assert.Equal(t, "Go", topLanguage(map[string]int64{"Rust": 3, "Go": 10}))
}
