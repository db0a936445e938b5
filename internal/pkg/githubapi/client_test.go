package githubapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, token string, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, token, 5*time.Second)
}

func TestClient_GetRepo(t *testing.T) {
	var gotAuth string
	client := newTestClient(t, "ghp_test", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/repos/acme/widget", r.URL.Path)
		fmt.Fprint(w, `{"name":"widget","full_name":"acme/widget","stargazers_count":42,
			"language":"Go","default_branch":"trunk","owner":{"login":"acme"}}`)
	})

	repo, err := client.GetRepo(context.Background(), "acme", "widget")
	require.NoError(t, err)

	assert.Equal(t, "Bearer ghp_test", gotAuth)
	assert.Equal(t, 42, repo.StargazersCount)
	assert.Equal(t, "trunk", repo.DefaultBranch)
	assert.Equal(t, "acme", repo.Owner.Login)
}

func TestClient_Anonymous(t *testing.T) {
	client := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"Go": 1200, "Shell": 30}`)
	})

	langs, err := client.GetLanguages(context.Background(), "acme", "widget")
	require.NoError(t, err)
	assert.Equal(t, int64(1200), langs["Go"])
}

func TestClient_StatusError(t *testing.T) {
	client := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.GetUser(context.Background(), "acme")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, "/users/acme", statusErr.Path)
}

func TestClient_GetCommitStats(t *testing.T) {
	t.Run("paginated", func(t *testing.T) {
		client := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "1", r.URL.Query().Get("per_page"))
			if r.URL.Query().Get("page") == "137" {
				fmt.Fprint(w, `[{"sha":"a","commit":{"author":{"date":"2021-03-04T00:00:00Z"}}}]`)
				return
			}
			w.Header().Set("Link", `<https://api.github.com/repositories/1/commits?per_page=1&page=2>; rel="next", `+
				`<https://api.github.com/repositories/1/commits?per_page=1&page=137>; rel="last"`)
			fmt.Fprint(w, `[{"sha":"z","commit":{"author":{"date":"2024-06-01T00:00:00Z"}}}]`)
		})

		stats, err := client.GetCommitStats(context.Background(), "acme", "widget")
		require.NoError(t, err)
		assert.Equal(t, 137, stats.Total)
		assert.Equal(t, 2021, stats.First.Year())
		assert.Equal(t, 2024, stats.Latest.Year())
	})

	t.Run("single page", func(t *testing.T) {
		client := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `[{"sha":"z","commit":{"author":{"date":"2024-06-01T00:00:00Z"}}}]`)
		})

		stats, err := client.GetCommitStats(context.Background(), "acme", "widget")
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Total)
		assert.Equal(t, stats.Latest, stats.First)
	})

	t.Run("empty repository", func(t *testing.T) {
		client := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `[]`)
		})

		stats, err := client.GetCommitStats(context.Background(), "acme", "widget")
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Total)
		assert.True(t, stats.First.IsZero())
	})
}

func TestClient_GetTreeAndContent(t *testing.T) {
	client := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/acme/widget/git/trees/main":
			assert.Equal(t, "1", r.URL.Query().Get("recursive"))
			fmt.Fprint(w, `{"sha":"abc","tree":[{"path":"README.md","type":"blob","size":10},{"path":"src","type":"tree"}]}`)
		case "/repos/acme/widget/contents/src/main file.go":
			assert.Equal(t, "application/vnd.github.raw", r.Header.Get("Accept"))
			assert.Equal(t, "main", r.URL.Query().Get("ref"))
			fmt.Fprint(w, "package main")
		default:
			http.NotFound(w, r)
		}
	})

	tree, err := client.GetTree(context.Background(), "acme", "widget", "main")
	require.NoError(t, err)
	require.Len(t, tree.Entries, 2)
	assert.Equal(t, "blob", tree.Entries[0].Type)

	content, err := client.GetFileContent(context.Background(), "acme", "widget", "src/main file.go", "main")
	require.NoError(t, err)
	assert.Equal(t, "package main", content)

	_, err = client.GetTree(context.Background(), "acme", "widget", "master")
	assert.Error(t, err)
}

func TestLastPage(t *testing.T) {
	tests := []struct {
		link string
		want int
		ok   bool
	}{
		{`<https://x/commits?page=2>; rel="next", <https://x/commits?per_page=1&page=55>; rel="last"`, 55, true},
		{`<https://x/commits?page=2>; rel="next"`, 0, false},
		{``, 0, false},
		{`<https://x/commits?page=abc>; rel="last"`, 0, false},
	}

	for _, tt := range tests {
		got, ok := LastPage(tt.link)
		assert.Equal(t, tt.ok, ok, tt.link)
		assert.Equal(t, tt.want, got, tt.link)
	}
}
