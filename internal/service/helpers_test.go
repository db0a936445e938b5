package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/qs3c/devhance_server/internal/pkg/genai"
	"github.com/qs3c/devhance_server/internal/pkg/githubapi"
	"github.com/qs3c/devhance_server/internal/pkg/pubsub"
	"github.com/qs3c/devhance_server/internal/pkg/queue"
)

var errUpstream = errors.New("upstream unavailable")

// fakeGithub 同时实现 MetadataSource 与 TreeSource
type fakeGithub struct {
	repo     *githubapi.Repository
	repoErr  error
	langs    map[string]int64
	langErr  error
	user     *githubapi.User
	userErr  error
	stats    *githubapi.CommitStats
	statsErr error
	trees    map[string]*githubapi.Tree
	files    map[string]string

	mu        sync.Mutex
	treeCalls []string
}

func newFakeGithub() *fakeGithub {
	return &fakeGithub{
		repo: &githubapi.Repository{
			Name: "widget", FullName: "acme/widget", Description: "A widget",
			StargazersCount: 42, Language: "Go", DefaultBranch: "main",
		},
		langs: map[string]int64{"Go": 1200, "Shell": 30},
		user:  &githubapi.User{Login: "acme", Name: "Acme Inc", Followers: 7},
		trees: map[string]*githubapi.Tree{
			"main": {Entries: []githubapi.TreeEntry{
				{Path: "README.md", Type: "blob"},
				{Path: "go.mod", Type: "blob"},
				{Path: "internal", Type: "tree"},
				{Path: "internal/app.go", Type: "blob"},
			}},
		},
		files: map[string]string{
			"README.md":       "# Widget",
			"go.mod":          "module acme/widget",
			"internal/app.go": "package internal",
		},
	}
}

func (f *fakeGithub) GetRepo(context.Context, string, string) (*githubapi.Repository, error) {
	return f.repo, f.repoErr
}

func (f *fakeGithub) GetLanguages(context.Context, string, string) (map[string]int64, error) {
	return f.langs, f.langErr
}

func (f *fakeGithub) GetUser(context.Context, string) (*githubapi.User, error) {
	return f.user, f.userErr
}

func (f *fakeGithub) GetCommitStats(context.Context, string, string) (*githubapi.CommitStats, error) {
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	if f.stats == nil {
		return &githubapi.CommitStats{}, nil
	}
	return f.stats, nil
}

func (f *fakeGithub) GetTree(_ context.Context, _, _, branch string) (*githubapi.Tree, error) {
	f.mu.Lock()
	f.treeCalls = append(f.treeCalls, branch)
	f.mu.Unlock()

	tree, ok := f.trees[branch]
	if !ok {
		return nil, &githubapi.StatusError{StatusCode: 404, Path: "/git/trees/" + branch}
	}
	return tree, nil
}

func (f *fakeGithub) GetFileContent(_ context.Context, _, _, path, _ string) (string, error) {
	content, ok := f.files[path]
	if !ok {
		return "", &githubapi.StatusError{StatusCode: 404, Path: path}
	}
	return content, nil
}

// scriptedModel 按顺序返回预设回复，记录调用次数
type scriptedModel struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int32
}

func (m *scriptedModel) Generate(context.Context, string) (string, error) {
	atomic.AddInt32(&m.calls, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	if len(m.replies) == 0 {
		return "", errUpstream
	}
	reply := m.replies[0]
	if len(m.replies) > 1 {
		m.replies = m.replies[1:]
	}
	return reply, nil
}

func (m *scriptedModel) Calls() int {
	return int(atomic.LoadInt32(&m.calls))
}

func (m *scriptedModel) set(reply string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = []string{reply}
	m.err = err
}

func newAdapter(m *scriptedModel) *genai.Adapter {
	return genai.NewAdapter(m, nil, nil)
}

const caseStudyReply = "```json\n" + `{
  "title": "Widget",
  "summary": "A tiny widget service",
  "problemSummary": "p",
  "solutionSummary": "s",
  "techStack": "Go",
  "architectureOverview": "a",
  "coreFeatures": [{"name": "fast"}],
  "challengesAndSolutions": "c",
  "impact": "i",
  "proofData": {"stars": 42}
}` + "\n```"

func vcReportReply(t *testing.T) string {
	t.Helper()
	scores := map[string]genai.Score{}
	for i, key := range genai.ScoreKeys {
		scores[key] = genai.Score{Score: i % 11, Reason: "because"}
	}
	narratives := map[string]string{}
	for _, key := range genai.NarrativeKeys {
		narratives[key] = "section text"
	}
	data, err := json.Marshal(genai.VCReportContent{
		Scores:            scores,
		NarrativeSections: narratives,
		Verdict:           "Worth a second meeting",
	})
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

type progressRecorder struct {
	mu    sync.Mutex
	steps []string
	msgs  []*pubsub.ProgressMessage
}

func (r *progressRecorder) PublishProgress(_ context.Context, msg *pubsub.ProgressMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, msg.Step)
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *progressRecorder) Steps() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.steps...)
}

type memQueue struct {
	mu   sync.Mutex
	jobs []*queue.ReportJob
}

func (q *memQueue) Push(_ context.Context, job *queue.ReportJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *memQueue) Jobs() []*queue.ReportJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*queue.ReportJob(nil), q.jobs...)
}
